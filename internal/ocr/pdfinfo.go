package ocr

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// infoKeys maps document information dictionary entries to metadata keys.
var infoKeys = []struct {
	name string
	key  string
}{
	{"/Title", "title"},
	{"/Author", "author"},
	{"/Subject", "subject"},
	{"/Keywords", "keywords"},
	{"/Creator", "creator"},
	{"/Producer", "producer"},
	{"/CreationDate", "creation_date"},
	{"/ModDate", "mod_date"},
}

var xmpPatterns = map[string]*regexp.Regexp{
	"xmp_creator_tool": regexp.MustCompile(`xmp:CreatorTool>([^<]+)<`),
	"xmp_producer":     regexp.MustCompile(`pdf:Producer>([^<]+)<`),
	"xmp_document_id":  regexp.MustCompile(`xmpMM:DocumentID>([^<]+)<`),
	"xmp_title":        regexp.MustCompile(`(?s)<dc:title[^>]*>.*?<rdf:li[^>]*>([^<]+)</rdf:li>`),
}

var pageCountPattern = regexp.MustCompile(`/Type\s*/Page[^s]`)

// ParseInfo extracts metadata from raw PDF bytes. Dates are converted to
// RFC 3339 when they parse. A "pages" entry counts page objects.
func ParseInfo(pdf []byte) map[string]string {
	info := make(map[string]string)

	for _, k := range infoKeys {
		raw, ok := findValue(pdf, k.name)
		if !ok {
			continue
		}
		v := strings.TrimSpace(raw)
		if k.key == "creation_date" || k.key == "mod_date" {
			if t, ok := ParseDate(v); ok {
				v = t.Format(time.RFC3339)
			}
		}
		if v != "" {
			info[k.key] = v
		}
	}

	for key, pattern := range xmpPatterns {
		if m := pattern.FindSubmatch(pdf); len(m) > 1 {
			info[key] = strings.TrimSpace(string(m[1]))
		}
	}

	if n := len(pageCountPattern.FindAll(pdf, -1)); n > 0 {
		info["pages"] = strconv.Itoa(n)
	}
	return info
}

// findValue locates name followed by a literal "(...)" or hex "<...>"
// string and returns the decoded value.
func findValue(pdf []byte, name string) (string, bool) {
	from := 0
	for {
		i := bytes.Index(pdf[from:], []byte(name))
		if i < 0 {
			return "", false
		}
		pos := from + i + len(name)
		from = pos

		// "/Title" must not match "/TitleFoo".
		if pos < len(pdf) && isNameChar(pdf[pos]) {
			continue
		}
		for pos < len(pdf) && isSpace(pdf[pos]) {
			pos++
		}
		if pos >= len(pdf) {
			return "", false
		}
		switch pdf[pos] {
		case '(':
			if raw, ok := readLiteral(pdf[pos+1:]); ok {
				return decodeText(raw), true
			}
		case '<':
			if pos+1 < len(pdf) && pdf[pos+1] == '<' {
				continue
			}
			end := bytes.IndexByte(pdf[pos+1:], '>')
			if end < 0 {
				return "", false
			}
			return decodeText(decodeHex(pdf[pos+1 : pos+1+end])), true
		}
	}
}

// readLiteral reads a PDF literal string up to its balancing ")",
// resolving escape sequences.
func readLiteral(b []byte) ([]byte, bool) {
	var out []byte
	depth := 0
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch c {
		case '\\':
			i++
			if i >= len(b) {
				return nil, false
			}
			switch e := b[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for n := 0; n < 2 && i+1 < len(b) && b[i+1] >= '0' && b[i+1] <= '7'; n++ {
						i++
						v = v*8 + int(b[i]-'0')
					}
					out = append(out, byte(v))
					continue
				}
				out = append(out, e)
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			if depth == 0 {
				return out, true
			}
			depth--
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return nil, false
}

func decodeHex(b []byte) []byte {
	clean := make([]byte, 0, len(b))
	for _, c := range b {
		if !isSpace(c) {
			clean = append(clean, c)
		}
	}
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out := make([]byte, hex.DecodedLen(len(clean)))
	n, err := hex.Decode(out, clean)
	if err != nil {
		return nil
	}
	return out[:n]
}

// decodeText decodes UTF-16 strings (marked by a byte order mark) and
// returns other strings as they are.
func decodeText(b []byte) string {
	if len(b) >= 2 && ((b[0] == 0xFE && b[1] == 0xFF) || (b[0] == 0xFF && b[1] == 0xFE)) {
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(decoded)
		}
	}
	return string(b)
}

// ParseDate parses a PDF date such as "D:20240102150405+09'00'".
// Missing trailing fields default to their minimum.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	if len(s) < 4 {
		return time.Time{}, false
	}

	digits := s
	rest := ""
	if i := strings.IndexAny(s, "Z+-"); i >= 0 {
		digits, rest = s[:i], s[i:]
	}
	const full = "00000101000000"
	if len(digits) > len(full) || !allDigits(digits) {
		return time.Time{}, false
	}
	digits += full[len(digits):]

	loc := time.UTC
	if rest != "" && rest[0] != 'Z' {
		tz := strings.ReplaceAll(rest[1:], "'", "")
		if (len(tz) != 2 && len(tz) != 4) || !allDigits(tz) {
			return time.Time{}, false
		}
		h := int(tz[0]-'0')*10 + int(tz[1]-'0')
		m := 0
		if len(tz) == 4 {
			m = int(tz[2]-'0')*10 + int(tz[3]-'0')
		}
		offset := h*3600 + m*60
		if rest[0] == '-' {
			offset = -offset
		}
		loc = time.FixedZone("", offset)
	}

	t, err := time.ParseInLocation("20060102150405", digits, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
