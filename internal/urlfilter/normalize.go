package urlfilter

import (
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// skippedPrefixes are link targets that never point at a fetchable document.
var skippedPrefixes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

// Normalize returns the canonical form of raw, resolved against parent when
// raw is relative. Query keys are dropped according to the rules and the
// remaining keys are sorted, so equivalent URLs produce the same string.
func (r *Rules) Normalize(raw, parent string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, reject(raw, ReasonParse)
	}
	lower := strings.ToLower(raw)
	for _, p := range skippedPrefixes {
		if strings.HasPrefix(lower, p) {
			return nil, reject(raw, ReasonScheme)
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, reject(raw, ReasonParse)
	}
	if parent != "" && !u.IsAbs() {
		base, err := url.Parse(parent)
		if err != nil {
			return nil, reject(raw, ReasonParse)
		}
		u = base.ResolveReference(u)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, reject(raw, ReasonScheme)
	}

	host, err := canonicalHost(u)
	if err != nil || host == "" {
		return nil, reject(raw, ReasonParse)
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	u.Opaque = ""

	u.Path = cleanPath(u.Path)
	u.RawPath = ""

	u.RawQuery = r.canonicalQuery(u.RawQuery)
	u.ForceQuery = false

	return u, nil
}

type queryParam struct {
	key, value string
	bare       bool
}

// canonicalQuery drops excluded keys and sorts the rest by key, keeping the
// order of repeated keys. A key without "=" stays bare.
func (r *Rules) canonicalQuery(raw string) string {
	var params []queryParam
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, hasValue := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			continue
		}
		if r.excludeQuery && r.excludedKey(key) {
			continue
		}
		params = append(params, queryParam{key: key, value: value, bare: !hasValue})
	}
	sort.SliceStable(params, func(i, j int) bool { return params[i].key < params[j].key })

	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		if !p.bare {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(p.value))
		}
	}
	return b.String()
}

// canonicalHost lower-cases the host, converts IDN labels to punycode and
// removes the scheme's default port.
func canonicalHost(u *url.URL) (string, error) {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()

	if net.ParseIP(hostname) == nil {
		ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(hostname, "."))
		switch {
		case err == nil:
			hostname = ascii
		case !isASCII(hostname):
			return "", err
		}
	}

	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(hostname, port), nil
	}
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]", nil
	}
	return hostname, nil
}

// isASCII lets plain ASCII hosts that fail strict IDNA rules (underscores,
// for instance) through unchanged.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	trailing := strings.HasSuffix(p, "/")
	p = path.Clean("/" + p)
	if trailing && p != "/" {
		p += "/"
	}
	return p
}

func (r *Rules) excludedKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range r.excludeQueryKeys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// Domain returns the politeness key of a canonical URL: its host, with the
// port when it is not the default one.
func Domain(u *url.URL) string {
	return u.Host
}

// DomainOf parses rawURL and returns its lower-cased host.
// It returns an empty string when rawURL cannot be parsed.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// sameScope reports whether domain belongs to the crawl scope of seedDomain.
// With subdomains included, both are reduced to their registrable domain.
func (r *Rules) sameScope(domain, seedDomain string) bool {
	if strings.EqualFold(domain, seedDomain) {
		return true
	}
	if !r.includeSubdomains {
		return false
	}
	a, errA := publicsuffix.EffectiveTLDPlusOne(stripPort(domain))
	b, errB := publicsuffix.EffectiveTLDPlusOne(stripPort(seedDomain))
	if errA != nil || errB != nil {
		return false
	}
	return a == b
}

func stripPort(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.Trim(hostport, "[]")
}
