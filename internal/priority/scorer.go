package priority

import (
	"strings"

	"github.com/nao1215/politecrawl/internal/config"
)

// Scorer computes task priorities. It is immutable and safe for concurrent use.
type Scorer struct {
	base             int
	depthWeight      int
	boost            int
	penalty          int
	boostKeywords    []string
	penaltyKeywords  []string
	longURLThreshold int
	longURLPenalty   int
}

// NewScorer creates a Scorer from the priority section of the configuration.
func NewScorer(cfg config.PriorityConfig) *Scorer {
	return &Scorer{
		base:             cfg.Base,
		depthWeight:      cfg.DepthWeight,
		boost:            cfg.Boost,
		penalty:          cfg.Penalty,
		boostKeywords:    lowerAll(cfg.BoostKeywords),
		penaltyKeywords:  lowerAll(cfg.PenaltyKeywords),
		longURLThreshold: cfg.LongURLThreshold,
		longURLPenalty:   cfg.LongURLPenalty,
	}
}

// Score returns the priority of a canonical URL found at the given depth.
func (s *Scorer) Score(url string, depth int) int {
	lower := strings.ToLower(url)

	score := s.base - depth*s.depthWeight
	score += s.boost * countMatches(lower, s.boostKeywords)
	score -= s.penalty * countMatches(lower, s.penaltyKeywords)
	if s.longURLThreshold > 0 && len(url) > s.longURLThreshold {
		score -= s.longURLPenalty
	}
	return score
}

// Explain returns the keywords that contributed to a score, for debug logs.
func (s *Scorer) Explain(url string) (boosted, penalized []string) {
	lower := strings.ToLower(url)
	for _, kw := range s.boostKeywords {
		if strings.Contains(lower, kw) {
			boosted = append(boosted, kw)
		}
	}
	for _, kw := range s.penaltyKeywords {
		if strings.Contains(lower, kw) {
			penalized = append(penalized, kw)
		}
	}
	return boosted, penalized
}

func countMatches(s string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			n++
		}
	}
	return n
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
