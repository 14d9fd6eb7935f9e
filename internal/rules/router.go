package rules

import (
	"math"
	"strings"
	"time"

	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/lexicon"
	"github.com/HendryAvila/hoofctx/internal/model"
)

// MaxQueryTokens caps how much of a query participates in routing.
const MaxQueryTokens = 512

// Blend weights for the non-relevance components of the router score.
const (
	priorityWeight      = 0.2
	recencyWeight       = 0.12
	lengthPenaltyWeight = 0.08
	hybridSemantic      = 0.65
	hybridKeyword       = 0.35
	recencyHalfLifeDays = 21.0
	lengthPenaltyTokens = 800.0
	maxLengthPenalty    = 0.6
)

// ScoreBreakdown is the per-rule relevance score, kept for debug output.
type ScoreBreakdown struct {
	RuleID        string      `json:"rule_id"`
	Scope         model.Scope `json:"scope"`
	Semantic      float64     `json:"semantic"`
	Keyword       float64     `json:"keyword"`
	Priority      float64     `json:"priority"`
	Recency       float64     `json:"recency"`
	LengthPenalty float64     `json:"length_penalty"`
	Final         float64     `json:"final"`
	Selected      bool        `json:"selected"`
	Reason        Reason      `json:"reason,omitempty"`
}

// QueryTokens tokenizes a query for Score, capped at MaxQueryTokens.
func QueryTokens(query string) []string {
	return lexicon.Tokenize(query, MaxQueryTokens)
}

// Score computes the multi-factor relevance of one rule against the query
// tokens. With no query tokens only priority, recency and the length
// penalty contribute, which makes the score usable as a composite ordering
// key when no query is present.
func Score(scope model.Scope, rule model.Rule, queryTokens []string, mode RoutingMode, now time.Time) ScoreBreakdown {
	ruleTokens := lexicon.Tokenize(rule.Title+" "+rule.Content+" "+strings.Join(rule.Tags, " "), 0)

	b := ScoreBreakdown{
		RuleID:        rule.ID,
		Scope:         scope,
		Semantic:      cosine(termFrequency(queryTokens), termFrequency(ruleTokens)),
		Keyword:       keywordOverlap(queryTokens, ruleTokens),
		Priority:      float64(6-model.ClampPriority(rule.Priority)) / 5,
		Recency:       math.Exp(-ageDays(rule.UpdatedAt, now) / recencyHalfLifeDays),
		LengthPenalty: math.Min(float64(budget.Estimate(rule.Content))/lengthPenaltyTokens, maxLengthPenalty),
	}

	semanticW, keywordW := blendWeights(mode)
	final := b.Semantic*semanticW +
		b.Keyword*keywordW +
		b.Priority*priorityWeight +
		b.Recency*recencyWeight -
		b.LengthPenalty*lengthPenaltyWeight
	b.Final = round(final, 6)
	return b
}

func blendWeights(mode RoutingMode) (semantic, keyword float64) {
	switch mode {
	case RoutingSemantic:
		return 1, 0
	case RoutingKeyword:
		return 0, 1
	default:
		return hybridSemantic, hybridKeyword
	}
}

func termFrequency(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// cosine returns the cosine similarity of two term-frequency vectors, or 0
// when either is empty.
func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for term, wa := range a {
		normA += wa * wa
		if wb, ok := b[term]; ok {
			dot += wa * wb
		}
	}
	for _, wb := range b {
		normB += wb * wb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// keywordOverlap is |query ∩ rule| / |query| over token sets.
func keywordOverlap(queryTokens, ruleTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	ruleSet := make(map[string]bool, len(ruleTokens))
	for _, t := range ruleTokens {
		ruleSet[t] = true
	}
	querySet := make(map[string]bool, len(queryTokens))
	hits := 0
	for _, t := range queryTokens {
		if querySet[t] {
			continue
		}
		querySet[t] = true
		if ruleSet[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(querySet))
}

func ageDays(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	d := now.Sub(t).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
