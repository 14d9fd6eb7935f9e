// Package retrieval defines the search collaborator the bundle uses to pull
// query-relevant memories into a context bundle.
package retrieval

import (
	"context"
	"strings"
)

// DefaultLimit is used when a query carries no limit.
const DefaultLimit = 10

// Boosts adjust relevance for results near the caller's current location or
// of preferred types. Zero values disable a boost.
type Boosts struct {
	// Subpath rewards results whose metadata subpath shares the query's
	// subpath prefix.
	Subpath float64 `json:"subpath" yaml:"subpath"`
	// Types maps memory types to an additive bonus.
	Types map[string]float64 `json:"types,omitempty" yaml:"types"`
}

// Query is one search request.
type Query struct {
	WorkspaceID string
	ProjectID   string
	Text        string
	Subpath     string
	Limit       int
	Boosts      Boosts
}

// ScoreBreakdown explains a result's score.
type ScoreBreakdown struct {
	Text  float64 `json:"text"`
	Boost float64 `json:"boost"`
	Final float64 `json:"final"`
}

// PersonaDebug records how persona weighting moved a result.
type PersonaDebug struct {
	Base     float64 `json:"base"`
	Weight   float64 `json:"weight"`
	Adjusted float64 `json:"adjusted"`
}

// Result is one retrieved item.
type Result struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title,omitempty"`
	Snippet   string          `json:"snippet"`
	Subpath   string          `json:"subpath,omitempty"`
	Score     *float64        `json:"score,omitempty"`
	Breakdown *ScoreBreakdown `json:"score_breakdown,omitempty"`
	Persona   *PersonaDebug   `json:"persona,omitempty"`
}

// Retriever searches memories.
type Retriever interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Boost returns the additive boost a result earns under b for a query
// subpath.
func (b Boosts) Boost(querySubpath, resultSubpath, resultType string) float64 {
	boost := b.Types[resultType]
	if b.Subpath != 0 && querySubpath != "" && resultSubpath != "" {
		q := strings.Trim(querySubpath, "/")
		r := strings.Trim(resultSubpath, "/")
		if r == q || strings.HasPrefix(r, q+"/") || strings.HasPrefix(q, r+"/") {
			boost += b.Subpath
		}
	}
	return boost
}

// Nop is a Retriever that finds nothing.
type Nop struct{}

// Search implements Retriever.
func (Nop) Search(context.Context, Query) ([]Result, error) { return nil, nil }
