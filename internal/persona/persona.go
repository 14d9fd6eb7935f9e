// Package persona reweights retrieval results by a role lens and infers
// which lens fits a request.
package persona

import (
	"strings"

	"github.com/HendryAvila/hoofctx/internal/model"
)

// Persona is a role lens.
type Persona string

const (
	Neutral   Persona = "neutral"
	Author    Persona = "author"
	Reviewer  Persona = "reviewer"
	Architect Persona = "architect"
)

// All lists the personas in tie-break order.
var All = []Persona{Neutral, Author, Reviewer, Architect}

// Parse validates a persona name.
func Parse(s string) (Persona, bool) {
	p := Persona(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// DefaultKey is the weight applied to types missing from a table.
const DefaultKey = "default"

// Weights maps a result type to a score multiplier.
type Weights map[string]float64

// For returns the multiplier for a result type: the type's weight, else the
// table default, else 1.
func (w Weights) For(resultType string) float64 {
	if v, ok := w[resultType]; ok {
		return v
	}
	if v, ok := w[DefaultKey]; ok {
		return v
	}
	return 1
}

// Tables holds one weight table per persona.
type Tables map[Persona]Weights

// For returns the table of p, or an empty table.
func (t Tables) For(p Persona) Weights {
	if w, ok := t[p]; ok {
		return w
	}
	return Weights{}
}

// Merge returns a copy of t with override tables replacing whole personas.
func (t Tables) Merge(override Tables) Tables {
	out := make(Tables, len(t)+len(override))
	for p, w := range t {
		out[p] = w
	}
	for p, w := range override {
		if len(w) > 0 {
			out[p] = w
		}
	}
	return out
}

// DefaultTables returns the built-in weight tables.
func DefaultTables() Tables {
	return Tables{
		Neutral: {DefaultKey: 1},
		Author: {
			"code":                 1.3,
			model.MemoryActivity:   1.2,
			model.MemoryDecision:   1.0,
			model.MemoryConstraint: 1.1,
			model.MemorySummary:    0.9,
			DefaultKey:             1,
		},
		Reviewer: {
			model.MemoryConstraint: 1.5,
			"rule":                 1.3,
			model.MemoryDecision:   1.2,
			model.MemoryActivity:   0.9,
			DefaultKey:             1,
		},
		Architect: {
			model.MemoryDecision:   1.6,
			model.MemorySummary:    1.3,
			model.MemoryConstraint: 1.2,
			model.MemoryActivity:   0.8,
			DefaultKey:             1,
		},
	}
}
