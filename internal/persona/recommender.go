package persona

import (
	"math"
	"sort"

	"github.com/HendryAvila/hoofctx/internal/lexicon"
)

// Recommendation scoring.
const (
	neutralBase   = 0.6
	personaBase   = 0.3
	hitWeight     = 0.4
	minConfidence = 0.45
	maxConfidence = 0.98
	maxTokens     = 512
)

// Recommendation sources.
const (
	SourceExplicit = "explicit"
	SourceQuery    = "query"
	SourceContext  = "context_hint"
	SourceDefault  = "default"
)

// Alternative is a runner-up persona with its score.
type Alternative struct {
	Persona Persona `json:"persona"`
	Score   float64 `json:"score"`
}

// Recommendation is the persona inferred for a request.
type Recommendation struct {
	Persona      Persona       `json:"persona"`
	Confidence   float64       `json:"confidence"`
	Source       string        `json:"source"`
	Score        float64       `json:"score"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Signals      []string      `json:"signals,omitempty"`
	// Hits counts signal words matched across all personas.
	Hits int `json:"hits"`
}

// Recommender infers a persona from free text using the lexicon's signal
// lists.
type Recommender struct {
	lx *lexicon.Lexicon
}

// NewRecommender creates a Recommender. A nil lexicon uses the defaults.
func NewRecommender(lx *lexicon.Lexicon) *Recommender {
	if lx == nil {
		lx = lexicon.Default()
	}
	return &Recommender{lx: lx}
}

var signalLists = map[Persona]string{
	Author:    lexicon.SignalAuthor,
	Reviewer:  lexicon.SignalReviewer,
	Architect: lexicon.SignalArchitect,
}

// Recommend scores every persona against text and returns the best one.
// Neutral starts ahead, so text without signals recommends neutral.
func (r *Recommender) Recommend(text string) Recommendation {
	tokens := lexicon.Tokenize(text, maxTokens)
	scores := map[Persona]float64{Neutral: neutralBase}
	var signals []string
	hits := 0
	for _, p := range All[1:] {
		n, matched := r.lx.CountSignals(signalLists[p], tokens)
		scores[p] = personaBase + float64(n)*hitWeight
		hits += n
		signals = append(signals, matched...)
	}

	ranked := make([]Alternative, 0, len(All))
	for _, p := range All {
		ranked = append(ranked, Alternative{Persona: p, Score: round(scores[p])})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	gap := ranked[0].Score - ranked[1].Score
	return Recommendation{
		Persona:      ranked[0].Persona,
		Confidence:   round(math.Min(maxConfidence, math.Max(minConfidence, 0.5+gap*0.5))),
		Score:        ranked[0].Score,
		Alternatives: ranked[1:],
		Signals:      signals,
		Hits:         hits,
	}
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
