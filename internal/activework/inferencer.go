// Package activework infers what a project is currently working on from
// repository hook events and typed memories, and keeps a persisted set of
// active-work rows in step with those inferences.
//
// The Inferencer is pure: it clusters evidence into scored candidates. The
// Reconciler reads evidence from the store, runs the Inferencer and applies
// the results plus the staleness policy to the stored rows, appending one
// lifecycle event per transition. The Sweeper runs the Reconciler for every
// project on a schedule.
package activework

import (
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/lexicon"
	"github.com/HendryAvila/hoofctx/internal/model"
)

// Inference limits and weights.
const (
	DefaultMaxItems      = 5
	MaxItems             = 10
	maxCommitKeywords    = 20
	snippetChars         = 48
	titleChars           = 80
	recencyWindowDays    = 14.0
	frequencyCap         = 20.0
	decisionWeightCap    = 3.5
	keywordSetCap        = 6
	keywordStep          = 0.2
	activityKeywordBonus = 0.2
	draftDecisionWeight  = 2.0
	decisionWeight       = 1.0
	minTotal             = 0.25
	confidenceDivisor    = 7.5
	minConfidence        = 0.15
	maxConfidence        = 0.99
)

// Kind says what produced a candidate's cluster key.
type Kind string

const (
	KindPath     Kind = "path"
	KindCommit   Kind = "commit"
	KindBranch   Kind = "branch"
	KindDecision Kind = "decision"
	KindGoal     Kind = "goal"
	KindActivity Kind = "activity"
)

// Breakdown is the additive score of a candidate.
type Breakdown struct {
	RecencyWeight        float64 `json:"recency_weight"`
	FrequencyWeight      float64 `json:"frequency_weight"`
	DecisionStatusWeight float64 `json:"decision_status_weight"`
	CommitKeywordWeight  float64 `json:"commit_keyword_weight"`
	Total                float64 `json:"total"`
}

// Candidate is one inferred unit of active work.
type Candidate struct {
	Key            string    `json:"key"`
	Kind           Kind      `json:"kind"`
	Title          string    `json:"title"`
	Confidence     float64   `json:"confidence"`
	Score          float64   `json:"score"`
	EvidenceIDs    []string  `json:"evidence_ids"`
	LastEvidenceAt time.Time `json:"last_evidence_at"`
	Keywords       []string  `json:"keywords,omitempty"`
	Breakdown      Breakdown `json:"score_breakdown"`
}

// Inferencer clusters evidence into candidates.
type Inferencer struct {
	lx *lexicon.Lexicon
}

// NewInferencer creates an Inferencer. A nil lexicon uses the defaults.
func NewInferencer(lx *lexicon.Lexicon) *Inferencer {
	if lx == nil {
		lx = lexicon.Default()
	}
	return &Inferencer{lx: lx}
}

type evidence struct {
	id string
	at time.Time
}

type cluster struct {
	key            string
	kind           Kind
	title          string
	frequency      int
	decisionWeight float64
	keywordWeight  float64
	keywords       []string
	keywordSet     map[string]bool
	evidence       []evidence
	seen           map[string]bool
	lastSeen       time.Time
}

func (c *cluster) addEvidence(id string, at time.Time) {
	if id != "" && !c.seen[id] {
		c.seen[id] = true
		c.evidence = append(c.evidence, evidence{id: id, at: at})
	}
	if at.After(c.lastSeen) {
		c.lastSeen = at
	}
}

func (c *cluster) addKeywords(words []string) {
	for _, w := range words {
		if !c.keywordSet[w] {
			c.keywordSet[w] = true
			c.keywords = append(c.keywords, w)
		}
	}
}

type clusterSet struct {
	byKey map[string]*cluster
	order []*cluster
}

func (s *clusterSet) get(key string, kind Kind, title string) *cluster {
	if c, ok := s.byKey[key]; ok {
		return c
	}
	c := &cluster{key: key, kind: kind, title: title, keywordSet: map[string]bool{}, seen: map[string]bool{}}
	s.byKey[key] = c
	s.order = append(s.order, c)
	return c
}

// Infer returns at most maxItems candidates, best first. maxItems <= 0 means
// DefaultMaxItems; larger values are capped at MaxItems.
func (in *Inferencer) Infer(now time.Time, events []model.RawEvent, memories []model.Memory, maxItems int) []Candidate {
	out := in.All(now, events, memories)
	limit := clampItems(maxItems)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// All returns every candidate that clears the score floor, best first.
func (in *Inferencer) All(now time.Time, events []model.RawEvent, memories []model.Memory) []Candidate {
	set := &clusterSet{byKey: map[string]*cluster{}}

	for _, e := range events {
		key, kind, title, ok := in.eventCluster(e)
		if !ok {
			continue
		}
		c := set.get(key, kind, title)
		c.frequency++
		c.addEvidence(e.ID, e.CreatedAt)
		c.addKeywords(in.lx.Keywords(e.CommitMessage, maxCommitKeywords))
	}

	for _, m := range memories {
		seenAt := m.UpdatedAt
		if seenAt.IsZero() {
			seenAt = m.CreatedAt
		}
		switch m.Type {
		case model.MemoryDecision, model.MemoryGoal:
			prefix := snippet(m.Content)
			if prefix == "" {
				continue
			}
			kind := KindDecision
			if m.Type == model.MemoryGoal {
				kind = KindGoal
			}
			c := set.get(string(kind)+":"+prefix, kind, headline(m.Content))
			if m.Status == model.MemoryStatusDraft {
				c.decisionWeight += draftDecisionWeight
			} else {
				c.decisionWeight += decisionWeight
			}
			c.addEvidence(m.ID, seenAt)
		case model.MemoryActivity:
			var c *cluster
			if sub := cleanPath(m.Metadata.Subpath); sub != "" {
				c = set.get(string(KindPath)+":"+sub, KindPath, workTitle(sub))
			} else {
				prefix := snippet(m.Content)
				if prefix == "" {
					continue
				}
				c = set.get(string(KindActivity)+":"+prefix, KindActivity, headline(m.Content))
			}
			c.keywordWeight += activityKeywordBonus
			c.addEvidence(m.ID, seenAt)
		}
	}

	out := make([]Candidate, 0, len(set.order))
	for _, c := range set.order {
		cand := score(c, now)
		if cand.Score <= minTotal {
			continue
		}
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Title < b.Title
	})
	return out
}

func clampItems(n int) int {
	if n <= 0 {
		return DefaultMaxItems
	}
	if n > MaxItems {
		return MaxItems
	}
	return n
}

func score(c *cluster, now time.Time) Candidate {
	age := math.Max(0, now.Sub(c.lastSeen).Hours()/24)
	b := Breakdown{
		RecencyWeight:        math.Max(0, 1-age/recencyWindowDays) * 2,
		FrequencyWeight:      math.Min(float64(c.frequency), frequencyCap) / frequencyCap * 2,
		DecisionStatusWeight: math.Min(c.decisionWeight, decisionWeightCap),
		CommitKeywordWeight:  float64(min(len(c.keywords), keywordSetCap))*keywordStep + c.keywordWeight,
	}
	b.Total = round3(b.RecencyWeight + b.FrequencyWeight + b.DecisionStatusWeight + b.CommitKeywordWeight)

	ev := append([]evidence(nil), c.evidence...)
	sort.SliceStable(ev, func(i, j int) bool {
		if !ev[i].at.Equal(ev[j].at) {
			return ev[i].at.After(ev[j].at)
		}
		return ev[i].id < ev[j].id
	})
	if len(ev) > model.MaxEvidenceIDs {
		ev = ev[:model.MaxEvidenceIDs]
	}
	ids := make([]string, len(ev))
	for i, e := range ev {
		ids[i] = e.id
	}

	return Candidate{
		Key:            c.key,
		Kind:           c.kind,
		Title:          c.title,
		Confidence:     Confidence(b.Total),
		Score:          b.Total,
		EvidenceIDs:    ids,
		LastEvidenceAt: c.lastSeen,
		Keywords:       c.keywords,
		Breakdown:      b,
	}
}

// Confidence maps a candidate total to [0.15, 0.99], rounded to 3 decimals.
func Confidence(total float64) float64 {
	return round3(math.Min(maxConfidence, math.Max(minConfidence, total/confidenceDivisor)))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// eventCluster picks the cluster of a raw event: the first usable changed
// path, else the commit message, else a non-trunk branch.
func (in *Inferencer) eventCluster(e model.RawEvent) (key string, kind Kind, title string, ok bool) {
	for _, f := range e.ChangedFiles {
		p := cleanPath(f)
		if p == "" || in.lx.IsIgnoredPath(p) {
			continue
		}
		if cp := in.clusterPath(p); cp != "" {
			return string(KindPath) + ":" + cp, KindPath, workTitle(cp), true
		}
	}
	if s := snippet(e.CommitMessage); s != "" {
		return string(KindCommit) + ":" + s, KindCommit, headline(e.CommitMessage), true
	}
	if b := strings.TrimSpace(e.Branch); b != "" && !in.lx.IsTrunkBranch(b) {
		return string(KindBranch) + ":" + b, KindBranch, "Work on branch " + b, true
	}
	return "", "", "", false
}

// clusterPath reduces a file path to its work unit: the first two segments
// under a monorepo root (apps/foo), else the first one or two directories,
// else the file itself for top-level files.
func (in *Inferencer) clusterPath(p string) string {
	segs := strings.Split(p, "/")
	if len(segs) >= 2 && in.lx.IsClusterRoot(segs[0]) {
		return segs[0] + "/" + segs[1]
	}
	dirs := segs[:len(segs)-1]
	switch len(dirs) {
	case 0:
		return segs[0]
	case 1:
		return dirs[0]
	default:
		return dirs[0] + "/" + dirs[1]
	}
}

func cleanPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}

func workTitle(p string) string {
	return "Work on " + p
}

// snippet is the normalized identity prefix of free text: first line,
// lowercased, whitespace collapsed, trailing punctuation dropped.
func snippet(text string) string {
	line := firstLine(text)
	line = strings.ToLower(strings.Join(strings.Fields(line), " "))
	line = strings.TrimRight(line, ".:;,!? ")
	if len(line) > snippetChars {
		line = strings.TrimSpace(budget.Prefix(line, snippetChars))
	}
	return line
}

func headline(text string) string {
	return budget.Truncate(strings.Join(strings.Fields(firstLine(text)), " "), titleChars)
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(strings.TrimLeft(text, "#-* "))
}
