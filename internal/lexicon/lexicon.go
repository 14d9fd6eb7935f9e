// Package lexicon holds the tokenizer and the tunable word lists used by the
// scoring heuristics: stop words, ignored and preferred path prefixes, trunk
// branch names and persona signal words.
//
// The lists are data, loaded from an embedded YAML document and overridable
// through configuration, so they can be tuned without touching scoring code.
package lexicon

import (
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Persona signal list names.
const (
	SignalAuthor    = "author"
	SignalReviewer  = "reviewer"
	SignalArchitect = "architect"
)

// Lexicon is the set of word lists. Zero-value lists mean "none".
type Lexicon struct {
	StopWords           []string            `yaml:"stop_words"`
	IgnoredPathPrefixes []string            `yaml:"ignored_path_prefixes"`
	ClusterRoots        []string            `yaml:"cluster_roots"`
	TrunkBranches       []string            `yaml:"trunk_branches"`
	PersonaSignals      map[string][]string `yaml:"persona_signals"`

	stop  map[string]bool
	trunk map[string]bool
}

// Default returns the embedded lexicon.
func Default() *Lexicon {
	lx, err := Parse(defaultsYAML)
	if err != nil {
		// The embedded document is part of the binary; failing to parse it
		// is a build defect.
		panic(fmt.Sprintf("lexicon: embedded defaults: %v", err))
	}
	return lx
}

// Parse decodes a YAML lexicon document.
func Parse(data []byte) (*Lexicon, error) {
	var lx Lexicon
	if err := yaml.Unmarshal(data, &lx); err != nil {
		return nil, fmt.Errorf("lexicon: parse: %w", err)
	}
	lx.index()
	return &lx, nil
}

// Merge returns a copy of lx where every non-empty list of override replaces
// the corresponding list. Persona signals are replaced per persona.
func (lx *Lexicon) Merge(override Lexicon) *Lexicon {
	out := &Lexicon{
		StopWords:           pick(override.StopWords, lx.StopWords),
		IgnoredPathPrefixes: pick(override.IgnoredPathPrefixes, lx.IgnoredPathPrefixes),
		ClusterRoots:        pick(override.ClusterRoots, lx.ClusterRoots),
		TrunkBranches:       pick(override.TrunkBranches, lx.TrunkBranches),
		PersonaSignals:      make(map[string][]string, len(lx.PersonaSignals)),
	}
	for k, v := range lx.PersonaSignals {
		out.PersonaSignals[k] = v
	}
	for k, v := range override.PersonaSignals {
		if len(v) > 0 {
			out.PersonaSignals[k] = v
		}
	}
	out.index()
	return out
}

func pick(override, base []string) []string {
	if len(override) > 0 {
		return override
	}
	return base
}

func (lx *Lexicon) index() {
	lx.stop = make(map[string]bool, len(lx.StopWords))
	for _, w := range lx.StopWords {
		lx.stop[strings.ToLower(w)] = true
	}
	lx.trunk = make(map[string]bool, len(lx.TrunkBranches))
	for _, b := range lx.TrunkBranches {
		lx.trunk[b] = true
	}
}

// IsStopWord reports whether w is a stop word.
func (lx *Lexicon) IsStopWord(w string) bool {
	return lx.stop[strings.ToLower(w)]
}

// IsTrunkBranch reports whether name is a long-lived default branch.
func (lx *Lexicon) IsTrunkBranch(name string) bool {
	return lx.trunk[name]
}

// IsIgnoredPath reports whether a slash-separated path lives under an
// ignored directory at any depth.
func (lx *Lexicon) IsIgnoredPath(path string) bool {
	for _, prefix := range lx.IgnoredPathPrefixes {
		if strings.HasPrefix(path, prefix) || strings.Contains(path, "/"+prefix) {
			return true
		}
	}
	return false
}

// IsClusterRoot reports whether segment (without trailing slash) is one of
// the monorepo roots whose children are the natural work units.
func (lx *Lexicon) IsClusterRoot(segment string) bool {
	for _, root := range lx.ClusterRoots {
		if strings.TrimSuffix(root, "/") == segment {
			return true
		}
	}
	return false
}

// Tokenize splits text into lowercase tokens made of letters, digits, '_'
// and '-'. When limit > 0 at most limit tokens are returned.
func Tokenize(text string, limit int) []string {
	var tokens []string
	var b strings.Builder
	flush := func() bool {
		if b.Len() == 0 {
			return true
		}
		tokens = append(tokens, b.String())
		b.Reset()
		return limit <= 0 || len(tokens) < limit
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if !flush() {
			return tokens
		}
	}
	flush()
	return tokens
}

// Keywords extracts up to limit unique, stop-word-filtered tokens of at
// least three characters, in first-seen order. Pure numbers are skipped.
func (lx *Lexicon) Keywords(text string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range Tokenize(text, 0) {
		tok = strings.Trim(tok, "-_")
		if len(tok) < 3 || seen[tok] || lx.IsStopWord(tok) || isNumeric(tok) {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// CountSignals counts how many tokens match the named persona signal list
// and returns the matched signals. A signal ending in '*' matches by prefix.
func (lx *Lexicon) CountSignals(persona string, tokens []string) (int, []string) {
	signals := lx.PersonaSignals[persona]
	hits := 0
	var matched []string
	for _, tok := range tokens {
		for _, sig := range signals {
			if matchSignal(sig, tok) {
				hits++
				matched = append(matched, tok)
				break
			}
		}
	}
	return hits, matched
}

func matchSignal(signal, token string) bool {
	if prefix, ok := strings.CutSuffix(signal, "*"); ok {
		return prefix != "" && strings.HasPrefix(token, prefix)
	}
	return signal == token
}
