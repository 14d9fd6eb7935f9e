package persona

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Input is what providers may use to pick a persona.
type Input struct {
	// Explicit is the user's stored preference, if any.
	Explicit string
	Query    string
	// ContextHint is text synthesized from the project snapshot.
	ContextHint string
}

// Provider proposes a persona. ok=false means the provider has no opinion
// and the next one should be asked.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, in Input) (rec Recommendation, ok bool, err error)
}

// ExplicitProvider honors a stored user preference.
type ExplicitProvider struct{}

func (ExplicitProvider) Name() string { return SourceExplicit }

func (ExplicitProvider) Resolve(_ context.Context, in Input) (Recommendation, bool, error) {
	if strings.TrimSpace(in.Explicit) == "" {
		return Recommendation{}, false, nil
	}
	p, ok := Parse(in.Explicit)
	if !ok {
		return Recommendation{}, false, fmt.Errorf("unknown persona preference %q", in.Explicit)
	}
	return Recommendation{Persona: p, Confidence: 1, Source: SourceExplicit}, true, nil
}

// TextProvider recommends from one text field of the input. It has no
// opinion when the text matches no signal word.
type TextProvider struct {
	Recommender *Recommender
	Source      string
	Text        func(Input) string
}

// QueryProvider recommends from the request query.
func QueryProvider(r *Recommender) *TextProvider {
	return &TextProvider{Recommender: r, Source: SourceQuery, Text: func(in Input) string { return in.Query }}
}

// ContextProvider recommends from the snapshot context hint.
func ContextProvider(r *Recommender) *TextProvider {
	return &TextProvider{Recommender: r, Source: SourceContext, Text: func(in Input) string { return in.ContextHint }}
}

func (p *TextProvider) Name() string { return p.Source }

func (p *TextProvider) Resolve(_ context.Context, in Input) (Recommendation, bool, error) {
	text := strings.TrimSpace(p.Text(in))
	if text == "" {
		return Recommendation{}, false, nil
	}
	rec := p.Recommender.Recommend(text)
	if rec.Hits == 0 {
		return Recommendation{}, false, nil
	}
	rec.Source = p.Source
	return rec, true, nil
}

// Chain asks providers in order and returns the first opinion. Provider
// errors and panics are logged and skipped; when nobody answers the result
// is neutral.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain creates a Chain. A nil logger discards logs.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, logger: logger}
}

// DefaultChain is explicit preference, then query, then context hint.
func DefaultChain(r *Recommender, logger *zap.Logger) *Chain {
	return NewChain(logger, ExplicitProvider{}, QueryProvider(r), ContextProvider(r))
}

// Resolve returns the first provider opinion, or neutral.
func (c *Chain) Resolve(ctx context.Context, in Input) Recommendation {
	var errs []error
	for _, p := range c.providers {
		rec, ok, err := c.try(ctx, p, in)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if ok {
			if len(errs) > 0 {
				c.logger.Warn("persona providers failed before a fallback answered",
					zap.String("answered_by", p.Name()),
					zap.Error(errors.Join(errs...)))
			}
			return rec
		}
	}
	if len(errs) > 0 {
		c.logger.Warn("persona providers failed; using neutral", zap.Error(errors.Join(errs...)))
	}
	return Recommendation{Persona: Neutral, Confidence: minConfidence, Source: SourceDefault}
}

func (c *Chain) try(ctx context.Context, p Provider, in Input) (rec Recommendation, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, ok, err = Recommendation{}, false, fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Resolve(ctx, in)
}
