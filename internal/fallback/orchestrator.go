// Package fallback tries an ordered list of (provider, model) candidates
// until one yields a usable text response.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"secondmind/internal/metrics"
	"secondmind/internal/providers"
)

var ErrNoCandidates = errors.New("no candidates configured")

// Candidate is one (provider, model) pair; position in the list is priority.
type Candidate struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Attempt struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Kind     providers.Kind `json:"kind"`
	Reason   string         `json:"reason"`
}

type Result struct {
	Text     string
	Provider string
	Model    string
}

// Failure carries the full attempt list so the caller can see which
// candidates were tried and why each one failed.
type Failure struct {
	Attempts []Attempt
	LastErr  error
}

func (f *Failure) Error() string {
	if f.LastErr != nil {
		return fmt.Sprintf("all %d candidates failed, last error: %v", len(f.Attempts), f.LastErr)
	}
	return fmt.Sprintf("all %d candidates failed", len(f.Attempts))
}

func (f *Failure) Unwrap() error { return f.LastErr }

type Orchestrator struct {
	candidates       []Candidate
	providers        map[string]providers.Provider
	abortOnRateLimit bool
	logger           zerolog.Logger
	metrics          *metrics.Metrics
}

type Config struct {
	Candidates []Candidate
	Providers  map[string]providers.Provider
	// AbortOnRateLimit stops the chain on the first 429-class failure on the
	// theory that the whole quota is exhausted, not just one model's.
	AbortOnRateLimit bool
	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
}

func New(cfg Config) *Orchestrator {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Orchestrator{
		candidates:       cfg.Candidates,
		providers:        cfg.Providers,
		abortOnRateLimit: cfg.AbortOnRateLimit,
		logger:           cfg.Logger,
		metrics:          m,
	}
}

func (o *Orchestrator) Candidates() []Candidate {
	out := make([]Candidate, len(o.candidates))
	copy(out, o.candidates)
	return out
}

// Run tries candidates strictly in order and returns on the first non-empty
// text. Stateless and safe to retry; no stickiness toward a previously
// successful candidate.
func (o *Orchestrator) Run(ctx context.Context, req providers.ChatRequest) (Result, error) {
	if len(o.candidates) == 0 {
		return Result{}, ErrNoCandidates
	}

	attempts := make([]Attempt, 0, len(o.candidates))
	var lastErr error

	for _, cand := range o.candidates {
		p, ok := o.providers[cand.Provider]
		if !ok {
			err := fmt.Errorf("provider %q is not configured", cand.Provider)
			lastErr = err
			attempts = append(attempts, Attempt{
				Provider: cand.Provider,
				Model:    cand.Model,
				Kind:     providers.KindModelUnavailable,
				Reason:   err.Error(),
			})
			o.metrics.ProviderAttempts.WithLabelValues(cand.Provider, string(providers.KindModelUnavailable)).Inc()
			continue
		}

		req.Model = cand.Model
		resp, err := p.Chat(ctx, req)
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			o.metrics.ProviderAttempts.WithLabelValues(cand.Provider, "success").Inc()
			return Result{Text: resp.Text, Provider: cand.Provider, Model: cand.Model}, nil
		}
		if err == nil {
			err = providers.NewError(providers.KindEmptyResponse, cand.Model, fmt.Errorf("provider produced no text"))
		}

		kind := providers.Classify(err)
		lastErr = err
		attempts = append(attempts, Attempt{
			Provider: cand.Provider,
			Model:    cand.Model,
			Kind:     kind,
			Reason:   err.Error(),
		})
		o.metrics.ProviderAttempts.WithLabelValues(cand.Provider, string(kind)).Inc()
		o.logger.Warn().
			Str("provider", cand.Provider).
			Str("model", cand.Model).
			Str("kind", string(kind)).
			Err(err).
			Msg("candidate failed")

		if kind == providers.KindRateLimited && o.abortOnRateLimit {
			o.logger.Warn().Str("provider", cand.Provider).Msg("rate limited, aborting fallback chain")
			break
		}
	}

	o.metrics.FallbackExhausted.Inc()
	return Result{}, &Failure{Attempts: attempts, LastErr: lastErr}
}
