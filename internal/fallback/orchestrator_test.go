package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"secondmind/internal/providers"
)

type stubProvider struct {
	text  string
	err   error
	calls int
}

func (s *stubProvider) Chat(_ context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return providers.ChatResponse{}, s.err
	}
	return providers.ChatResponse{Text: s.text, Model: req.Model}, nil
}

func newOrchestrator(cands []Candidate, provs map[string]providers.Provider, abortOnRateLimit bool) *Orchestrator {
	return New(Config{
		Candidates:       cands,
		Providers:        provs,
		AbortOnRateLimit: abortOnRateLimit,
		Logger:           zerolog.Nop(),
	})
}

func testRequest() providers.ChatRequest {
	return providers.ChatRequest{
		SystemInstruction: "be brief",
		Contents: []providers.Content{
			{Role: "user", Parts: []providers.Part{{Text: "hi"}}},
		},
	}
}

func TestRunShortCircuitsOnFirstSuccess(t *testing.T) {
	a := &stubProvider{err: providers.NewError(providers.KindTransient, "m-a", errors.New("boom"))}
	b := &stubProvider{text: "ok"}
	c := &stubProvider{text: "never"}

	o := newOrchestrator(
		[]Candidate{{Provider: "a", Model: "m-a"}, {Provider: "b", Model: "m-b"}, {Provider: "c", Model: "m-c"}},
		map[string]providers.Provider{"a": a, "b": b, "c": c},
		false,
	)

	res, err := o.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Text != "ok" || res.Provider != "b" || res.Model != "m-b" {
		t.Fatalf("unexpected result %+v", res)
	}
	if c.calls != 0 {
		t.Fatalf("candidate after the winner was invoked %d times", c.calls)
	}
}

func TestRunAbortsOnRateLimitWhenConfigured(t *testing.T) {
	a := &stubProvider{err: providers.NewError(providers.KindRateLimited, "m-a", errors.New("quota"))}
	b := &stubProvider{text: "ok"}

	o := newOrchestrator(
		[]Candidate{{Provider: "a", Model: "m-a"}, {Provider: "b", Model: "m-b"}},
		map[string]providers.Provider{"a": a, "b": b},
		true,
	)

	_, err := o.Run(context.Background(), testRequest())
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected Failure, got %v", err)
	}
	if b.calls != 0 {
		t.Fatalf("expected chain aborted before candidate b, got %d calls", b.calls)
	}
	if len(failure.Attempts) != 1 || failure.Attempts[0].Kind != providers.KindRateLimited {
		t.Fatalf("unexpected attempts %+v", failure.Attempts)
	}
}

func TestRunContinuesPastRateLimitWhenNotConfigured(t *testing.T) {
	a := &stubProvider{err: providers.NewError(providers.KindRateLimited, "m-a", errors.New("quota"))}
	b := &stubProvider{text: "ok"}

	o := newOrchestrator(
		[]Candidate{{Provider: "a", Model: "m-a"}, {Provider: "b", Model: "m-b"}},
		map[string]providers.Provider{"a": a, "b": b},
		false,
	)

	res, err := o.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Provider != "b" {
		t.Fatalf("expected candidate b to serve, got %+v", res)
	}
}

func TestRunExhaustionRecordsEveryCandidateInOrder(t *testing.T) {
	a := &stubProvider{err: providers.NewError(providers.KindAuth, "m-a", errors.New("bad key"))}
	b := &stubProvider{err: providers.NewError(providers.KindModelUnavailable, "m-b", errors.New("no model"))}
	c := &stubProvider{err: providers.NewError(providers.KindTransient, "m-c", errors.New("503"))}

	o := newOrchestrator(
		[]Candidate{{Provider: "a", Model: "m-a"}, {Provider: "b", Model: "m-b"}, {Provider: "c", Model: "m-c"}},
		map[string]providers.Provider{"a": a, "b": b, "c": c},
		false,
	)

	_, err := o.Run(context.Background(), testRequest())
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected Failure, got %v", err)
	}
	if len(failure.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(failure.Attempts))
	}
	wantKinds := []providers.Kind{providers.KindAuth, providers.KindModelUnavailable, providers.KindTransient}
	for i, att := range failure.Attempts {
		if att.Kind != wantKinds[i] {
			t.Fatalf("attempt %d kind = %s, want %s", i, att.Kind, wantKinds[i])
		}
	}
	if failure.Attempts[0].Provider != "a" || failure.Attempts[2].Provider != "c" {
		t.Fatalf("attempt order lost: %+v", failure.Attempts)
	}
}

func TestRunEmptyTextCountsAsFailure(t *testing.T) {
	a := &stubProvider{text: "   "}
	b := &stubProvider{text: "real answer"}

	o := newOrchestrator(
		[]Candidate{{Provider: "a", Model: "m-a"}, {Provider: "b", Model: "m-b"}},
		map[string]providers.Provider{"a": a, "b": b},
		false,
	)

	res, err := o.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Text != "real answer" {
		t.Fatalf("expected fallback past blank response, got %+v", res)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	a := &stubProvider{text: "stable"}
	o := newOrchestrator(
		[]Candidate{{Provider: "a", Model: "m-a"}},
		map[string]providers.Provider{"a": a},
		false,
	)

	first, err := o.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := o.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first != second {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
}

func TestRunNoCandidates(t *testing.T) {
	o := newOrchestrator(nil, map[string]providers.Provider{}, false)
	if _, err := o.Run(context.Background(), testRequest()); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestRunUnknownProviderIsRecordedAndSkipped(t *testing.T) {
	b := &stubProvider{text: "ok"}
	o := newOrchestrator(
		[]Candidate{{Provider: "ghost", Model: "m-g"}, {Provider: "b", Model: "m-b"}},
		map[string]providers.Provider{"b": b},
		false,
	)

	res, err := o.Run(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Provider != "b" {
		t.Fatalf("expected candidate b to serve, got %+v", res)
	}
}
