package narrative_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/llm"
	"github.com/bizvista/review-engine/narrative"
	"github.com/bizvista/review-engine/review/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// scripted replies with outputs in order and counts calls.
type scripted struct {
	calls   atomic.Int32
	outputs []string
	prompts []string
}

func (s *scripted) Generate(_ context.Context, req llm.Request) (string, error) {
	n := int(s.calls.Add(1)) - 1
	s.prompts = append(s.prompts, req.Prompt)
	if n >= len(s.outputs) {
		return "", &llm.PermanentError{Err: errors.New("script exhausted")}
	}
	return s.outputs[n], nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (narrative.Result, bool, error) {
	return narrative.Result{}, false, errors.New("disk on fire")
}

func (brokenCache) Put(context.Context, narrative.Result) error {
	return errors.New("disk on fire")
}

func validComparison(t *testing.T) string {
	return comparisonJSON(t, "Alpha leads overall.", items(2, 3), items(2, 3), items(3, 3))
}

func comparisonRequest(key string) narrative.Request {
	return narrative.Request{
		Schema:   narrative.ComparisonSchema,
		CacheKey: key,
		Prompt:   "compare",
		Facts:    narrative.Facts{Subject: "Alpha vs Beta", SentimentScore: 50},
		Timeout:  time.Second,
	}
}

func newCache(t *testing.T) *narrative.LRUCache {
	t.Helper()
	c, err := narrative.NewLRUCache(16, narrative.StoreCache{Store: store.NewMemory()})
	require.NoError(t, err)
	return c
}

// =============================================================================
// PROTOCOL
// =============================================================================

func TestService_SecondCallHitsCache(t *testing.T) {
	// GIVEN: A generator that produces one valid document
	// WHEN: Generating twice with the same key
	// THEN: The second result is cached and the generator is called once

	gen := &scripted{outputs: []string{validComparison(t)}}
	svc := narrative.NewService(gen, narrative.WithCache(newCache(t)), narrative.WithLogger(quiet))
	ctx := context.Background()

	first, err := svc.Generate(ctx, comparisonRequest("k1"))
	require.NoError(t, err)
	assert.Equal(t, narrative.SourceGenerated, first.Source)
	assert.False(t, first.Cached)

	second, err := svc.Generate(ctx, comparisonRequest("k1"))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, narrative.SourceGenerated, second.Source)
	assert.Equal(t, first.Document, second.Document)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestService_CacheSurvivesFreshFront(t *testing.T) {
	mem := store.NewMemory()
	gen := &scripted{outputs: []string{validComparison(t)}}
	ctx := context.Background()

	front1, err := narrative.NewLRUCache(4, narrative.StoreCache{Store: mem})
	require.NoError(t, err)
	_, err = narrative.NewService(gen, narrative.WithCache(front1), narrative.WithLogger(quiet)).
		Generate(ctx, comparisonRequest("k1"))
	require.NoError(t, err)

	front2, err := narrative.NewLRUCache(4, narrative.StoreCache{Store: mem})
	require.NoError(t, err)
	r, err := narrative.NewService(gen, narrative.WithCache(front2), narrative.WithLogger(quiet)).
		Generate(ctx, comparisonRequest("k1"))
	require.NoError(t, err)

	assert.True(t, r.Cached)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestService_RepairsInvalidOutput(t *testing.T) {
	gen := &scripted{outputs: []string{
		`{"summary": "x", "by_theme": [], "risks": ["only one"], "opportunities": ["a", "b", "c"]}`,
		validComparison(t),
	}}
	svc := narrative.NewService(gen, narrative.WithLogger(quiet))

	r, err := svc.Resolve(context.Background(), comparisonRequest("k"))

	require.NoError(t, err)
	assert.Equal(t, narrative.SourceGenerated, r.Source)
	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[1], "Problem:")
	assert.Contains(t, gen.prompts[1], "risks")
}

func TestService_ExtractsFromOriginalWhenRepairFails(t *testing.T) {
	gen := &scripted{outputs: []string{
		"Sure! Here it is:\n" + validComparison(t) + "\nEnjoy.",
		"I cannot help with that.",
	}}
	svc := narrative.NewService(gen, narrative.WithLogger(quiet))

	r, err := svc.Resolve(context.Background(), comparisonRequest("k"))

	require.NoError(t, err)
	assert.Equal(t, narrative.SourceGenerated, r.Source)
	assert.Equal(t, "Alpha leads overall.", r.Document.Text("summary"))
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestService_UnavailableFallsBackAndDoesNotCache(t *testing.T) {
	cache := newCache(t)
	svc := narrative.NewService(nil, narrative.WithCache(cache), narrative.WithLogger(quiet))

	r, err := svc.Generate(context.Background(), comparisonRequest("k"))

	require.NoError(t, err)
	assert.Equal(t, narrative.SourceFallback, r.Source)
	assert.Contains(t, r.Failure, "unavailable")
	_, cached, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, cached)
	_, err = narrative.Validate(narrative.ComparisonSchema, mustJSON(t, r.Document))
	assert.NoError(t, err)
}

func TestService_SharedResolutionSurvivesCallerCancel(t *testing.T) {
	// GIVEN: A generation in flight for a request whose caller then goes away
	// WHEN: The generator completes after the cancellation
	// THEN: The generated result is still produced and cached for everyone

	started := make(chan struct{})
	release := make(chan struct{})
	reply := validComparison(t)
	gen := llm.Func(func(ctx context.Context, _ llm.Request) (string, error) {
		close(started)
		select {
		case <-release:
			return reply, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	cache := newCache(t)
	svc := narrative.NewService(gen, narrative.WithCache(cache), narrative.WithLogger(quiet))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan narrative.Result, 1)
	go func() {
		r, err := svc.Generate(ctx, comparisonRequest("k"))
		assert.NoError(t, err)
		done <- r
	}()

	<-started
	cancel()
	close(release)

	select {
	case r := <-done:
		assert.Equal(t, narrative.SourceGenerated, r.Source)
		assert.Empty(t, r.Failure)
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not finish")
	}

	_, cached, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestService_TimeoutFallsBack(t *testing.T) {
	slow := llm.Func(func(ctx context.Context, _ llm.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc := narrative.NewService(slow, narrative.WithLogger(quiet))
	req := comparisonRequest("k")
	req.Timeout = 20 * time.Millisecond

	start := time.Now()
	r, err := svc.Resolve(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, narrative.SourceFallback, r.Source)
	assert.Less(t, time.Since(start), time.Second)
}

func TestService_CacheErrorsAreMisses(t *testing.T) {
	gen := &scripted{outputs: []string{validComparison(t)}}
	svc := narrative.NewService(gen, narrative.WithCache(brokenCache{}), narrative.WithLogger(quiet))

	r, err := svc.Generate(context.Background(), comparisonRequest("k"))

	require.NoError(t, err)
	assert.Equal(t, narrative.SourceGenerated, r.Source)
	assert.False(t, r.Cached)
}

func TestService_MissingSchema(t *testing.T) {
	svc := narrative.NewService(nil, narrative.WithLogger(quiet))
	_, err := svc.Resolve(context.Background(), narrative.Request{})
	assert.Error(t, err)
}

func TestResult_Payload(t *testing.T) {
	at := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	svc := narrative.NewService(nil, narrative.WithLogger(quiet), narrative.WithClock(func() time.Time { return at }))

	r, err := svc.Resolve(context.Background(), comparisonRequest(""))
	require.NoError(t, err)

	p := r.Payload()
	assert.Equal(t, narrative.SourceFallback, p["source"])
	assert.Equal(t, false, p["cached"])
	assert.Equal(t, "2024-06-30T12:00:00Z", p["generated_at"])
	assert.Contains(t, p, "summary")
}

func mustJSON(t *testing.T, doc narrative.Document) string {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(b)
}
