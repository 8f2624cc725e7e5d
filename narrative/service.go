package narrative

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bizvista/review-engine/llm"
)

// Source records how a narrative was produced.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Result is an accepted narrative.
type Result struct {
	Kind        Kind
	Document    Document
	Source      Source
	Cached      bool
	CacheKey    string
	GeneratedAt time.Time

	// Failure is the last reason generation was not used, if any.
	Failure string
}

// Payload flattens the document and its metadata for JSON responses.
func (r Result) Payload() map[string]any {
	out := make(map[string]any, len(r.Document)+3)
	for k, v := range r.Document {
		out[k] = v
	}
	out["source"] = r.Source
	out["cached"] = r.Cached
	out["generated_at"] = r.GeneratedAt.Format(time.RFC3339)
	return out
}

// Request is one narrative to resolve.
type Request struct {
	Schema   *Schema
	CacheKey string
	Prompt   string
	Facts    Facts

	// Timeout bounds the whole generation protocol (calls, retries, repair).
	Timeout time.Duration
}

// Options are the sampling parameters sent with every call.
type Options struct {
	Temperature float64
	Seed        int
	ContextSize int
	MaxTokens   int
}

// DefaultOptions are the deterministic sampling parameters.
var DefaultOptions = Options{Temperature: 0.3, Seed: 42, ContextSize: 1024, MaxTokens: 220}

// Service runs the cache -> generate -> validate -> repair -> extract ->
// fallback protocol.
type Service struct {
	generator llm.Generator
	cache     Cache
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	flight    singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the narrative cache.
func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

// WithOptions sets sampling parameters.
func WithOptions(o Options) Option { return func(s *Service) { s.opts = o } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a Service. A nil generator behaves as unavailable.
func NewService(g llm.Generator, opts ...Option) *Service {
	if g == nil {
		g = llm.Unavailable()
	}
	s := &Service{
		generator: g,
		opts:      DefaultOptions,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Generate resolves req and caches a freshly generated result. Concurrent
// calls for the same cache key share one resolution. When req has a timeout
// the shared resolution is detached from the caller's cancellation and bounded
// by that timeout alone.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	if req.CacheKey == "" {
		return s.Resolve(ctx, req)
	}
	if req.Timeout > 0 {
		ctx = context.WithoutCancel(ctx)
	}
	v, err, _ := s.flight.Do(req.CacheKey, func() (any, error) {
		r, err := s.Resolve(ctx, req)
		if err != nil {
			return r, err
		}
		if r.Source == SourceGenerated && !r.Cached && s.cache != nil {
			if err := s.cache.Put(ctx, r); err != nil {
				s.logger.Warn("[Narrative] cache write failed", "key", short(r.CacheKey), "error", err)
			}
		}
		return r, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// Resolve runs the protocol without writing the cache. It only returns an
// error for an invalid request; generation problems end in the fallback.
func (s *Service) Resolve(ctx context.Context, req Request) (Result, error) {
	if req.Schema == nil {
		return Result{}, errors.New("narrative request has no schema")
	}
	log := s.logger.With("kind", req.Schema.Kind, "key", short(req.CacheKey))

	if req.CacheKey != "" && s.cache != nil {
		r, ok, err := s.cache.Get(ctx, req.CacheKey)
		switch {
		case err != nil:
			log.Warn("[Narrative] cache read failed, treating as miss", "error", err)
		case ok:
			log.Info("[Narrative] cache hit")
			r.Cached = true
			r.Source = SourceGenerated
			return r, nil
		}
	}

	genCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	doc, failure := s.attempt(genCtx, req, log)
	if doc != nil {
		return s.result(req, doc, SourceGenerated, ""), nil
	}
	log.Warn("[Narrative] using fallback", "reason", failure)
	return s.result(req, Fallback(req.Schema, req.Facts), SourceFallback, failure.Error()), nil
}

// attempt returns a valid document or the last failure.
func (s *Service) attempt(ctx context.Context, req Request, log *slog.Logger) (Document, error) {
	raw, err := s.call(ctx, req.Schema, req.Prompt)
	if err != nil {
		return nil, err
	}
	doc, verr := Validate(req.Schema, raw)
	if verr == nil {
		return doc, nil
	}
	log.Info("[Narrative] validation failed, repairing", "reason", verr)

	repaired, rerr := s.call(ctx, req.Schema, RepairPrompt(req.Schema, raw, verr))
	if rerr == nil {
		if doc, verr = Validate(req.Schema, repaired); verr == nil {
			return doc, nil
		}
		if doc, ok := Extract(req.Schema, repaired); ok {
			log.Info("[Narrative] extracted document from repaired output")
			return doc, nil
		}
	}
	if doc, ok := Extract(req.Schema, raw); ok {
		log.Info("[Narrative] extracted document from original output")
		return doc, nil
	}
	if rerr != nil {
		return nil, rerr
	}
	return nil, verr
}

func (s *Service) call(ctx context.Context, schema *Schema, prompt string) (string, error) {
	return s.generator.Generate(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: s.opts.Temperature,
		Seed:        s.opts.Seed,
		ContextSize: s.opts.ContextSize,
		MaxTokens:   s.opts.MaxTokens,
		SchemaName:  schema.Name,
		Schema:      schema.JSONSchema(),
	})
}

func (s *Service) result(req Request, doc Document, src Source, failure string) Result {
	return Result{
		Kind:        req.Schema.Kind,
		Document:    doc,
		Source:      src,
		CacheKey:    req.CacheKey,
		GeneratedAt: s.now(),
		Failure:     failure,
	}
}

// Remember primes an in-memory cache front with a result persisted elsewhere.
func (s *Service) Remember(r Result) {
	if m, ok := s.cache.(interface{ Remember(Result) }); ok && r.CacheKey != "" {
		m.Remember(r)
	}
}

func short(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
