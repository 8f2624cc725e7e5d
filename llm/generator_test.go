package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizvista/review-engine/llm"
)

func TestOllama_SendsDeterministicNonStreamedRequest(t *testing.T) {
	// GIVEN: An Ollama server that records the request
	// WHEN: Generating
	// THEN: The request carries model, seed, temperature, context size and stream=false

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"love":[]}`, "done": true})
	}))
	defer srv.Close()

	g := llm.NewOllama(llm.Config{BaseURL: srv.URL, Model: "phi3:mini"})
	out, err := g.Generate(context.Background(), llm.Request{
		Prompt: "hi", Temperature: 0.3, Seed: 42, ContextSize: 1024, MaxTokens: 220,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"love":[]}`, out)
	assert.Equal(t, "phi3:mini", got["model"])
	assert.Equal(t, false, got["stream"])
	opts := got["options"].(map[string]any)
	assert.Equal(t, 0.3, opts["temperature"])
	assert.Equal(t, 42.0, opts["seed"])
	assert.Equal(t, 1024.0, opts["num_ctx"])
	assert.Equal(t, 220.0, opts["num_predict"])
}

func TestOllama_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := llm.NewOllama(llm.Config{BaseURL: srv.URL}).Generate(context.Background(), llm.Request{Prompt: "hi"})

	var pErr *llm.PermanentError
	assert.ErrorAs(t, err, &pErr)
}

func TestRetry_RetriesTransportFailures(t *testing.T) {
	calls := 0
	flaky := llm.Func(func(context.Context, llm.Request) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	})

	g := llm.Wrap(flaky, llm.Retry(2, time.Millisecond, nil))
	out, err := g.Generate(context.Background(), llm.Request{})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterRetries(t *testing.T) {
	calls := 0
	down := llm.Func(func(context.Context, llm.Request) (string, error) {
		calls++
		return "", errors.New("connection refused")
	})

	_, err := llm.Wrap(down, llm.Retry(2, time.Millisecond, nil)).Generate(context.Background(), llm.Request{})

	assert.Equal(t, 3, calls, "one call plus two retries")
	var tErr *llm.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, 3, tErr.Attempt)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	g := llm.Wrap(llm.Func(func(ctx context.Context, r llm.Request) (string, error) {
		calls++
		return llm.Unavailable().Generate(ctx, r)
	}), llm.Retry(2, time.Millisecond, nil))

	_, err := g.Generate(context.Background(), llm.Request{})

	assert.ErrorIs(t, err, llm.ErrUnavailable)
	assert.Equal(t, 1, calls)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := llm.New(llm.Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)

	g, err := llm.New(llm.Config{Provider: "none"})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), llm.Request{})
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}
