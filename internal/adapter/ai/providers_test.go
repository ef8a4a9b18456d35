package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_ConcatenatesSystemIntoPrompt(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGemini("key", "gemini-2.0-flash", srv.URL, srv.Client())
	out, err := p.Complete(context.Background(), "the prompt", "the system")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	text := parts[0].(map[string]any)["text"].(string)
	assert.Equal(t, "the system\n\nthe prompt", text)
}

func TestGeminiProvider_ErrorField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"key invalid"}}`))
	}))
	defer srv.Close()

	p := NewGemini("key", "m", srv.URL, srv.Client())
	_, err := p.Complete(context.Background(), "p", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key invalid")
}

func TestGeminiProvider_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewGemini("key", "m", srv.URL, srv.Client())
	_, err := p.Complete(context.Background(), "p", "")
	assert.ErrorIs(t, err, errRateLimited)
}

func TestOpenAICompat_RolesAndContentPath(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"reply"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompat("groq", "secret", "llama", srv.URL, srv.Client())
	out, err := p.Complete(context.Background(), "user text", "system text")
	require.NoError(t, err)
	assert.Equal(t, "reply", out)
	assert.Equal(t, "Bearer secret", gotAuth)

	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAICompat_EmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompat("github", "k", "m", srv.URL, srv.Client())
	_, err := p.Complete(context.Background(), "p", "")
	assert.Error(t, err)
}

func TestOpenAICompat_GarbageBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	p := NewOpenAICompat("openrouter", "k", "m", srv.URL, srv.Client())
	_, err := p.Complete(context.Background(), "p", "")
	assert.Error(t, err)
}

func TestGeminiProvider_EmptyCompletionIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":""}]}}]}`))
	}))
	defer srv.Close()

	p := NewGemini("key", "m", srv.URL, srv.Client())
	_, err := p.Complete(context.Background(), "p", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty completion")
}

func TestOpenAICompat_EmptyCompletionIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompat("groq", "k", "m", srv.URL, srv.Client())
	_, err := p.Complete(context.Background(), "p", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty completion")
}
