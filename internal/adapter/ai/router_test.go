package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/domain"
)

type fakeProvider struct {
	name  string
	out   string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(_ domain.Context, _, _ string) (string, error) {
	f.calls++
	return f.out, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouter_FirstSuccessWins(t *testing.T) {
	t.Parallel()

	first := &fakeProvider{name: "a", out: "from a"}
	second := &fakeProvider{name: "b", out: "from b"}
	r := NewRouterWith([]Provider{first, second}, nil, discardLogger(), nil)

	out, err := r.Call(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "from a", out)
	assert.Zero(t, second.calls)
}

func TestRouter_FallsThroughOnFailure(t *testing.T) {
	t.Parallel()

	first := &fakeProvider{name: "a", err: errors.New("boom")}
	second := &fakeProvider{name: "b", out: "from b"}
	r := NewRouterWith([]Provider{first, second}, nil, discardLogger(), nil)

	out, err := r.Call(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "from b", out)
	assert.Equal(t, 1, first.calls)
}

func TestRouter_ExhaustionWrapsSentinelAndLastError(t *testing.T) {
	t.Parallel()

	lastErr := errors.New("final failure")
	r := NewRouterWith([]Provider{
		&fakeProvider{name: "a", err: errors.New("first failure")},
		&fakeProvider{name: "b", err: lastErr},
	}, nil, discardLogger(), nil)

	_, err := r.Call(context.Background(), "p", "s")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderExhausted)
	assert.ErrorIs(t, err, lastErr)
}

func TestRouter_NoProviders(t *testing.T) {
	t.Parallel()

	r := NewRouterWith(nil, nil, discardLogger(), nil)
	_, err := r.Call(context.Background(), "p", "s")
	assert.ErrorIs(t, err, domain.ErrProviderExhausted)
}

func TestRouter_RateLimitedProviderGoesOnCooldown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCooldownCache(rdb, time.Minute)

	limited := &fakeProvider{name: "limited", err: fmt.Errorf("status 429: %w", errRateLimited)}
	healthy := &fakeProvider{name: "healthy", out: "ok"}
	r := NewRouterWith([]Provider{limited, healthy}, cache, discardLogger(), nil)

	out, err := r.Call(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, limited.calls)

	// second round skips the cooled-down provider entirely
	_, err = r.Call(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, 1, limited.calls)
	assert.Equal(t, 2, healthy.calls)

	// cooldown lapses, provider is tried again
	mr.FastForward(2 * time.Minute)
	_, err = r.Call(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, 2, limited.calls)
}

func TestCooldownCache_ErrorIsNotCoolingDown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCooldownCache(rdb, time.Minute)
	mr.Close()

	_, err := cache.CoolingDown(context.Background(), "gemini")
	assert.Error(t, err)
}

func TestRouter_EmptyCompletionFallsThrough(t *testing.T) {
	t.Parallel()

	hollow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer hollow.Close()
	real := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"the answer"}}]}`))
	}))
	defer real.Close()

	r := NewRouterWith([]Provider{
		NewOpenAICompat("hollow", "k", "m", hollow.URL, hollow.Client()),
		NewOpenAICompat("real", "k", "m", real.URL, real.Client()),
	}, nil, discardLogger(), nil)

	out, err := r.Call(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)
}

func TestCooldownCache_ClearLiftsCooldown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCooldownCache(rdb, time.Hour)

	require.NoError(t, cache.Mark(context.Background(), "gemini"))
	cooling, err := cache.CoolingDown(context.Background(), "gemini")
	require.NoError(t, err)
	require.True(t, cooling)

	require.NoError(t, cache.Clear(context.Background(), "gemini"))
	cooling, err = cache.CoolingDown(context.Background(), "gemini")
	require.NoError(t, err)
	assert.False(t, cooling)
}

func TestRouter_RecoveredProviderIsAvailableAgain(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCooldownCache(rdb, time.Minute)

	flaky := &fakeProvider{name: "flaky", err: fmt.Errorf("status 429: %w", errRateLimited)}
	healthy := &fakeProvider{name: "healthy", out: "ok"}
	r := NewRouterWith([]Provider{flaky, healthy}, cache, discardLogger(), nil)

	_, err := r.Call(context.Background(), "p", "s")
	require.NoError(t, err)

	// provider recovers while its cooldown lapses
	flaky.err = nil
	flaky.out = "back"
	mr.FastForward(2 * time.Minute)

	out, err := r.Call(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "back", out)

	cooling, err := cache.CoolingDown(context.Background(), "flaky")
	require.NoError(t, err)
	assert.False(t, cooling)
}
