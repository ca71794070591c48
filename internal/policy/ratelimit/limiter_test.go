package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	hosts []string
}

func (r *recordingObserver) ObserveRateLimitDelay(host string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts = append(r.hosts, host)
}

type countingFetcher struct {
	calls int
}

func (c *countingFetcher) Fetch(context.Context, string) (*goquery.Document, error) {
	c.calls++
	return goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
}

func TestLimiterWaitsForToken(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	l := New(Config{RPS: 10, Burst: 1}, obs)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://digimoviez.com/page/3/"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://digimoviez.com/page/2/"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	require.Equal(t, []string{"digimoviez.com"}, obs.hosts)
}

func TestLimiterKeepsHostsIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1}, nil)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{}, nil)
	ctx := context.Background()
	start := time.Now()
	for range 50 {
		require.NoError(t, l.Wait(ctx, "https://digimoviez.com/"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1}, nil)
	require.NoError(t, l.Wait(context.Background(), "https://digimoviez.com/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://digimoviez.com/")
	require.Error(t, err)
}

func TestWrappedFetcherSkipsFetchOnCancel(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := Wrap(next, New(Config{RPS: 0.1, Burst: 1}, nil))

	_, err := f.Fetch(context.Background(), "https://digimoviez.com/tt1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, "https://digimoviez.com/tt2")
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, next.calls)
}
