package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedSummary struct {
	AccountNumber    string `json:"account_number"`
	Balance          int64  `json:"balance"`
	TotalOutstanding int64  `json:"total_outstanding"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	return &Client{raw: raw, summaryTTL: time.Minute}, srv
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	var miss cachedSummary
	hit, err := client.GetSummary(ctx, "pupil-1", &miss)
	require.NoError(t, err)
	assert.False(t, hit)

	stored := cachedSummary{AccountNumber: "SB0000000001", Balance: 1500, TotalOutstanding: 500}
	require.NoError(t, client.SetSummary(ctx, "pupil-1", stored))

	var got cachedSummary
	hit, err = client.GetSummary(ctx, "pupil-1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, stored, got)
}

func TestInvalidateSummary(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetSummary(ctx, "pupil-2", cachedSummary{Balance: 100}))
	require.NoError(t, client.InvalidateSummary(ctx, "pupil-2"))

	var got cachedSummary
	hit, err := client.GetSummary(ctx, "pupil-2", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSummaryTTLExpires(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetSummary(ctx, "pupil-3", cachedSummary{Balance: 100}))
	srv.FastForward(2 * time.Minute)

	var got cachedSummary
	hit, err := client.GetSummary(ctx, "pupil-3", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestFlushSummaries(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetSummary(ctx, "pupil-4", cachedSummary{Balance: 1}))
	require.NoError(t, client.SetSummary(ctx, "pupil-5", cachedSummary{Balance: 2}))
	require.NoError(t, client.FlushSummaries(ctx))

	var got cachedSummary
	hit, err := client.GetSummary(ctx, "pupil-4", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	hit, err = client.GetSummary(ctx, "pupil-5", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSummaryKeyNamespace(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "sb:summary:pupil-9", client.SummaryKey("pupil-9"))
}
