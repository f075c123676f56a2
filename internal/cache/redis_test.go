package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	require.NoError(t, Init(mr.Addr(), "", 0))
	t.Cleanup(func() { Close() })
	return mr
}

type summary struct {
	Customers int     `json:"customers"`
	Amount    float64 `json:"amount"`
}

func TestJSONRoundTripAndTTL(t *testing.T) {
	mr := setup(t)
	ctx := context.Background()

	SetJSON(ctx, MonthSummaryKey("2024_03"), summary{Customers: 2, Amount: 1500}, MonthSummaryTTL)

	var got summary
	require.True(t, GetJSON(ctx, MonthSummaryKey("2024_03"), &got))
	assert.Equal(t, 1500.0, got.Amount)

	mr.FastForward(MonthSummaryTTL + time.Second)
	assert.False(t, GetJSON(ctx, MonthSummaryKey("2024_03"), &got))
}

func TestInvalidateMonthKeepsOtherMonths(t *testing.T) {
	mr := setup(t)
	ctx := context.Background()

	SetCached(ctx, MonthSummaryKey("2024_03"), []byte("a"), time.Minute)
	SetCached(ctx, MonthSummaryKey("2024_04"), []byte("b"), time.Minute)
	SetCached(ctx, ReportsPrefix+"all", []byte("c"), time.Minute)

	InvalidateMonth(ctx, "2024_03")

	assert.False(t, mr.Exists(MonthSummaryKey("2024_03")))
	assert.True(t, mr.Exists(MonthSummaryKey("2024_04")))
	assert.False(t, mr.Exists(ReportsPrefix+"all"))
}

func TestInvalidateRosterCaches(t *testing.T) {
	mr := setup(t)
	ctx := context.Background()

	SetCached(ctx, MonthSummaryKey("2024_03"), []byte("a"), time.Minute)
	SetCached(ctx, MonthSummaryKey("2024_04"), []byte("b"), time.Minute)
	SetCached(ctx, "other", []byte("c"), time.Minute)

	InvalidateRosterCaches(ctx)

	assert.Equal(t, []string{"other"}, mr.Keys())
	assert.True(t, IsHealthy(ctx))
}

func TestNilClientIsNoop(t *testing.T) {
	require.NoError(t, Init("", "", 0))
	ctx := context.Background()

	SetCached(ctx, "k", []byte("v"), time.Minute)
	_, ok := GetCached(ctx, "k")
	assert.False(t, ok)
	InvalidateRosterCaches(ctx)
	assert.False(t, IsHealthy(ctx))
}

func TestInitFailsOnUnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	assert.Error(t, Init(addr, "", 0))
	assert.Nil(t, GetClient())
}
