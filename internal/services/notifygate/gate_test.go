package notifygate

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/GeoCore/internal/broker/messages"
	"github.com/BearBump/GeoCore/internal/cache/rediscache"
	"github.com/BearBump/GeoCore/internal/services/eta"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestGate_AcquireOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	g := New(rediscache.New(mr.Addr()), 0)
	ctx := context.Background()

	ok, err := g.Acquire(ctx, eta.TierSecond, messages.RoleWaybillCollector, "TR-42")
	require.NoError(t, err)
	require.True(t, ok)

	// Повторный проход по тому же окну — слот уже занят.
	ok, err = g.Acquire(ctx, eta.TierSecond, messages.RoleWaybillCollector, "TR-42")
	require.NoError(t, err)
	require.False(t, ok)

	// Другой уровень для того же рейса живёт отдельно.
	ok, err = g.Acquire(ctx, eta.TierFirst, messages.RoleWaybillCollector, "TR-42")
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, mr.Exists("secondNotif-waybillCollector-TR-42"))
	require.True(t, mr.Exists("firstNotif-waybillCollector-TR-42"))
}

func TestGate_ReleaseReopensSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	g := New(rediscache.New(mr.Addr()), time.Hour)
	ctx := context.Background()

	ok, err := g.Acquire(ctx, eta.TierFirst, messages.RoleWaybillCollector, "TR-1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.Release(ctx, eta.TierFirst, messages.RoleWaybillCollector, "TR-1"))

	ok, err = g.Acquire(ctx, eta.TierFirst, messages.RoleWaybillCollector, "TR-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGate_FailClosedOnCacheError(t *testing.T) {
	mr := miniredis.RunT(t)
	g := New(rediscache.New(mr.Addr()), 0)
	mr.Close()

	ok, err := g.Acquire(context.Background(), eta.TierFirst, messages.RoleWaybillCollector, "TR-1")
	require.Error(t, err)
	require.False(t, ok)
}
