package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/ValentinKolb/dClient/rpc/executor"
	"github.com/ValentinKolb/dClient/rpc/server"
	transporthttp "github.com/ValentinKolb/dClient/rpc/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, lc *server.LocalCluster) *executor.RequestExecutor {
	t.Helper()
	conf := common.DefaultClientConfig("db", lc.URLs()...)
	conf.RequestTimeout = 2 * time.Second
	conf.Backoff = common.BackoffConfig{InitialInterval: 10 * time.Millisecond, MaxInterval: 100 * time.Millisecond, Multiplier: 2}
	e, err := executor.NewRequestExecutor(conf, transporthttp.NewHttpClientTransport())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.UpdateTopology(context.Background()))
	return e
}

func TestStore(t *testing.T) {
	lc := server.StartLocal("db", "A", "B", "C")
	defer lc.Close()
	s := NewRPCStore(newTestExecutor(t, lc))
	ctx := context.Background()

	has, err := s.Has(ctx, "users/1")
	require.NoError(t, err)
	assert.False(t, has)

	etag, err := s.Put(ctx, "users/1", json.RawMessage(`{"name":"ada"}`), "")
	require.NoError(t, err)
	require.NotEmpty(t, etag)

	doc, loaded, err := s.Get(ctx, "users/1")
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Equal(t, etag, doc.Etag)
	assert.JSONEq(t, `{"name":"ada"}`, string(doc.Value))

	// second read is answered from the cache
	doc, _, err = s.Get(ctx, "users/1")
	require.NoError(t, err)
	assert.True(t, doc.FromCache)

	// stale etag
	_, err = s.Put(ctx, "users/1", json.RawMessage(`{}`), "0")
	assert.ErrorIs(t, err, common.ErrConflict)

	newEtag, err := s.Put(ctx, "users/1", json.RawMessage(`{"name":"grace"}`), etag)
	require.NoError(t, err)
	assert.NotEqual(t, etag, newEtag)

	deleted, err := s.Delete(ctx, "users/1", newEtag)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(ctx, "users/1", "")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, loaded, err = s.Get(ctx, "users/1")
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestStoreFailover(t *testing.T) {
	lc := server.StartLocal("db", "A", "B")
	defer lc.Close()
	s := NewRPCStore(newTestExecutor(t, lc))
	ctx := context.Background()

	lc.MustNode("A").SetFault(server.FaultDrop)
	_, err := s.Put(ctx, "x", json.RawMessage(`1`), "")
	require.NoError(t, err)

	has, err := s.Has(ctx, "x")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestCompareExchange(t *testing.T) {
	for _, broadcast := range []bool{false, true} {
		t.Run(map[bool]string{false: "failover", true: "broadcast"}[broadcast], func(t *testing.T) {
			lc := server.StartLocal("db", "A", "B", "C")
			defer lc.Close()
			c := NewRPCCompareExchange(newTestExecutor(t, lc), broadcast)
			ctx := context.Background()

			_, _, loaded, err := c.GetCompareExchange(ctx, "k")
			require.NoError(t, err)
			assert.False(t, loaded)

			ok, index, err := c.PutCompareExchange(ctx, "k", json.RawMessage(`"v1"`), 0)
			require.NoError(t, err)
			require.True(t, ok)

			ok, _, err = c.PutCompareExchange(ctx, "k", json.RawMessage(`"v2"`), 0)
			require.NoError(t, err)
			assert.False(t, ok, "wrong index")

			value, cur, loaded, err := c.GetCompareExchange(ctx, "k")
			require.NoError(t, err)
			require.True(t, loaded)
			assert.Equal(t, index, cur)
			assert.JSONEq(t, `"v1"`, string(value))

			ok, err = c.DeleteCompareExchange(ctx, "k", index)
			require.NoError(t, err)
			assert.True(t, ok)

			assert.Equal(t, uint64(2), lc.Applies(), "every write is applied once")
		})
	}
}

func TestLockMgr(t *testing.T) {
	lc := server.StartLocal("db", "A", "B", "C")
	defer lc.Close()
	e := newTestExecutor(t, lc)
	first := NewRPCLockMgr(e, true)
	second := NewRPCLockMgr(e, false)
	ctx := context.Background()

	ok, owner, err := first.AcquireLock(ctx, "locks/a", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = second.AcquireLock(ctx, "locks/a", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// the lock survives a failing node
	lc.MustNode("A").SetFault(server.FaultNotResponding)
	ok, err = second.ReleaseLock(ctx, "locks/a", "not-the-owner")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = first.ReleaseLock(ctx, "locks/a", owner)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = second.AcquireLock(ctx, "locks/a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
