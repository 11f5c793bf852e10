package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, method, url string, body []byte, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestTopologyEndpoint(t *testing.T) {
	lc := StartLocal("db", "A", "B")
	defer lc.Close()

	resp, body := do(t, http.MethodGet, lc.MustNode("A").URL()+"/topology?name=db", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var top common.TopologyResponse
	require.NoError(t, json.Unmarshal(body, &top))
	require.Len(t, top.Nodes, 2)
	assert.Equal(t, "A", top.Nodes[0].ClusterTag)
	assert.Equal(t, lc.MustNode("B").URL(), top.Nodes[1].Url)
	assert.Equal(t, uint64(2), top.Stamp.Index)
	assert.Equal(t, uint64(1), lc.TopologyRequests())

	resp, _ = do(t, http.MethodGet, lc.MustNode("A").URL()+"/topology?name=other", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDocumentsWithETags(t *testing.T) {
	lc := StartLocal("db", "A", "B")
	defer lc.Close()
	a, b := lc.MustNode("A").URL(), lc.MustNode("B").URL()

	resp, body := do(t, http.MethodPut, a+"/databases/db/docs?id=x", []byte(`{"Value":42}`), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var put common.PutResponse
	require.NoError(t, json.Unmarshal(body, &put))

	// every node serves the replicated state
	resp, body = do(t, http.MethodGet, b+"/databases/db/docs?id=x", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, put.Etag, resp.Header.Get(common.HeaderETag))
	assert.Contains(t, string(body), `"Value":{"Value":42}`)

	resp, body = do(t, http.MethodGet, b+"/databases/db/docs?id=x", nil, map[string]string{common.HeaderIfNoneMatch: put.Etag})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	assert.Empty(t, body)

	resp, _ = do(t, http.MethodPut, a+"/databases/db/docs?id=x", []byte(`{}`), map[string]string{"If-Match": "stale"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, a+"/databases/db/docs?id=missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, a+"/databases/db/docs?id=y", []byte(`{broken`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRaftRequestsAreAppliedOnce(t *testing.T) {
	lc := StartLocal("db", "A", "B", "C")
	defer lc.Close()

	header := map[string]string{common.HeaderRaftRequestID: "raft-1"}
	var bodies [][]byte
	for _, tag := range []string{"A", "B", "C"} {
		resp, body := do(t, http.MethodPut, lc.MustNode(tag).URL()+"/databases/db/docs?id=x", []byte(`{"n":1}`), header)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		bodies = append(bodies, body)
	}

	assert.Equal(t, uint64(1), lc.Applies())
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
}

func TestLeaderUnavailable(t *testing.T) {
	lc := StartLocal("db", "A")
	defer lc.Close()
	lc.SetLeaderAvailable(false)

	resp, body := do(t, http.MethodPut, lc.MustNode("A").URL()+"/databases/db/docs?id=x", []byte(`{}`), nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var e common.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "LeaderUnavailable", e.Type)
	assert.Equal(t, common.NoLeaderMessage, e.Message)

	// reads do not need a leader
	resp, _ = do(t, http.MethodGet, lc.MustNode("A").URL()+"/databases/db/docs?id=x", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompareExchange(t *testing.T) {
	lc := StartLocal("db", "A")
	defer lc.Close()
	url := lc.MustNode("A").URL() + "/databases/db/cmpxchg?key=lock"

	_, body := do(t, http.MethodPut, url+"&index=0", []byte(`"owner-1"`), nil)
	var res common.CompareExchangeResponse
	require.NoError(t, json.Unmarshal(body, &res))
	require.True(t, res.Successful)

	_, body = do(t, http.MethodPut, url+"&index=0", []byte(`"owner-2"`), nil)
	var second common.CompareExchangeResponse
	require.NoError(t, json.Unmarshal(body, &second))
	assert.False(t, second.Successful)
	assert.Equal(t, res.Index, second.Index)
	assert.JSONEq(t, `"owner-1"`, string(second.Value))

	resp, _ := do(t, http.MethodPut, url+"&index=abc", []byte(`1`), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFaultsAndRefreshHeader(t *testing.T) {
	lc := StartLocal("db", "A")
	defer lc.Close()
	a := lc.MustNode("A")

	a.SetFault(FaultNotResponding)
	resp, body := do(t, http.MethodGet, a.URL()+"/topology?name=db", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "NodeNotResponding")

	a.SetFault(FaultDrop)
	_, err := http.Get(a.URL() + "/topology?name=db")
	assert.Error(t, err)

	a.SetFault(FaultNone)
	lc.StartNode("B", topology.RolePromotable)
	resp, _ = do(t, http.MethodGet, a.URL()+"/databases/db/docs?id=x", nil, map[string]string{common.HeaderTopologyIndex: "1"})
	assert.Equal(t, "true", resp.Header.Get(common.HeaderRefreshTopology))

	assert.GreaterOrEqual(t, a.Requests(), uint64(3))
}
