package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Faults
// --------------------------------------------------------------------------

// FaultMode is the misbehavior injected into a node
type FaultMode uint32

const (
	FaultNone           FaultMode = iota
	FaultDrop                     // Close the connection without an answer
	FaultNotResponding            // 503 with a NodeNotResponding error
	FaultHang                     // Never answer, until the client gives up
	FaultInternalError            // Plain 500
	FaultMalformed                // 200 with a body that is not json
)

// String returns the name of the fault mode
func (f FaultMode) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultDrop:
		return "drop"
	case FaultNotResponding:
		return "not-responding"
	case FaultHang:
		return "hang"
	case FaultInternalError:
		return "internal-error"
	case FaultMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is one member of a Cluster and serves the HTTP api of the database.
type Node struct {
	tag     string
	cluster *Cluster
	mux     *http.ServeMux

	url   atomic.Value // string
	role  atomic.Uint32
	fault atomic.Uint32
	delay atomic.Int64

	requests *metrics.Counter
	canceled *metrics.Counter
	served   atomic.Uint64
	aborted  atomic.Uint64
}

func newNode(c *Cluster, tag string, role topology.ServerRole) *Node {
	n := &Node{
		tag:      tag,
		cluster:  c,
		mux:      http.NewServeMux(),
		requests: metrics.GetOrCreateCounter(fmt.Sprintf(`dclient_server_requests_total{database=%q,node=%q}`, c.database, tag)),
		canceled: metrics.GetOrCreateCounter(fmt.Sprintf(`dclient_server_canceled_total{database=%q,node=%q}`, c.database, tag)),
	}
	n.url.Store("")
	n.role.Store(uint32(role))

	n.mux.HandleFunc("GET "+common.TopologyPath, n.handleTopology)
	n.mux.HandleFunc("GET /databases/{db}/docs", n.withDatabase(n.handleGetDocument))
	n.mux.HandleFunc("PUT /databases/{db}/docs", n.withDatabase(n.handlePutDocument))
	n.mux.HandleFunc("DELETE /databases/{db}/docs", n.withDatabase(n.handleDeleteDocument))
	n.mux.HandleFunc("GET /databases/{db}/cmpxchg", n.withDatabase(n.handleGetCmpxchg))
	n.mux.HandleFunc("PUT /databases/{db}/cmpxchg", n.withDatabase(n.handlePutCmpxchg))
	n.mux.HandleFunc("DELETE /databases/{db}/cmpxchg", n.withDatabase(n.handleDeleteCmpxchg))
	return n
}

// Tag returns the cluster tag of the node
func (n *Node) Tag() string { return n.tag }

// URL returns the base url the node is served on
func (n *Node) URL() string { return n.url.Load().(string) }

// SetURL sets the base url of the node, called once it listens
func (n *Node) SetURL(u string) { n.url.Store(u) }

// Role returns the current role of the node
func (n *Node) Role() topology.ServerRole { return topology.ServerRole(n.role.Load()) }

// SetFault injects a fault into every following request
func (n *Node) SetFault(f FaultMode) {
	n.fault.Store(uint32(f))
	Logger.Infof("node %s fault: %s", n.tag, f)
}

// SetDelay delays every following answer
func (n *Node) SetDelay(d time.Duration) { n.delay.Store(int64(d)) }

// Requests returns the number of requests received by the node
func (n *Node) Requests() uint64 { return n.served.Load() }

// Aborted returns the number of requests the client canceled before they were answered
func (n *Node) Aborted() uint64 { return n.aborted.Load() }

// ServeHTTP implements http.Handler
func (n *Node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.served.Add(1)
	n.requests.Inc()

	// Delay and faults
	if d := time.Duration(n.delay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			n.abort()
			return
		}
	}

	switch FaultMode(n.fault.Load()) {
	case FaultDrop:
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	case FaultNotResponding:
		writeError(w, http.StatusServiceUnavailable, common.KindNodeNotResponding, fmt.Sprintf("node %s is not responding", n.tag))
		return
	case FaultHang:
		<-r.Context().Done()
		n.abort()
		return
	case FaultInternalError:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	case FaultMalformed:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>not json</html>"))
		return
	}

	// Ask the client to refresh if it knows an older topology
	if known := r.Header.Get(common.HeaderTopologyIndex); known != "" {
		if idx, err := strconv.ParseUint(known, 10, 64); err == nil && idx < n.cluster.stampIndex() {
			w.Header().Set(common.HeaderRefreshTopology, "true")
		}
	}

	n.mux.ServeHTTP(w, r)
}

func (n *Node) abort() {
	n.aborted.Add(1)
	n.canceled.Inc()
}

// withDatabase rejects requests for other databases
func (n *Node) withDatabase(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db := r.PathValue("db"); db != n.cluster.database {
			writeError(w, http.StatusNotFound, common.KindNotFound, fmt.Sprintf("database %s does not exist", db))
			return
		}
		next(w, r)
	}
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (n *Node) handleTopology(w http.ResponseWriter, r *http.Request) {
	n.cluster.topologyRequests.Add(1)
	if name := r.URL.Query().Get("name"); name != n.cluster.database {
		writeError(w, http.StatusNotFound, common.KindNotFound, fmt.Sprintf("database %s does not exist", name))
		return
	}
	writeJSON(w, http.StatusOK, n.cluster.Topology().ToResponse())
}

func (n *Node) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	d, ok := n.cluster.getDocument(id)
	if !ok {
		writeError(w, http.StatusNotFound, common.KindNotFound, fmt.Sprintf("document %s does not exist", id))
		return
	}
	if r.Header.Get(common.HeaderIfNoneMatch) == d.etag {
		w.Header().Set(common.HeaderETag, d.etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set(common.HeaderETag, d.etag)
	writeJSON(w, http.StatusOK, common.DocumentResponse{Id: id, Etag: d.etag, Value: d.value})
}

func (n *Node) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}
	status, resp := n.cluster.putDocument(r.Header.Get(common.HeaderRaftRequestID), id, r.Header.Get("If-Match"), body)
	writeRaw(w, status, resp)
}

func (n *Node) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	status, resp := n.cluster.deleteDocument(r.Header.Get(common.HeaderRaftRequestID), id, r.Header.Get("If-Match"))
	writeRaw(w, status, resp)
}

func (n *Node) handleGetCmpxchg(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	e, ok := n.cluster.getCmpxchg(key)
	if !ok {
		writeError(w, http.StatusNotFound, common.KindNotFound, fmt.Sprintf("compare exchange key %s does not exist", key))
		return
	}
	writeJSON(w, http.StatusOK, common.CompareExchangeResponse{Successful: true, Index: e.index, Value: e.value})
}

func (n *Node) handlePutCmpxchg(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}
	status, resp := n.cluster.putCmpxchg(r.Header.Get(common.HeaderRaftRequestID), key, index, body)
	writeRaw(w, status, resp)
}

func (n *Node) handleDeleteCmpxchg(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}
	status, resp := n.cluster.deleteCmpxchg(r.Header.Get(common.HeaderRaftRequestID), key, index)
	writeRaw(w, status, resp)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseIndex(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(r.URL.Query().Get("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, common.KindBadRequest, "invalid index: "+err.Error())
		return 0, false
	}
	return index, true
}

func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, common.KindBadRequest, "failed to read body: "+err.Error())
		return nil, false
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, common.KindBadRequest, "body is not valid json")
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, common.KindUnknown, err.Error())
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		Logger.Debugf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind common.ErrorKind, message string) {
	status, body := errorBody(status, kind, message)
	writeRaw(w, status, body)
}
