package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("server")

// --------------------------------------------------------------------------
// Replicated state
// --------------------------------------------------------------------------

type document struct {
	value json.RawMessage
	etag  string
	index uint64
}

type cmpxchgEntry struct {
	value json.RawMessage
	index uint64
}

// applied is the stored answer of a raft command, returned again for retries
type applied struct {
	status int
	body   []byte
}

// Cluster is an in-memory cluster serving one database from several nodes. All nodes
// share the same replicated state, writes are applied once per raft request id.
type Cluster struct {
	database string

	// mu guards the replicated state and the membership
	mu      sync.Mutex
	docs    map[string]document
	cmpxchg map[string]cmpxchgEntry
	index   uint64
	order   []string
	stamp   topology.Stamp

	nodes   *xsync.MapOf[string, *Node]
	applied *xsync.MapOf[string, applied]

	leaderAvailable  atomic.Bool
	applies          atomic.Uint64
	topologyRequests atomic.Uint64
}

// NewCluster creates an empty cluster with a leader
func NewCluster(database string) *Cluster {
	c := &Cluster{
		database: database,
		docs:     make(map[string]document),
		cmpxchg:  make(map[string]cmpxchgEntry),
		stamp:    topology.Stamp{Term: 1},
		nodes:    xsync.NewMapOf[string, *Node](),
		applied:  xsync.NewMapOf[string, applied](),
	}
	c.leaderAvailable.Store(true)
	return c
}

// Database returns the name of the served database
func (c *Cluster) Database() string {
	return c.database
}

// --------------------------------------------------------------------------
// Membership
// --------------------------------------------------------------------------

// AddNode adds a node with the given tag and role. The node gets its url once it is served.
func (c *Cluster) AddNode(tag string, role topology.ServerRole) *Node {
	n := newNode(c, tag, role)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.nodes.Load(tag); !exists {
		c.order = append(c.order, tag)
	}
	c.nodes.Store(tag, n)
	c.stamp.Index++
	Logger.Infof("node %s joined as %s, topology %s", tag, role, c.stamp)
	return n
}

// RemoveNode removes the node from the topology, it keeps answering requests
func (c *Cluster) RemoveNode(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range c.order {
		if t == tag {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.stamp.Index++
			Logger.Infof("node %s left, topology %s", tag, c.stamp)
			return
		}
	}
}

// SetRole changes the role of a node
func (c *Cluster) SetRole(tag string, role topology.ServerRole) {
	n, ok := c.nodes.Load(tag)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n.role.Store(uint32(role))
	c.stamp.Index++
}

// NewTerm starts a new term, which bumps the topology stamp
func (c *Cluster) NewTerm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stamp.Term++
	c.stamp.Index = 0
}

// Node returns the node with the tag
func (c *Cluster) Node(tag string) (*Node, bool) {
	return c.nodes.Load(tag)
}

// Topology returns the current topology of the cluster
func (c *Cluster) Topology() *topology.Topology {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &topology.Topology{Stamp: c.stamp}
	for _, tag := range c.order {
		n, ok := c.nodes.Load(tag)
		if !ok {
			continue
		}
		t.Nodes = append(t.Nodes, topology.Node{
			URL:        n.URL(),
			ClusterTag: tag,
			Database:   c.database,
			ServerRole: n.Role(),
		})
	}
	return t
}

// stampIndex returns the index of the current topology stamp
func (c *Cluster) stampIndex() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stamp.Index
}

// --------------------------------------------------------------------------
// Leader and statistics
// --------------------------------------------------------------------------

// SetLeaderAvailable switches whether writes are accepted
func (c *Cluster) SetLeaderAvailable(ok bool) {
	c.leaderAvailable.Store(ok)
	Logger.Infof("leader available: %t", ok)
}

// Applies returns the number of state changes applied by the cluster
func (c *Cluster) Applies() uint64 {
	return c.applies.Load()
}

// TopologyRequests returns the number of topology requests served by all nodes
func (c *Cluster) TopologyRequests() uint64 {
	return c.topologyRequests.Load()
}

// Document returns the stored value and etag of a document
func (c *Cluster) Document(id string) (json.RawMessage, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[id]
	return d.value, d.etag, ok
}

// --------------------------------------------------------------------------
// Commands (applied under the cluster lock)
// --------------------------------------------------------------------------

// write applies fn exactly once per raft id. Retries of an applied id get the
// stored answer without changing the state again.
func (c *Cluster) write(raftId string, fn func() (int, any)) (int, []byte) {
	if !c.leaderAvailable.Load() {
		return errorBody(http.StatusServiceUnavailable, common.KindLeaderUnavailable, common.NoLeaderMessage)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if raftId != "" {
		if prev, ok := c.applied.Load(raftId); ok {
			Logger.Debugf("raft command %s already applied", raftId)
			return prev.status, prev.body
		}
	}

	status, resp := fn()
	body, err := json.Marshal(resp)
	if err != nil {
		return errorBody(http.StatusInternalServerError, common.KindUnknown, err.Error())
	}
	if raftId != "" {
		c.applied.Store(raftId, applied{status: status, body: body})
	}
	return status, body
}

func (c *Cluster) getDocument(id string) (document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.docs[id]
	return d, ok
}

func (c *Cluster) putDocument(raftId, id, ifMatch string, value json.RawMessage) (int, []byte) {
	return c.write(raftId, func() (int, any) {
		cur, exists := c.docs[id]
		if ifMatch != "" && (!exists || cur.etag != ifMatch) {
			return http.StatusConflict, common.NewErrorResponse(common.KindConflict,
				fmt.Sprintf("optimistic concurrency violation on %s: expected etag %s", id, ifMatch))
		}
		c.index++
		c.applies.Add(1)
		d := document{value: value, etag: strconv.FormatUint(c.index, 10), index: c.index}
		c.docs[id] = d
		return http.StatusOK, common.PutResponse{Id: id, Etag: d.etag, Index: d.index}
	})
}

func (c *Cluster) deleteDocument(raftId, id, ifMatch string) (int, []byte) {
	return c.write(raftId, func() (int, any) {
		cur, exists := c.docs[id]
		if ifMatch != "" && (!exists || cur.etag != ifMatch) {
			return http.StatusConflict, common.NewErrorResponse(common.KindConflict,
				fmt.Sprintf("optimistic concurrency violation on %s: expected etag %s", id, ifMatch))
		}
		if !exists {
			return http.StatusOK, common.DeleteResponse{Id: id, Deleted: false, Index: c.index}
		}
		c.index++
		c.applies.Add(1)
		delete(c.docs, id)
		return http.StatusOK, common.DeleteResponse{Id: id, Deleted: true, Index: c.index}
	})
}

func (c *Cluster) getCmpxchg(key string) (cmpxchgEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cmpxchg[key]
	return e, ok
}

func (c *Cluster) putCmpxchg(raftId, key string, index uint64, value json.RawMessage) (int, []byte) {
	return c.write(raftId, func() (int, any) {
		cur := c.cmpxchg[key]
		if cur.index != index {
			return http.StatusOK, common.CompareExchangeResponse{Successful: false, Index: cur.index, Value: cur.value}
		}
		c.index++
		c.applies.Add(1)
		c.cmpxchg[key] = cmpxchgEntry{value: value, index: c.index}
		return http.StatusOK, common.CompareExchangeResponse{Successful: true, Index: c.index, Value: value}
	})
}

func (c *Cluster) deleteCmpxchg(raftId, key string, index uint64) (int, []byte) {
	return c.write(raftId, func() (int, any) {
		cur, exists := c.cmpxchg[key]
		if !exists || cur.index != index {
			return http.StatusOK, common.CompareExchangeResponse{Successful: false, Index: cur.index, Value: cur.value}
		}
		c.index++
		c.applies.Add(1)
		delete(c.cmpxchg, key)
		return http.StatusOK, common.CompareExchangeResponse{Successful: true, Index: c.index, Value: cur.value}
	})
}

// errorBody returns the status and json body of an error response
func errorBody(status int, kind common.ErrorKind, message string) (int, []byte) {
	body, _ := json.Marshal(common.NewErrorResponse(kind, message))
	return status, body
}
