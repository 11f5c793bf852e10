package topology

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dClient/rpc/common"
)

// --------------------------------------------------------------------------
// Server Role
// --------------------------------------------------------------------------

// ServerRole is the role of a node inside the consensus group of a database.
type ServerRole uint8

const (
	RoleMember     ServerRole = iota // Full voting member, may accept writes
	RolePromotable                   // Catching up, will become a member
	RoleRehab                        // Was a member, currently recovering
)

// String returns the wire name of the role
func (r ServerRole) String() string {
	switch r {
	case RoleMember:
		return "Member"
	case RolePromotable:
		return "Promotable"
	case RoleRehab:
		return "Rehab"
	default:
		return "Unknown"
	}
}

// ParseServerRole converts a wire name to a ServerRole
func ParseServerRole(s string) (ServerRole, error) {
	switch strings.ToLower(s) {
	case "member", "":
		return RoleMember, nil
	case "promotable":
		return RolePromotable, nil
	case "rehab":
		return RoleRehab, nil
	default:
		return RoleMember, fmt.Errorf("unknown server role: %s", s)
	}
}

// MarshalJSON implements the json.Marshaller interface for ServerRole.
func (r ServerRole) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for ServerRole.
func (r *ServerRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	role, err := ParseServerRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is an immutable descriptor of a cluster node serving one database.
type Node struct {
	URL        string
	ClusterTag string
	Database   string
	ServerRole ServerRole
}

// Key returns the identity of the node, which is (url, database)
func (n Node) Key() string {
	return n.URL + "|" + n.Database
}

// IsMember reports whether the node is a full member of the consensus group
func (n Node) IsMember() bool {
	return n.ServerRole == RoleMember
}

func (n Node) String() string {
	if n.ClusterTag == "" {
		return n.URL
	}
	return fmt.Sprintf("%s (%s)", n.URL, n.ClusterTag)
}

// --------------------------------------------------------------------------
// Stamp
// --------------------------------------------------------------------------

// Stamp is the monotonic version of a topology.
type Stamp struct {
	Index uint64
	Term  uint64
}

// Before reports whether s is strictly older than other (term first, then index)
func (s Stamp) Before(other Stamp) bool {
	if s.Term != other.Term {
		return s.Term < other.Term
	}
	return s.Index < other.Index
}

func (s Stamp) String() string {
	return fmt.Sprintf("%d/%d", s.Term, s.Index)
}

// --------------------------------------------------------------------------
// Topology
// --------------------------------------------------------------------------

// Topology is an ordered set of nodes (order encodes preference) plus its stamp.
// A Topology is never modified after it was published.
type Topology struct {
	Nodes []Node
	Stamp Stamp
}

// Len returns the number of nodes
func (t *Topology) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Nodes)
}

// Members returns the nodes with the Member role, in topology order
func (t *Topology) Members() []Node {
	members := make([]Node, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.IsMember() {
			members = append(members, n)
		}
	}
	return members
}

// Find returns the node with the given key
func (t *Topology) Find(key string) (Node, bool) {
	for _, n := range t.Nodes {
		if n.Key() == key {
			return n, true
		}
	}
	return Node{}, false
}

// FromResponse converts a topology fetch response into a Topology.
func FromResponse(resp common.TopologyResponse) (*Topology, error) {
	nodes := make([]Node, 0, len(resp.Nodes))
	for i, n := range resp.Nodes {
		if n.Url == "" {
			return nil, fmt.Errorf("node %d has no url", i)
		}
		role, err := ParseServerRole(n.ServerRole)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.Url, err)
		}
		nodes = append(nodes, Node{
			URL:        strings.TrimRight(n.Url, "/"),
			ClusterTag: n.ClusterTag,
			Database:   n.Database,
			ServerRole: role,
		})
	}
	return &Topology{
		Nodes: nodes,
		Stamp: Stamp{Index: resp.Stamp.Index, Term: resp.Stamp.Term},
	}, nil
}

// ToResponse converts the topology into its wire representation
func (t *Topology) ToResponse() common.TopologyResponse {
	resp := common.TopologyResponse{
		Nodes: make([]common.TopologyNodeJson, 0, len(t.Nodes)),
		Stamp: common.StampJson{Index: t.Stamp.Index, Term: t.Stamp.Term},
	}
	for _, n := range t.Nodes {
		resp.Nodes = append(resp.Nodes, common.TopologyNodeJson{
			Url:        n.URL,
			ClusterTag: n.ClusterTag,
			Database:   n.Database,
			ServerRole: n.ServerRole.String(),
		})
	}
	return resp
}

// SeedTopology builds the initial topology from the configured urls. All seeds are
// assumed to be members, the stamp is zero so any fetched topology replaces it.
func SeedTopology(database string, urls []string) *Topology {
	nodes := make([]Node, 0, len(urls))
	for i, u := range urls {
		nodes = append(nodes, Node{
			URL:        u,
			ClusterTag: fmt.Sprintf("seed-%d", i),
			Database:   database,
			ServerRole: RoleMember,
		})
	}
	return &Topology{Nodes: nodes}
}
