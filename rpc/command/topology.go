package command

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
)

// GetTopologyCommand fetches the topology of a database from a node.
type GetTopologyCommand struct {
	Database string
	timeout  time.Duration
}

// NewGetTopologyCommand creates a topology fetch, timeout 0 uses the executor default
func NewGetTopologyCommand(database string, timeout time.Duration) *GetTopologyCommand {
	return &GetTopologyCommand{Database: database, timeout: timeout}
}

func (c *GetTopologyCommand) Name() string           { return "GetTopology" }
func (c *GetTopologyCommand) IsReadRequest() bool    { return true }
func (c *GetTopologyCommand) Timeout() time.Duration { return c.timeout }

func (c *GetTopologyCommand) CreateRequest(node topology.Node) (*common.Request, error) {
	u := node.URL + common.TopologyPath + "?name=" + url.QueryEscape(c.Database)
	return common.NewRequest(http.MethodGet, u, nil), nil
}

func (c *GetTopologyCommand) ParseResponse(body []byte, _ bool) (*topology.Topology, error) {
	if err := requireBody(body, c.Name()); err != nil {
		return nil, err
	}
	var resp common.TopologyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseError(c.Name(), err)
	}
	t, err := topology.FromResponse(resp)
	if err != nil {
		return nil, parseError(c.Name(), err)
	}
	return t, nil
}
