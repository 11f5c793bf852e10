package command

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
)

// CompareExchangeValue is a cluster wide compare exchange entry
type CompareExchangeValue struct {
	Key   string
	Index uint64
	Value json.RawMessage
}

// CompareExchangeResult is the outcome of a compare exchange write
type CompareExchangeResult struct {
	Successful bool
	Index      uint64
	Value      json.RawMessage
}

func cmpxchgURL(node topology.Node, key string, index *uint64) string {
	u := node.URL + "/databases/" + url.PathEscape(node.Database) + "/cmpxchg?key=" + url.QueryEscape(key)
	if index != nil {
		u += "&index=" + strconv.FormatUint(*index, 10)
	}
	return u
}

func parseCmpxchgResult(name string, body []byte) (CompareExchangeResult, error) {
	var resp common.CompareExchangeResponse
	if err := requireBody(body, name); err != nil {
		return CompareExchangeResult{}, err
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return CompareExchangeResult{}, parseError(name, err)
	}
	return CompareExchangeResult{
		Successful: resp.Successful,
		Index:      resp.Index,
		Value:      resp.Value,
	}, nil
}

// --------------------------------------------------------------------------
// Get
// --------------------------------------------------------------------------

// GetCompareExchangeCommand reads a compare exchange value, a missing key yields nil.
type GetCompareExchangeCommand struct {
	Key string
}

func NewGetCompareExchangeCommand(key string) *GetCompareExchangeCommand {
	return &GetCompareExchangeCommand{Key: key}
}

func (c *GetCompareExchangeCommand) Name() string           { return "GetCompareExchange" }
func (c *GetCompareExchangeCommand) IsReadRequest() bool    { return true }
func (c *GetCompareExchangeCommand) Timeout() time.Duration { return 0 }

func (c *GetCompareExchangeCommand) CreateRequest(node topology.Node) (*common.Request, error) {
	return common.NewRequest(http.MethodGet, cmpxchgURL(node, c.Key, nil), nil), nil
}

func (c *GetCompareExchangeCommand) ParseResponse(body []byte, _ bool) (*CompareExchangeValue, error) {
	if body == nil {
		return nil, nil
	}
	res, err := parseCmpxchgResult(c.Name(), body)
	if err != nil {
		return nil, err
	}
	return &CompareExchangeValue{Key: c.Key, Index: res.Index, Value: res.Value}, nil
}

// --------------------------------------------------------------------------
// Put
// --------------------------------------------------------------------------

// PutCompareExchangeCommand writes the value if the current index of the key equals
// Index. Index 0 only succeeds if the key does not exist.
type PutCompareExchangeCommand struct {
	Key    string
	Value  json.RawMessage
	Index  uint64
	raftId string
}

func NewPutCompareExchangeCommand(key string, value json.RawMessage, index uint64) *PutCompareExchangeCommand {
	return &PutCompareExchangeCommand{
		Key:    key,
		Value:  value,
		Index:  index,
		raftId: NewRaftRequestId(),
	}
}

func (c *PutCompareExchangeCommand) Name() string                { return "PutCompareExchange" }
func (c *PutCompareExchangeCommand) IsReadRequest() bool         { return false }
func (c *PutCompareExchangeCommand) Timeout() time.Duration      { return 0 }
func (c *PutCompareExchangeCommand) RaftUniqueRequestId() string { return c.raftId }

func (c *PutCompareExchangeCommand) CreateRequest(node topology.Node) (*common.Request, error) {
	if !json.Valid(c.Value) {
		return nil, common.NewExecutionError(common.KindBadRequest, "compare exchange value is not valid json", nil)
	}
	req := common.NewRequest(http.MethodPut, cmpxchgURL(node, c.Key, &c.Index), c.Value)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *PutCompareExchangeCommand) ParseResponse(body []byte, _ bool) (CompareExchangeResult, error) {
	return parseCmpxchgResult(c.Name(), body)
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

// DeleteCompareExchangeCommand deletes the key if its current index equals Index.
type DeleteCompareExchangeCommand struct {
	Key    string
	Index  uint64
	raftId string
}

func NewDeleteCompareExchangeCommand(key string, index uint64) *DeleteCompareExchangeCommand {
	return &DeleteCompareExchangeCommand{
		Key:    key,
		Index:  index,
		raftId: NewRaftRequestId(),
	}
}

func (c *DeleteCompareExchangeCommand) Name() string                { return "DeleteCompareExchange" }
func (c *DeleteCompareExchangeCommand) IsReadRequest() bool         { return false }
func (c *DeleteCompareExchangeCommand) Timeout() time.Duration      { return 0 }
func (c *DeleteCompareExchangeCommand) RaftUniqueRequestId() string { return c.raftId }

func (c *DeleteCompareExchangeCommand) CreateRequest(node topology.Node) (*common.Request, error) {
	return common.NewRequest(http.MethodDelete, cmpxchgURL(node, c.Key, &c.Index), nil), nil
}

func (c *DeleteCompareExchangeCommand) ParseResponse(body []byte, _ bool) (CompareExchangeResult, error) {
	return parseCmpxchgResult(c.Name(), body)
}
