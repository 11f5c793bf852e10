package command

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/ValentinKolb/dClient/lib/topology"
	"github.com/ValentinKolb/dClient/rpc/common"
)

// Document is a stored json document and its current etag
type Document struct {
	Id        string
	Etag      string
	Value     json.RawMessage
	FromCache bool
}

// documentURL returns the url of a document on the node
func documentURL(node topology.Node, id string) string {
	return node.URL + "/databases/" + url.PathEscape(node.Database) + "/docs?id=" + url.QueryEscape(id)
}

// --------------------------------------------------------------------------
// Get
// --------------------------------------------------------------------------

// GetDocumentCommand reads a document. A missing document yields a nil result.
type GetDocumentCommand struct {
	Id      string
	timeout time.Duration
}

func NewGetDocumentCommand(id string) *GetDocumentCommand {
	return &GetDocumentCommand{Id: id}
}

// WithTimeout sets the per attempt timeout
func (c *GetDocumentCommand) WithTimeout(d time.Duration) *GetDocumentCommand {
	c.timeout = d
	return c
}

func (c *GetDocumentCommand) Name() string           { return "GetDocument" }
func (c *GetDocumentCommand) IsReadRequest() bool    { return true }
func (c *GetDocumentCommand) Timeout() time.Duration { return c.timeout }

func (c *GetDocumentCommand) CreateRequest(node topology.Node) (*common.Request, error) {
	return common.NewRequest(http.MethodGet, documentURL(node, c.Id), nil), nil
}

func (c *GetDocumentCommand) ParseResponse(body []byte, fromCache bool) (*Document, error) {
	if body == nil {
		return nil, nil
	}
	if err := requireBody(body, c.Name()); err != nil {
		return nil, err
	}
	var resp common.DocumentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseError(c.Name(), err)
	}
	return &Document{
		Id:        resp.Id,
		Etag:      resp.Etag,
		Value:     resp.Value,
		FromCache: fromCache,
	}, nil
}

// --------------------------------------------------------------------------
// Put
// --------------------------------------------------------------------------

// PutDocumentCommand stores a document. If Etag is set the write only succeeds if the
// stored document still has that etag (Conflict otherwise).
type PutDocumentCommand struct {
	Id     string
	Value  json.RawMessage
	Etag   string
	raftId string
}

func NewPutDocumentCommand(id string, value json.RawMessage, etag string) *PutDocumentCommand {
	return &PutDocumentCommand{
		Id:     id,
		Value:  value,
		Etag:   etag,
		raftId: NewRaftRequestId(),
	}
}

func (c *PutDocumentCommand) Name() string                { return "PutDocument" }
func (c *PutDocumentCommand) IsReadRequest() bool         { return false }
func (c *PutDocumentCommand) Timeout() time.Duration      { return 0 }
func (c *PutDocumentCommand) RaftUniqueRequestId() string { return c.raftId }

func (c *PutDocumentCommand) CreateRequest(node topology.Node) (*common.Request, error) {
	if !json.Valid(c.Value) {
		return nil, common.NewExecutionError(common.KindBadRequest, "document value is not valid json", nil)
	}
	req := common.NewRequest(http.MethodPut, documentURL(node, c.Id), c.Value)
	req.Header.Set("Content-Type", "application/json")
	if c.Etag != "" {
		req.Header.Set("If-Match", c.Etag)
	}
	return req, nil
}

func (c *PutDocumentCommand) ParseResponse(body []byte, _ bool) (common.PutResponse, error) {
	var resp common.PutResponse
	if err := requireBody(body, c.Name()); err != nil {
		return resp, err
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, parseError(c.Name(), err)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

// DeleteDocumentCommand deletes a document, deleting a missing document succeeds
// with Deleted set to false.
type DeleteDocumentCommand struct {
	Id     string
	Etag   string
	raftId string
}

func NewDeleteDocumentCommand(id string, etag string) *DeleteDocumentCommand {
	return &DeleteDocumentCommand{
		Id:     id,
		Etag:   etag,
		raftId: NewRaftRequestId(),
	}
}

func (c *DeleteDocumentCommand) Name() string                { return "DeleteDocument" }
func (c *DeleteDocumentCommand) IsReadRequest() bool         { return false }
func (c *DeleteDocumentCommand) Timeout() time.Duration      { return 0 }
func (c *DeleteDocumentCommand) RaftUniqueRequestId() string { return c.raftId }

func (c *DeleteDocumentCommand) CreateRequest(node topology.Node) (*common.Request, error) {
	req := common.NewRequest(http.MethodDelete, documentURL(node, c.Id), nil)
	if c.Etag != "" {
		req.Header.Set("If-Match", c.Etag)
	}
	return req, nil
}

func (c *DeleteDocumentCommand) ParseResponse(body []byte, _ bool) (common.DeleteResponse, error) {
	var resp common.DeleteResponse
	if err := requireBody(body, c.Name()); err != nil {
		return resp, err
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, parseError(c.Name(), err)
	}
	return resp, nil
}
