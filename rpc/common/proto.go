package common

import (
	"encoding/json"
	"net/http"
)

// --------------------------------------------------------------------------
// Headers and endpoints
// --------------------------------------------------------------------------

const (
	// HeaderETag is set by the nodes on cacheable responses
	HeaderETag = "ETag"
	// HeaderIfNoneMatch carries the cached etag of a conditional GET
	HeaderIfNoneMatch = "If-None-Match"
	// HeaderRaftRequestID carries the client generated dedup id of idempotent writes
	HeaderRaftRequestID = "Raft-Request-Id"
	// HeaderRefreshTopology is set to "true" by a node after a membership change
	HeaderRefreshTopology = "Refresh-Topology"
	// HeaderTopologyIndex carries the topology index known to the client
	HeaderTopologyIndex = "Topology-Index"

	// TopologyPath is the well-known cluster endpoint serving the topology of a database
	TopologyPath = "/topology"
)

// --------------------------------------------------------------------------
// Request / Response
// --------------------------------------------------------------------------

// Request is a single HTTP request built by a command for a specific node.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest creates a new Request with an empty header set
func NewRequest(method, url string, body []byte) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Header: make(http.Header),
		Body:   body,
	}
}

// Response is the fully read response of a node.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// --------------------------------------------------------------------------
// Wire messages
// --------------------------------------------------------------------------

// TopologyNodeJson is a single node as sent by the topology endpoint
type TopologyNodeJson struct {
	Url        string `json:"Url"`
	ClusterTag string `json:"ClusterTag"`
	Database   string `json:"Database"`
	ServerRole string `json:"ServerRole"`
}

// StampJson is the version stamp of a topology
type StampJson struct {
	Index uint64 `json:"Index"`
	Term  uint64 `json:"Term"`
}

// TopologyResponse is the body of a successful topology fetch
type TopologyResponse struct {
	Nodes []TopologyNodeJson `json:"Nodes"`
	Stamp StampJson          `json:"Stamp"`
}

// DocumentResponse is the body of a document read
type DocumentResponse struct {
	Id    string          `json:"Id"`
	Etag  string          `json:"Etag"`
	Value json.RawMessage `json:"Value"`
}

// PutResponse is the body of a successful document write
type PutResponse struct {
	Id    string `json:"Id"`
	Etag  string `json:"Etag"`
	Index uint64 `json:"Index"`
}

// DeleteResponse is the body of a document delete
type DeleteResponse struct {
	Id      string `json:"Id"`
	Deleted bool   `json:"Deleted"`
	Index   uint64 `json:"Index"`
}

// CompareExchangeResponse is the body of every compare exchange operation
type CompareExchangeResponse struct {
	Successful bool            `json:"Successful"`
	Index      uint64          `json:"Index"`
	Value      json.RawMessage `json:"Value,omitempty"`
}

// ErrorResponse is the body of every non successful response
type ErrorResponse struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// NewErrorResponse creates the error body for the given kind
func NewErrorResponse(kind ErrorKind, message string) ErrorResponse {
	return ErrorResponse{
		Type:    kind.String(),
		Message: message,
	}
}
