package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/ValentinKolb/dClient/rpc/transport"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	client   atomic.Pointer[http.Client]
	maxBytes int64
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	tlsConfig, err := loadTLSConfig(config.TLS)
	if err != nil {
		return err
	}

	maxIdlePerHost := config.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = 16
	}

	t.maxBytes = config.MaxResponseBytes
	if t.maxBytes <= 0 {
		t.maxBytes = common.DefaultClientConfig(config.Database).MaxResponseBytes
	}

	// Create client with a pooled transport, timeouts are set per request
	t.client.Store(&http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: maxIdlePerHost,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig:     tlsConfig,
			ForceAttemptHTTP2:   tlsConfig != nil,
		},
	})
	return nil
}

func (t *httpClientTransport) Send(ctx context.Context, req *common.Request) (*common.Response, error) {
	// Check if the transport is initialized
	client := t.client.Load()
	if client == nil {
		return nil, fmt.Errorf("http transport not initialized")
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpRequest.Header.Add(name, v)
		}
	}

	httpResponse, err := client.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	// Read the response body, one byte more than allowed to detect oversized bodies
	respBody, err := io.ReadAll(io.LimitReader(httpResponse.Body, t.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(respBody)) > t.maxBytes {
		return nil, fmt.Errorf("response body of %s exceeds %d bytes", req.URL, t.maxBytes)
	}

	return &common.Response{
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       respBody,
	}, nil
}

func (t *httpClientTransport) Close() error {
	if client := t.client.Swap(nil); client != nil {
		client.CloseIdleConnections()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// loadTLSConfig builds the client tls config for mutual TLS, nil if TLS is not configured
func loadTLSConfig(c common.TLSConfig) (*tls.Config, error) {
	if c.Config != nil {
		return c.Config.Clone(), nil
	}
	if !c.Enabled() {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.CertFile != "" || c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
