package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsRequestAndReadsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "abc", r.Header.Get(common.HeaderRaftRequestID))
		assert.Equal(t, "/docs", r.URL.Path)
		w.Header().Set(common.HeaderETag, "E1")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write(append([]byte("echo:"), body...))
	}))
	defer srv.Close()

	tr := NewHttpClientTransport()
	require.NoError(t, tr.Connect(common.DefaultClientConfig("db", srv.URL)))
	defer tr.Close()

	req := common.NewRequest(http.MethodPut, srv.URL+"/docs", []byte("payload"))
	req.Header.Set(common.HeaderRaftRequestID, "abc")

	resp, err := tr.Send(context.Background(), req)
	require.NoError(t, err, "non 2xx responses are not transport errors")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "E1", resp.Header.Get(common.HeaderETag))
	assert.Equal(t, "echo:payload", string(resp.Body))
}

func TestClientHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHttpClientTransport()
	require.NoError(t, tr.Connect(common.DefaultClientConfig("db", srv.URL)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.Send(ctx, common.NewRequest(http.MethodGet, srv.URL, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClientNotConnected(t *testing.T) {
	_, err := NewHttpClientTransport().Send(context.Background(), common.NewRequest(http.MethodGet, "http://localhost", nil))
	assert.Error(t, err)
}

func TestClientRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	conf := common.DefaultClientConfig("db", srv.URL)
	conf.MaxResponseBytes = 64
	tr := NewHttpClientTransport()
	require.NoError(t, tr.Connect(conf))
	defer tr.Close()

	resp, err := tr.Send(context.Background(), common.NewRequest(http.MethodGet, srv.URL, nil))
	require.NoError(t, err, "a body of exactly the limit is accepted")
	assert.Len(t, resp.Body, 64)

	conf.MaxResponseBytes = 63
	small := NewHttpClientTransport()
	require.NoError(t, small.Connect(conf))
	defer small.Close()

	_, err = small.Send(context.Background(), common.NewRequest(http.MethodGet, srv.URL, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 63 bytes")
}

func TestClientCloseWhileSending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := NewHttpClientTransport()
	require.NoError(t, tr.Connect(common.DefaultClientConfig("db", srv.URL)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				// either answered or rejected as closed, never a crash
				_, _ = tr.Send(context.Background(), common.NewRequest(http.MethodGet, srv.URL, nil))
			}
		}()
	}
	require.NoError(t, tr.Close())
	wg.Wait()

	_, err := tr.Send(context.Background(), common.NewRequest(http.MethodGet, srv.URL, nil))
	assert.Error(t, err)
}

func TestLoadTLSConfig(t *testing.T) {
	conf, err := loadTLSConfig(common.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, conf)

	_, err = loadTLSConfig(common.TLSConfig{CAFile: "/does/not/exist.pem"})
	assert.Error(t, err)
}

func TestServerListenAndShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	srv := NewHttpServerTransport(true)
	srv.RegisterHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Listen(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusTeapot
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
