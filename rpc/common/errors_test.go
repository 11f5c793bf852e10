package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindNamesRoundTrip(t *testing.T) {
	for k := KindNetworkUnavailable; k <= KindCanceled; k++ {
		assert.Equal(t, k, ParseErrorKind(k.String()), "kind %d", k)
	}
	assert.Equal(t, KindUnknown, ParseErrorKind("SomethingElse"))
	assert.Equal(t, "AllTopologyNodesDownException", KindAllTopologyNodesDown.String())
	assert.Equal(t, "TimeoutException", KindTimeout.String())
}

func TestErrorKindCategories(t *testing.T) {
	assert.True(t, KindNetworkUnavailable.Transient())
	assert.True(t, KindNodeNotResponding.Transient())
	assert.True(t, KindLeaderUnavailable.Transient())
	assert.False(t, KindConflict.Transient())
	assert.False(t, KindParseError.Transient())
	assert.True(t, KindAllTopologyNodesDown.Terminal())
	assert.True(t, KindTimeout.Terminal())
	assert.False(t, KindBadRequest.Terminal())
}

func TestExecutionErrorIsAndKindOf(t *testing.T) {
	err := &ExecutionError{Kind: KindConflict, Message: "version mismatch", Node: "http://a"}
	wrapped := fmt.Errorf("saving: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrBadRequest))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestExecutionErrorMessageListsAttempts(t *testing.T) {
	err := &ExecutionError{
		Kind:    KindAllTopologyNodesDown,
		Message: "all 2 nodes failed",
		Attempts: []NodeAttempt{
			{Node: "http://a", ClusterTag: "A", Kind: KindNetworkUnavailable, Message: "connection refused"},
			{Node: "http://b", Skipped: true, Message: "backing off"},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "AllTopologyNodesDownException")
	assert.Contains(t, msg, "http://a (A): NetworkUnavailable")
	assert.Contains(t, msg, "http://b: skipped")
	assert.Equal(t, 1, err.NodesAttempted())
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"leader signal wins over status", http.StatusServiceUnavailable, `{"Type":"LeaderUnavailable","Message":"no leader"}`, KindLeaderUnavailable},
		{"not responding with 4xx", http.StatusBadRequest, `{"Type":"NodeNotResponding"}`, KindNodeNotResponding},
		{"plain 500", http.StatusInternalServerError, ``, KindNodeNotResponding},
		{"plain 502", http.StatusBadGateway, `garbage`, KindNodeNotResponding},
		{"401", http.StatusUnauthorized, ``, KindUnauthorized},
		{"403", http.StatusForbidden, ``, KindForbidden},
		{"409", http.StatusConflict, `{"Type":"Conflict","Message":"etag mismatch"}`, KindConflict},
		{"404", http.StatusNotFound, ``, KindNotFound},
		{"422", http.StatusUnprocessableEntity, ``, KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, payload := ClassifyResponse(&Response{StatusCode: tt.status, Body: []byte(tt.body)})
			assert.Equal(t, tt.want, kind)
			assert.NotEmpty(t, payload.Message)
		})
	}
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:30", FormatElapsed(30*time.Second+12*time.Millisecond))
	assert.Equal(t, "01:02:03", FormatElapsed(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "00:00:00.300", FormatElapsed(300*time.Millisecond))
	assert.Equal(t, "00:00:00.000", FormatElapsed(-time.Second))
}

func TestClientConfigValidate(t *testing.T) {
	conf := ClientConfig{Urls: []string{" http://localhost:8080/ "}, Database: "db"}
	require.NoError(t, conf.Validate())
	assert.Equal(t, "http://localhost:8080", conf.Urls[0])
	assert.Equal(t, 30*time.Second, conf.RequestTimeout)
	assert.Equal(t, 30*time.Second, conf.LeaderWaitTimeout)
	assert.Equal(t, 4096, conf.Cache.MaxEntries)

	bad := ClientConfig{Urls: []string{"localhost:8080"}, Database: "db"}
	assert.Error(t, bad.Validate())

	noDB := ClientConfig{Urls: []string{"http://a"}}
	assert.Error(t, noDB.Validate())

	noUrls := ClientConfig{Database: "db"}
	assert.Error(t, noUrls.Validate())
}

func TestParseReadBalanceBehavior(t *testing.T) {
	for _, b := range []ReadBalanceBehavior{ReadBalanceNone, ReadBalanceRoundRobin, ReadBalanceFastestNode} {
		parsed, err := ParseReadBalanceBehavior(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, parsed)
	}
	_, err := ParseReadBalanceBehavior("random")
	assert.Error(t, err)
}
