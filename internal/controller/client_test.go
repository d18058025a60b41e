package controller

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanet-platform/flowlb/internal/controller/controllertest"
	"github.com/yanet-platform/flowlb/internal/flow"
)

const testNode = "openflow:1"

func newTestClient(t *testing.T, server *controllertest.Server) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Endpoint = server.URL

	logger, _ := zap.NewDevelopment()
	client, err := New(cfg, WithLog(logger.Sugar()))
	require.NoError(t, err)
	return client
}

func testRedirect(id string, backend string) *flow.Rule {
	return flow.NewBuilder(0, 10).Redirect(
		id,
		netip.MustParsePrefix("10.0.0.1/32"),
		netip.MustParsePrefix("10.0.0.100/32"),
		flow.Backend{
			Address: netip.MustParsePrefix(backend),
			MAC:     net.HardwareAddr{0, 0, 0, 0, 0, 1},
		},
	)
}

func TestInstallFlowIsUpsert(t *testing.T) {
	server := controllertest.NewServer("admin", "admin")
	defer server.Close()
	client := newTestClient(t, server)
	ctx := context.Background()

	outcome, err := client.InstallFlow(ctx, testNode, testRedirect("flowlb-web-redirect", "10.0.0.2/32"))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	outcome, err = client.InstallFlow(ctx, testNode, testRedirect("flowlb-web-redirect", "10.0.0.3/32"))
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)

	require.Equal(t, []string{"flowlb-web-redirect"}, server.Flows(testNode, "0"))

	body, ok := server.Flow(testNode, "0", "flowlb-web-redirect")
	require.True(t, ok)
	require.Contains(t, string(body), `"ipv4-address":"10.0.0.3/32"`)
}

func TestInstallFlowRequest(t *testing.T) {
	server := controllertest.NewServer("admin", "admin")
	defer server.Close()
	client := newTestClient(t, server)

	_, err := client.InstallFlow(context.Background(), testNode, testRedirect("flowlb-web-redirect-7", "10.0.0.2/32"))
	require.NoError(t, err)

	requests := server.Requests()
	require.Len(t, requests, 1)
	require.Equal(t, http.MethodPut, requests[0].Method)
	require.Equal(t, testNode, requests[0].Node)
	require.Equal(t, "0", requests[0].Table)
	require.Equal(t, "flowlb-web-redirect-7", requests[0].Flow)
	require.JSONEq(t, `{"flow":[{
		"id": "flowlb-web-redirect-7",
		"match": {
			"ethernet-match": {"ethernet-type": {"type": "0x0800"}},
			"ipv4-source": "10.0.0.1/32",
			"ipv4-destination": "10.0.0.100/32"
		},
		"instructions": {"instruction": [{
			"order": 0,
			"apply-actions": {"action": [
				{"order": 0, "set-dl-dst-action": {"address": "00:00:00:00:00:01"}},
				{"order": 1, "set-nw-dst-action": {"ipv4-address": "10.0.0.2/32"}},
				{"order": 2, "output-action": {"output-node-connector": "NORMAL"}}
			]}
		}]},
		"priority": 100,
		"idle-timeout": 10,
		"hard-timeout": 0,
		"table_id": 0
	}]}`, string(requests[0].Body))
}

func TestInstallFlowRejected(t *testing.T) {
	server := controllertest.NewServer("admin", "admin")
	defer server.Close()
	client := newTestClient(t, server)

	server.FailNext(http.StatusInternalServerError)

	_, err := client.InstallFlow(context.Background(), testNode, testRedirect("id", "10.0.0.2/32"))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.Code)
	require.Equal(t, http.MethodPut, statusErr.Method)
	require.Contains(t, statusErr.Body, "injected failure")
	require.True(t, IsRetryable(err))
	require.Empty(t, server.Flows(testNode, "0"))
}

func TestInstallFlowUnauthorized(t *testing.T) {
	server := controllertest.NewServer("admin", "secret")
	defer server.Close()
	client := newTestClient(t, server)

	_, err := client.InstallFlow(context.Background(), testNode, testRedirect("id", "10.0.0.2/32"))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.Code)
	require.False(t, IsRetryable(err))
}

func TestInstallFlowTransportError(t *testing.T) {
	server := controllertest.NewServer("", "")
	client := newTestClient(t, server)
	server.Close()

	_, err := client.InstallFlow(context.Background(), testNode, testRedirect("id", "10.0.0.2/32"))
	require.Error(t, err)

	var statusErr *StatusError
	require.False(t, errors.As(err, &statusErr))
	require.True(t, IsRetryable(err))
}

func TestClearTable(t *testing.T) {
	server := controllertest.NewServer("admin", "admin")
	defer server.Close()
	client := newTestClient(t, server)
	ctx := context.Background()

	server.Put(testNode, "0", "a", []byte(`{}`))
	server.Put(testNode, "0", "b", []byte(`{}`))
	server.Put(testNode, "1", "c", []byte(`{}`))

	outcome, err := client.ClearTable(ctx, testNode, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeRemoved, outcome)
	require.Empty(t, server.Flows(testNode, "0"))
	require.Equal(t, []string{"c"}, server.Flows(testNode, "1"))
}

func TestClearEmptyTableIsNoop(t *testing.T) {
	server := controllertest.NewServer("admin", "admin")
	defer server.Close()
	client := newTestClient(t, server)

	outcome, err := client.ClearTable(context.Background(), testNode, 0)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)
}

func TestClearTableRejected(t *testing.T) {
	server := controllertest.NewServer("admin", "admin")
	defer server.Close()
	client := newTestClient(t, server)

	server.FailNext(http.StatusBadRequest)

	_, err := client.ClearTable(context.Background(), testNode, 0)
	require.Error(t, err)
	require.False(t, IsRetryable(err))
}

func TestDeleteFlow(t *testing.T) {
	server := controllertest.NewServer("admin", "admin")
	defer server.Close()
	client := newTestClient(t, server)
	ctx := context.Background()

	server.Put(testNode, "0", "flowlb-web-redirect-1", []byte(`{}`))
	server.Put(testNode, "0", "flowlb-web-redirect-2", []byte(`{}`))

	outcome, err := client.DeleteFlow(ctx, testNode, 0, "flowlb-web-redirect-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeRemoved, outcome)
	require.Equal(t, []string{"flowlb-web-redirect-2"}, server.Flows(testNode, "0"))

	outcome, err = client.DeleteFlow(ctx, testNode, 0, "flowlb-web-redirect-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Endpoint = "ftp://localhost"
	_, err := New(cfg)
	require.Error(t, err)

	cfg.Endpoint = "://"
	_, err = New(cfg)
	require.Error(t, err)
}

func TestIsRetryable(t *testing.T) {
	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(context.Canceled))
	require.True(t, IsRetryable(errors.New("connection refused")))
	require.True(t, IsRetryable(&StatusError{Code: http.StatusServiceUnavailable}))
	require.True(t, IsRetryable(&StatusError{Code: http.StatusTooManyRequests}))
	require.True(t, IsRetryable(&StatusError{Code: http.StatusRequestTimeout}))
	require.False(t, IsRetryable(&StatusError{Code: http.StatusConflict}))
}
