package recovery

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct{ net.Conn }

func (stubConn) Close() error { return nil }

func TestNetworkProbeCanHandleRequiresProbeHosts(t *testing.T) {
	a := NetworkConnectivityProbeAction{}
	assert.False(t, a.CanHandle(nil, nil))
	assert.True(t, a.CanHandle(nil, map[string]interface{}{"probe_hosts": []string{"example.com:443"}}))
}

func TestNetworkProbeSucceedsOnFirstReachableHost(t *testing.T) {
	var dialed []string
	a := NetworkConnectivityProbeAction{Dialer: func(ctx context.Context, network, address string) (net.Conn, error) {
		dialed = append(dialed, address)
		if address == "bad:1" {
			return nil, errors.New("refused")
		}
		return stubConn{}, nil
	}}
	result, err := a.Execute(context.Background(), nil, map[string]interface{}{"probe_hosts": []string{"bad:1", "good:1"}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"bad:1", "good:1"}, dialed)
}

func TestNetworkProbeFailsWhenNoHostReachable(t *testing.T) {
	a := NetworkConnectivityProbeAction{Dialer: func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, errors.New("refused")
	}}
	result, err := a.Execute(context.Background(), nil, map[string]interface{}{"probe_hosts": []string{"bad:1"}})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestNetworkProbeReportsNoHostsConfigured(t *testing.T) {
	a := NetworkConnectivityProbeAction{}
	result, err := a.Execute(context.Background(), nil, map[string]interface{}{"probe_hosts": []string{}})
	require.NoError(t, err)
	assert.False(t, result.Success)
}
