package recovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceHealthCheckCanHandleRequiresEndpoints(t *testing.T) {
	a := ServiceHealthCheckAction{}
	assert.False(t, a.CanHandle(nil, nil))
	assert.True(t, a.CanHandle(nil, map[string]interface{}{"health_endpoints": []string{"http://x"}}))
}

func TestServiceHealthCheckSucceedsWhenAllEndpointsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := ServiceHealthCheckAction{}
	result, err := a.Execute(context.Background(), nil, map[string]interface{}{"health_endpoints": []string{srv.URL, srv.URL}})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.SideEffects, 2)
}

func TestServiceHealthCheckFailsWhenOneEndpointUnhealthy(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	a := ServiceHealthCheckAction{}
	result, err := a.Execute(context.Background(), nil, map[string]interface{}{"health_endpoints": []string{ok.URL, bad.URL}})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestServiceHealthCheckReportsNoEndpointsConfigured(t *testing.T) {
	a := ServiceHealthCheckAction{}
	result, err := a.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
