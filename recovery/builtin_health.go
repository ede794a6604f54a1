package recovery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ServiceHealthCheckAction queries a configured set of endpoints and
// reports per-endpoint status. It succeeds once every endpoint
// responds with a 2xx status.
type ServiceHealthCheckAction struct {
	Client *http.Client
}

func (a ServiceHealthCheckAction) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func (ServiceHealthCheckAction) CanHandle(err error, opCtx map[string]interface{}) bool {
	_, ok := opCtx["health_endpoints"].([]string)
	return ok
}

func (ServiceHealthCheckAction) EstimatedDuration() time.Duration { return 4 * time.Second }
func (ServiceHealthCheckAction) RiskLevel() RiskLevel              { return RiskLow }

func (a ServiceHealthCheckAction) Execute(ctx context.Context, params map[string]interface{}, opCtx map[string]interface{}) (ActionResult, error) {
	endpoints, _ := opCtx["health_endpoints"].([]string)
	if len(endpoints) == 0 {
		return ActionResult{Success: false, Message: "no health endpoints configured"}, nil
	}

	perHost := 2 * time.Second
	if ms, ok := params["timeout_ms"].(float64); ok {
		perHost = time.Duration(ms) * time.Millisecond
	}

	var unhealthy []string
	var statuses []string
	for _, endpoint := range endpoints {
		reqCtx, cancel := context.WithTimeout(ctx, perHost)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			cancel()
			unhealthy = append(unhealthy, endpoint)
			statuses = append(statuses, fmt.Sprintf("%s: %v", endpoint, err))
			continue
		}
		resp, err := a.client().Do(req)
		cancel()
		if err != nil {
			unhealthy = append(unhealthy, endpoint)
			statuses = append(statuses, fmt.Sprintf("%s: %v", endpoint, err))
			continue
		}
		resp.Body.Close()
		statuses = append(statuses, fmt.Sprintf("%s: %d", endpoint, resp.StatusCode))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			unhealthy = append(unhealthy, endpoint)
		}
	}

	if len(unhealthy) > 0 {
		return ActionResult{
			Success: false,
			Message: fmt.Sprintf("unhealthy endpoints: %s", strings.Join(unhealthy, ", ")),
			SideEffects: statuses,
		}, nil
	}

	return ActionResult{Success: true, Message: "all endpoints healthy", SideEffects: statuses}, nil
}

var _ ActionHandler = ServiceHealthCheckAction{}
