package recovery

import (
	"context"
	"regexp"
	"strconv"
	"time"
)

// APIRateLimitWaitAction derives a wait duration from an explicit
// reset header value or, failing that, from digits found in the
// error message, clamped to a configured maximum.
type APIRateLimitWaitAction struct{}

func (APIRateLimitWaitAction) CanHandle(err error, opCtx map[string]interface{}) bool {
	if err == nil {
		return false
	}
	if _, ok := opCtx["rate_limit_reset_seconds"]; ok {
		return true
	}
	return rateLimitDigits.MatchString(err.Error())
}

func (APIRateLimitWaitAction) EstimatedDuration() time.Duration { return 5 * time.Second }
func (APIRateLimitWaitAction) RiskLevel() RiskLevel              { return RiskLow }

var rateLimitDigits = regexp.MustCompile(`(?i)rate.?limit.*?(\d+)`)

func (a APIRateLimitWaitAction) Execute(ctx context.Context, params map[string]interface{}, opCtx map[string]interface{}) (ActionResult, error) {
	maxWait := 60 * time.Second
	if mw, ok := params["max_wait_ms"].(float64); ok {
		maxWait = time.Duration(mw) * time.Millisecond
	}

	wait := a.deriveWait(opCtx)
	if wait > maxWait {
		wait = maxWait
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ActionResult{Success: false, Message: "cancelled while waiting"}, ctx.Err()
	case <-timer.C:
	}

	return ActionResult{
		Success:  true,
		Message:  "waited for rate limit window",
		Duration: wait,
	}, nil
}

func (APIRateLimitWaitAction) deriveWait(opCtx map[string]interface{}) time.Duration {
	if secs, ok := opCtx["rate_limit_reset_seconds"].(float64); ok {
		return time.Duration(secs) * time.Second
	}
	if errMsg, ok := opCtx["error_message"].(string); ok {
		if m := rateLimitDigits.FindStringSubmatch(errMsg); len(m) == 2 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return time.Duration(n) * time.Second
			}
		}
	}
	return 5 * time.Second
}

var _ ActionHandler = APIRateLimitWaitAction{}
