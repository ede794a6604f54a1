package recovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FilePermissionsFixAction makes a path accessible, recursively for
// directories.
type FilePermissionsFixAction struct{}

func (FilePermissionsFixAction) CanHandle(err error, opCtx map[string]interface{}) bool {
	_, ok := opCtx["path"].(string)
	return ok
}

func (FilePermissionsFixAction) EstimatedDuration() time.Duration { return time.Second }
func (FilePermissionsFixAction) RiskLevel() RiskLevel              { return RiskMedium }

func (FilePermissionsFixAction) Execute(ctx context.Context, params map[string]interface{}, opCtx map[string]interface{}) (ActionResult, error) {
	path, _ := opCtx["path"].(string)
	if path == "" {
		return ActionResult{Success: false, Message: "no path in context"}, nil
	}

	var mode fs.FileMode = 0o755
	if m, ok := params["mode"].(string); ok {
		if parsed, err := parseOctalMode(m); err == nil {
			mode = parsed
		}
	}

	fixed := 0
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort, keep walking
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		target := mode
		if !d.IsDir() {
			target = mode &^ 0o111 // don't make every file executable
		}
		if chmodErr := os.Chmod(p, target); chmodErr == nil {
			fixed++
		}
		return nil
	})
	if walkErr != nil {
		return ActionResult{Success: false, Message: walkErr.Error()}, walkErr
	}

	return ActionResult{
		Success: true,
		Message: fmt.Sprintf("updated permissions on %d entries under %s", fixed, path),
	}, nil
}

func parseOctalMode(s string) (fs.FileMode, error) {
	var m uint32
	_, err := fmt.Sscanf(s, "%o", &m)
	return fs.FileMode(m), err
}

var _ ActionHandler = FilePermissionsFixAction{}
