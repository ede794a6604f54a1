package recovery

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GitCleanupAction removes stale lock files and, if configured,
// aborts an in-progress merge/rebase or hard-resets a repository.
// Shells out to the git binary, matching the pack's choice of
// os/exec over a Go git library (none is present anywhere retrieved).
type GitCleanupAction struct{}

func (GitCleanupAction) CanHandle(err error, opCtx map[string]interface{}) bool {
	_, ok := opCtx["repo_path"].(string)
	return ok
}

func (GitCleanupAction) EstimatedDuration() time.Duration { return 2 * time.Second }
func (GitCleanupAction) RiskLevel() RiskLevel              { return RiskMedium }

func (a GitCleanupAction) Execute(ctx context.Context, params map[string]interface{}, opCtx map[string]interface{}) (ActionResult, error) {
	repoPath, _ := opCtx["repo_path"].(string)
	if repoPath == "" {
		return ActionResult{Success: false, Message: "no repo_path in context"}, nil
	}

	var sideEffects []string

	for _, lock := range []string{"index.lock", "HEAD.lock", "MERGE_HEAD.lock"} {
		p := filepath.Join(repoPath, ".git", lock)
		if _, statErr := os.Stat(p); statErr == nil {
			if rmErr := os.Remove(p); rmErr == nil {
				sideEffects = append(sideEffects, "removed "+lock)
			}
		}
	}

	if abortMerge, _ := params["abort_merge"].(bool); abortMerge {
		if out, err := a.run(ctx, repoPath, "merge", "--abort"); err == nil {
			sideEffects = append(sideEffects, "aborted merge: "+strings.TrimSpace(out))
		}
	}
	if abortRebase, _ := params["abort_rebase"].(bool); abortRebase {
		if out, err := a.run(ctx, repoPath, "rebase", "--abort"); err == nil {
			sideEffects = append(sideEffects, "aborted rebase: "+strings.TrimSpace(out))
		}
	}
	if hardReset, _ := params["hard_reset"].(bool); hardReset {
		if out, err := a.run(ctx, repoPath, "reset", "--hard"); err == nil {
			sideEffects = append(sideEffects, "hard reset: "+strings.TrimSpace(out))
		}
		if out, err := a.run(ctx, repoPath, "clean", "-fd"); err == nil {
			sideEffects = append(sideEffects, "removed untracked files: "+strings.TrimSpace(out))
		}
	}

	return ActionResult{
		Success:     true,
		Message:     fmt.Sprintf("cleaned up %s", repoPath),
		SideEffects: sideEffects,
	}, nil
}

func (GitCleanupAction) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var _ ActionHandler = GitCleanupAction{}
