package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/resilientkernel/kernel/bandit"
	"github.com/resilientkernel/kernel/kernel"
	"github.com/resilientkernel/kernel/ops"
	"github.com/resilientkernel/kernel/platform"
)

func main() {
	logger := platform.NewProductionLogger(platform.LoggingConfig{Level: "info", Format: "text"}, "kernel-demo")

	model := bandit.New(bandit.UCB, bandit.DefaultRetrievalArms, bandit.WithLogger(logger))

	k := kernel.New(kernel.Config{
		LedgerDir:   "./kernel-demo-ledger",
		Logger:      logger,
		BanditModel: model,
	})

	handle := ops.FuncHandle{
		InvokeFunc: func(ctx context.Context, params map[string]interface{}, deadline time.Time) (ops.Result, error) {
			arm, _ := params["arm"].(string)
			log.Printf("invoking retrieval with arm=%s", arm)
			return ops.Result{Value: fmt.Sprintf("results for arm %s", arm)}, nil
		},
	}

	spec := kernel.OperationSpec{
		Name:       "hybrid-retrieval",
		Parameters: map[string]interface{}{"query": "outage runbooks"},
		Selection: &bandit.SelectionContext{
			ProjectID:  "demo-project",
			AgentTypes: []string{"retrieval", "planner"},
		},
		Reward: func(outcome kernel.Outcome) float64 {
			if outcome.Success {
				return 0.8
			}
			return 0.0
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	outcome, err := k.Protect(ctx, spec, handle)
	if err != nil {
		log.Fatalf("operation failed after %d attempts: %v", outcome.Attempts, err)
	}

	log.Printf("operation succeeded via arm %q after %d attempt(s): %v", outcome.Arm, outcome.Attempts, outcome.Result)
}
