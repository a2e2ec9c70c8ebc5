// Command cadence is an illustrative entry point showing how a CLI
// collaborator assembles the core's packages into one runnable agent.
// Argument parsing, environment loading, and TUI rendering are
// explicitly out of scope for the core (§1) — this wiring is the
// minimal glue a real CLI would expand on, not the CLI itself.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/odvcencio/cadence/pkg/agentlog"
	"github.com/odvcencio/cadence/pkg/audit"
	"github.com/odvcencio/cadence/pkg/bus"
	"github.com/odvcencio/cadence/pkg/criteria"
	"github.com/odvcencio/cadence/pkg/executor"
	"github.com/odvcencio/cadence/pkg/planner"
	"github.com/odvcencio/cadence/pkg/policy"
	"github.com/odvcencio/cadence/pkg/replanner"
	"github.com/odvcencio/cadence/pkg/reviewauth"
	"github.com/odvcencio/cadence/pkg/runtime"
	"github.com/odvcencio/cadence/pkg/tool"
)

// stubLMClient is a placeholder LM transport. A real collaborator
// would call out to an actual model; the core only depends on the
// narrow planner.LMClient interface (§1, §6).
type stubLMClient struct{}

func (stubLMClient) ChatCompletion(ctx context.Context, req planner.Request) (planner.Response, error) {
	return planner.Response{}, fmt.Errorf("no LM transport configured: wire a real planner.LMClient")
}

// defaultReviewFunc is the non-interactive plan-change reviewer this
// illustrative entry point wires in: no human is attached to this
// process, so every needs_user_review escalation is signed and
// verified as an authenticated denial rather than silently approved
// (§9: default implementations reject with guidance). A real CLI would
// swap this for one that prompts an operator and signs their actual
// decision.
func defaultReviewFunc(signer *reviewauth.Signer, runID string) replanner.ReviewFunc {
	return func(ctx context.Context, req policy.PlanChangeRequest, gate policy.GateResult) replanner.ReviewDecision {
		token, err := signer.Sign("unattended-cli", runID, string(req.ChangeType), reviewauth.DecisionDeny,
			"no interactive reviewer attached to this process", time.Hour)
		if err != nil {
			return replanner.ReviewDecision{Status: policy.StatusDenied, Reason: "review signing failed: " + err.Error()}
		}

		claims, err := signer.Verify(token)
		if err != nil {
			return replanner.ReviewDecision{Status: policy.StatusDenied, Reason: "review verification failed: " + err.Error()}
		}

		status := policy.StatusDenied
		if claims.Decision == reviewauth.DecisionApprove {
			status = policy.StatusApproved
		}
		return replanner.ReviewDecision{Status: status, Reason: claims.Reason, Guidance: gate.Guidance}
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "cadence-fallback-secret"
	}
	return hex.EncodeToString(b)
}

func main() {
	goal := "illustrative run: replace the stub LM client to do real work"
	if len(os.Args) > 1 {
		goal = os.Args[1]
	}

	registry := tool.NewRegistry()

	pol := policy.Policy{
		Safety: policy.Safety{
			AllowedTools: registry.Names(),
		},
		Budgets: policy.Budgets{
			MaxSteps:          40,
			MaxActionsPerTask: 6,
			MaxRetriesPerTask: 3,
			MaxReplans:        3,
		},
	}

	pc := planner.New(stubLMClient{}, nil)
	exec := executor.New(registry, nil)
	crit := criteria.New(exec)
	gate := policy.NewGate()

	runID := "run-local"
	signer := reviewauth.NewSigner(randomSecret())
	replan := replanner.New(pc, gate, defaultReviewFunc(signer, runID))
	collector := audit.New(goal)

	rt := runtime.New(pc, exec, crit, replan, collector)
	rt.RunID = runID
	rt.AuditOut = os.Stdout
	rt.Logger = agentlog.New(os.Stderr, rt.RunID)
	rt.Bus = bus.NewMemoryBus()

	summary := rt.Run(context.Background(), goal, pol, &tool.Memory{})

	result := map[string]any{
		"ok":          summary.OK,
		"summary":     summary.Summary,
		"patch_paths": summary.PatchPaths,
	}
	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)

	if !summary.OK {
		os.Exit(1)
	}
}
