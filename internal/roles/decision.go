package roles

import (
	"fmt"
	"log/slog"
	"strings"

	"ScriptForge/internal/state"
	"ScriptForge/pkg/logger"
)

// decisionMaker 是唯一的特权角色：分析状态报告并选择下一个动作。
type decisionMaker struct {
	model string
}

func (r *decisionMaker) Kind() Kind    { return KindDecisionMaker }
func (r *decisionMaker) Model() string { return r.model }

func (r *decisionMaker) Render(request string, project *state.Project) string {
	currentAction := string(project.CurrentAction)
	if currentAction == "" {
		currentAction = "INIT"
	}
	plan := project.Plan
	if plan == "" {
		plan = "None yet."
	}
	criteria := project.SuccessCriteria
	if criteria == "" {
		criteria = "None yet."
	}
	advice := project.Advice
	if advice == "" {
		advice = "None."
	}
	integrity := project.PromptIntegrity
	if integrity == "" {
		integrity = "Not checked."
	}
	resource := project.ResourceManagement
	if resource == "" {
		resource = "Not assessed."
	}

	var report strings.Builder
	fmt.Fprintf(&report, "Orchestration Goal: %s\n", request)
	fmt.Fprintf(&report, "Current Action: %s\n", currentAction)
	fmt.Fprintf(&report, "Current Entropy Score: %.2f\n", project.CurrentEntropyScore)
	fmt.Fprintf(&report, "Plan: %s\n", plan)
	fmt.Fprintf(&report, "Success Criteria: %s\n", criteria)
	fmt.Fprintf(&report, "Valid Chunks: %d\n", len(project.ValidChunkIDs()))
	fmt.Fprintf(&report, "Invalid Chunks: %d\n", len(project.InvalidChunkIDs()))
	fmt.Fprintf(&report, "Last Advice: %s\n", advice)
	fmt.Fprintf(&report, "Prompt Integrity: %s\n", integrity)
	fmt.Fprintf(&report, "Resource Management: %s\n", resource)

	return fmt.Sprintf(`You are the decision maker, the supreme orchestrator of a multi-agent system. Your task is to analyze the current state of the project and decide the next optimal action to drive the project towards successfully achieving the 'Orchestration Goal' while minimizing the 'Current Entropy Score'.

Based on the following status report, you must choose one of these actions: 'PLAN', 'EXECUTE', 'VALIDATE', 'REFINE', 'COMPOSE', or 'COMPLETE'.
'COMPLETE' should only be chosen if the final script is present and seems to meet the 'Success Criteria' and 'Current Entropy Score' is low (e.g., < 0.3).

Status Report:
%s
Your decision MUST be a single word, representing the chosen action. Do not add any other text.
`, report.String())
}

// Fold 归一化动作输出；不在枚举内时记录告警并回退到 PLAN。
func (r *decisionMaker) Fold(output string, project *state.Project) {
	action, ok := state.ParseAction(output)
	if !ok {
		logger.L().Warn("决策输出不在动作枚举内，回退到 PLAN",
			slog.String("raw_output", strings.TrimSpace(output)))
		action = state.ActionPlan
	}
	project.CurrentAction = action
}
