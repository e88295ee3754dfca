package roles

import (
	"fmt"
	"strings"

	"ScriptForge/internal/state"
)

// goalDefiner 把请求拆解为可度量的成功标准清单。
type goalDefiner struct {
	model string
}

func (r *goalDefiner) Kind() Kind    { return KindGoalDefiner }
func (r *goalDefiner) Model() string { return r.model }

func (r *goalDefiner) Render(request string, project *state.Project) string {
	existing := project.SuccessCriteria
	if existing == "" {
		existing = "None"
	}
	return fmt.Sprintf(`You are the goal definer. Your task is to define the success criteria for the request: '%s'.
Break it down into a clear, numbered list of concise requirements. Focus on measurable and achievable criteria.
Example: 1. Script must be in Python. 2. It must achieve X. 3. It must handle error Y.
Current success criteria: %s. Refine if needed, otherwise re-state.
Your output MUST be ONLY the numbered list of success criteria, with no additional conversational text.
`, request, existing)
}

// Fold 无条件以最新输出覆盖成功标准。
func (r *goalDefiner) Fold(output string, project *state.Project) {
	project.SuccessCriteria = output
}

// planAdvisor 审视整体进度并产出计划或下一步建议。
type planAdvisor struct {
	model string
}

func (r *planAdvisor) Kind() Kind    { return KindPlanAdvisor }
func (r *planAdvisor) Model() string { return r.model }

func (r *planAdvisor) Render(request string, project *state.Project) string {
	plan := project.Plan
	if plan == "" {
		plan = "Not defined yet."
	}
	return fmt.Sprintf(`You are the plan advisor. Review the overall plan, recent progress, and current shared state.
Goal: %s
Plan: %s
Validated Chunks: %v
Failed Chunks: %v
Shared State Summary: %s
Based on this, provide a concise, actionable next step or refinement for the plan. If no plan exists, create one. Focus on overcoming obstacles or moving towards completion.
Your output MUST be a clear, concise instruction or a refined plan.
`, request, plan, project.ValidChunkIDs(), project.InvalidChunkIDs(), project.SummaryJSON())
}

// Fold 仅在尚无计划或输出自述为 refinement 时覆盖计划，建议总是更新。
func (r *planAdvisor) Fold(output string, project *state.Project) {
	if project.Plan == "" || strings.Contains(strings.ToLower(output), "refinement") {
		project.Plan = output
	}
	project.Advice = output
}

// scopeAuditor 评估复杂度与范围蔓延风险。
type scopeAuditor struct {
	model string
}

func (r *scopeAuditor) Kind() Kind    { return KindScopeAuditor }
func (r *scopeAuditor) Model() string { return r.model }

func (r *scopeAuditor) Render(request string, project *state.Project) string {
	return fmt.Sprintf(`You are the scope auditor, the resource manager. Your task is to analyze the current state of the project, including the initial request and any progress made, to identify potential complexity, scope creep, or resource inefficiencies.

Current Goal: %s
Current State: %s

Based on this, provide a concise assessment of complexity and scope. If any issues are found, suggest specific, actionable adjustments needed to keep the project manageable and efficient. Focus on resource optimization and complexity reduction. If no issues, state 'RESOURCE MANAGEMENT OK'.
Your output MUST be a summary of complexity/scope and/or actionable suggestions, or 'RESOURCE MANAGEMENT OK'.
`, request, project.FullJSON())
}

// Fold 无条件覆盖资源管理报告。
func (r *scopeAuditor) Fold(output string, project *state.Project) {
	project.ResourceManagement = output
}

// integrityAuditor 审查请求与状态的完整性、安全性与歧义。
type integrityAuditor struct {
	model string
}

func (r *integrityAuditor) Kind() Kind    { return KindIntegrityAuditor }
func (r *integrityAuditor) Model() string { return r.model }

func (r *integrityAuditor) Render(request string, project *state.Project) string {
	return fmt.Sprintf(`You are the integrity auditor, the request securer. Your task is to validate the integrity and safety of the initial request and the current shared state. Identify any ambiguities, security vulnerabilities, ethical concerns, or potential for misuse.

Initial Request: %s
Current State: %s

Based on this analysis, provide a concise integrity report. If there are concerns, list them clearly. If the request and state appear sound, state 'INTEGRITY OK'.
Your output MUST be a concise integrity report or 'INTEGRITY OK'.
`, request, project.FullJSON())
}

// Fold 无条件覆盖完整性报告。
func (r *integrityAuditor) Fold(output string, project *state.Project) {
	project.PromptIntegrity = output
}
