// Package entropy 提供对共享项目状态的启发式熵值估计。
// 分值越低表示状态越收敛；估计函数是纯函数，不持有任何隐藏状态。
package entropy

import (
	"math"
	"strings"

	"ScriptForge/internal/state"
)

// 各因素的惩罚权重。权重本身是可调的启发式，
// 但相对次序是契约：缺失计划 > 缺失成功标准 > 单个无效块。
const (
	penaltyIntegrity      = 0.5
	penaltyScopeManaged   = 0.2
	penaltyScopeUnmanaged = 0.4
	penaltyNoPlan         = 1.0
	penaltyInvalidChunk   = 0.7
	penaltyNoCriteria     = 0.8
	penaltyRefining       = 0.1
	penaltyRegression     = 0.3
)

// integrityOKMarker 是完整性审计报告中的放行标记。
const integrityOKMarker = "INTEGRITY OK"

// Estimate 计算当前状态的熵值，结果保留两位小数且恒为非负。
func Estimate(project *state.Project) float64 {
	if project == nil {
		return 0
	}
	score := 0.0

	// 完整性报告存在疑虑时加罚。
	if !strings.Contains(project.PromptIntegrity, integrityOKMarker) {
		score += penaltyIntegrity
	}

	// 资源报告提到复杂度或范围蔓延：有缓解措施时罚得轻一些。
	resource := strings.ToLower(project.ResourceManagement)
	if strings.Contains(resource, "complexity") || strings.Contains(resource, "scope") {
		if strings.Contains(resource, "reduce") || strings.Contains(resource, "manage") {
			score += penaltyScopeManaged
		} else {
			score += penaltyScopeUnmanaged
		}
	}

	// 没有计划是最大的单项惩罚。
	if project.Plan == "" {
		score += penaltyNoPlan
	}

	// 每个无效代码块叠加惩罚，上不封顶。
	score += float64(len(project.InvalidChunkIDs())) * penaltyInvalidChunk

	if project.SuccessCriteria == "" {
		score += penaltyNoCriteria
	}

	// 动作层面的稳定性信号。
	switch {
	case project.CurrentAction == state.ActionRefine:
		score += penaltyRefining
	case project.CurrentAction == state.ActionPlan && len(project.CodeChunks) > 0:
		score += penaltyRegression
	}

	return math.Round(score*100) / 100
}
