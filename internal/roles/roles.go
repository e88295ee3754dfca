package roles

import (
	"strings"

	"ScriptForge/internal/state"
)

// Kind 标识一个角色。角色集合是封闭的八元枚举，
// 不支持运行时注册新的角色。
type Kind string

const (
	KindDecisionMaker    Kind = "decision-maker"
	KindGoalDefiner      Kind = "goal-definer"
	KindCodeProducer     Kind = "code-producer"
	KindCodeChecker      Kind = "code-checker"
	KindPlanAdvisor      Kind = "plan-advisor"
	KindAssembler        Kind = "assembler"
	KindScopeAuditor     Kind = "scope-auditor"
	KindIntegrityAuditor Kind = "integrity-auditor"
)

// Kinds 按固定顺序列出全部角色。
func Kinds() []Kind {
	return []Kind{
		KindDecisionMaker,
		KindGoalDefiner,
		KindCodeProducer,
		KindCodeChecker,
		KindPlanAdvisor,
		KindAssembler,
		KindScopeAuditor,
		KindIntegrityAuditor,
	}
}

// Role 是一个角色的统一能力：根据请求与状态渲染指令文本，
// 以及把模型输出折叠回共享状态。
// Render 必须是纯函数；Fold 是唯一允许修改状态的步骤。
type Role interface {
	Kind() Kind
	Model() string
	Render(request string, project *state.Project) string
	Fold(output string, project *state.Project)
}

// Set 持有按模型表构造好的全部角色实例。
type Set struct {
	roles map[Kind]Role
}

// NewSet 依据模型表实例化八个角色。
func NewSet(table *ModelTable) *Set {
	if table == nil {
		table = DefaultModelTable()
	}
	set := &Set{roles: make(map[Kind]Role, 8)}
	set.roles[KindDecisionMaker] = &decisionMaker{model: table.ModelFor(KindDecisionMaker)}
	set.roles[KindGoalDefiner] = &goalDefiner{model: table.ModelFor(KindGoalDefiner)}
	set.roles[KindCodeProducer] = &codeProducer{model: table.ModelFor(KindCodeProducer)}
	set.roles[KindCodeChecker] = &codeChecker{model: table.ModelFor(KindCodeChecker)}
	set.roles[KindPlanAdvisor] = &planAdvisor{model: table.ModelFor(KindPlanAdvisor)}
	set.roles[KindAssembler] = &assembler{model: table.ModelFor(KindAssembler)}
	set.roles[KindScopeAuditor] = &scopeAuditor{model: table.ModelFor(KindScopeAuditor)}
	set.roles[KindIntegrityAuditor] = &integrityAuditor{model: table.ModelFor(KindIntegrityAuditor)}
	return set
}

// Get 返回指定角色。
func (s *Set) Get(kind Kind) (Role, bool) {
	role, ok := s.roles[kind]
	return role, ok
}

// codeFenceMarker 是代码类角色输出必须使用的围栏标记。
const codeFenceMarker = "```python"

// extractFenced 提取围栏内的文本。标记缺失时返回 false，
// 调用方保持状态不变（静默丢弃策略）。
func extractFenced(output string) (string, bool) {
	_, after, found := strings.Cut(output, codeFenceMarker)
	if !found {
		return "", false
	}
	body, _, _ := strings.Cut(after, "```")
	return strings.TrimSpace(body), true
}
