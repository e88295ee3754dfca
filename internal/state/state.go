package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Action 表示编排引擎在一个周期内可以执行的动作。
type Action string

const (
	ActionPlan     Action = "PLAN"
	ActionExecute  Action = "EXECUTE"
	ActionValidate Action = "VALIDATE"
	ActionRefine   Action = "REFINE"
	ActionCompose  Action = "COMPOSE"
	ActionComplete Action = "COMPLETE"
)

// ParseAction 对模型输出做大小写与空白归一化，并校验是否落在动作枚举内。
func ParseAction(raw string) (Action, bool) {
	action := Action(strings.ToUpper(strings.TrimSpace(raw)))
	switch action {
	case ActionPlan, ActionExecute, ActionValidate, ActionRefine, ActionCompose, ActionComplete:
		return action, true
	default:
		return "", false
	}
}

// VerdictValid 是校验通过时记录的唯一合法判定值。
const VerdictValid = "VALID"

// IsInvalidVerdict 判断一条校验判定是否为否决。
func IsInvalidVerdict(verdict string) bool {
	return strings.HasPrefix(verdict, "INVALID")
}

// Project 是一次编排运行期间唯一的共享可变聚合。
// 它只在引擎协程内被 Fold 调用修改，生命周期不跨运行。
type Project struct {
	CurrentAction       Action            `json:"current_action,omitempty"`
	Plan                string            `json:"plan,omitempty"`
	SuccessCriteria     string            `json:"success_criteria,omitempty"`
	CodeChunks          map[string]string `json:"code_chunks"`
	LastChunkID         string            `json:"last_chunk_id,omitempty"`
	Validations         map[string]string `json:"validations"`
	Advice              string            `json:"advice,omitempty"`
	PromptIntegrity     string            `json:"prompt_integrity,omitempty"`
	ResourceManagement  string            `json:"resource_management,omitempty"`
	CurrentEntropyScore float64           `json:"current_entropy_score"`
	FinalScript         string            `json:"final_script,omitempty"`
}

// NewProject 创建一个空的项目状态。
func NewProject() *Project {
	return &Project{
		CodeChunks:  make(map[string]string),
		Validations: make(map[string]string),
	}
}

// AppendChunk 追加一个代码块并返回分配到的单调递增 id（chunk_<n>）。
func (p *Project) AppendChunk(text string) string {
	id := fmt.Sprintf("chunk_%d", len(p.CodeChunks)+1)
	p.CodeChunks[id] = text
	p.LastChunkID = id
	return id
}

// ChunkIDs 按分配顺序返回全部代码块 id。
func (p *Project) ChunkIDs() []string {
	ids := make([]string, 0, len(p.CodeChunks))
	for id := range p.CodeChunks {
		ids = append(ids, id)
	}
	sortChunkIDs(ids)
	return ids
}

// ValidChunkIDs 按分配顺序返回判定恰好为 VALID 的代码块 id。
func (p *Project) ValidChunkIDs() []string {
	ids := make([]string, 0, len(p.Validations))
	for id, verdict := range p.Validations {
		if verdict == VerdictValid {
			ids = append(ids, id)
		}
	}
	sortChunkIDs(ids)
	return ids
}

// InvalidChunkIDs 按分配顺序返回被否决的代码块 id。
func (p *Project) InvalidChunkIDs() []string {
	ids := make([]string, 0, len(p.Validations))
	for id, verdict := range p.Validations {
		if IsInvalidVerdict(verdict) {
			ids = append(ids, id)
		}
	}
	sortChunkIDs(ids)
	return ids
}

// SummaryJSON 序列化除代码块与校验表之外的状态，
// 用于限制顾问类提示词的体积。
func (p *Project) SummaryJSON() string {
	summary := map[string]any{
		"current_action":        p.CurrentAction,
		"plan":                  p.Plan,
		"success_criteria":      p.SuccessCriteria,
		"last_chunk_id":         p.LastChunkID,
		"advice":                p.Advice,
		"prompt_integrity":      p.PromptIntegrity,
		"resource_management":   p.ResourceManagement,
		"current_entropy_score": p.CurrentEntropyScore,
		"final_script":          p.FinalScript,
	}
	return marshalIndent(summary)
}

// FullJSON 序列化完整状态，供审计类角色与快照使用。
func (p *Project) FullJSON() string {
	return marshalIndent(p)
}

func marshalIndent(value any) string {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// sortChunkIDs 按 chunk_<n> 中的序号排序，保证组装顺序稳定。
func sortChunkIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return chunkIndex(ids[i]) < chunkIndex(ids[j])
	})
}

func chunkIndex(id string) int {
	raw := strings.TrimPrefix(id, "chunk_")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return index
}
