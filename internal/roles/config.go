package roles

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFallbackModel 在模型表没有覆盖某个角色时使用。
const DefaultFallbackModel = "mistral"

// ModelTable models the structure of configs/roles.yaml: an explicit
// mapping from role kind to model identifier plus a fallback model for
// anything the table does not cover.
type ModelTable struct {
	Models   map[Kind]string `yaml:"models"`
	Fallback string          `yaml:"fallback"`
}

// DefaultModelTable 返回内置的角色到模型映射。
func DefaultModelTable() *ModelTable {
	return &ModelTable{
		Models: map[Kind]string{
			KindDecisionMaker:    "cube",
			KindGoalDefiner:      "promiser",
			KindCodeProducer:     "core",
			KindCodeChecker:      "work",
			KindPlanAdvisor:      "loop",
			KindAssembler:        "code",
			KindScopeAuditor:     "line",
			KindIntegrityAuditor: "coin",
		},
		Fallback: DefaultFallbackModel,
	}
}

// LoadModelTable 从 YAML 文件加载模型表，空缺项由默认表补齐。
func LoadModelTable(path string) (*ModelTable, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("模型表文件路径不能为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取模型表失败: %w", err)
	}

	var table ModelTable
	if err := yaml.Unmarshal(content, &table); err != nil {
		return nil, fmt.Errorf("解析模型表失败: %w", err)
	}

	defaults := DefaultModelTable()
	if table.Models == nil {
		table.Models = defaults.Models
	} else {
		for kind, model := range defaults.Models {
			if strings.TrimSpace(table.Models[kind]) == "" {
				table.Models[kind] = model
			}
		}
	}
	if strings.TrimSpace(table.Fallback) == "" {
		table.Fallback = defaults.Fallback
	}
	return &table, nil
}

// ModelFor 返回指定角色对应的模型，未知角色得到回退模型。
func (t *ModelTable) ModelFor(kind Kind) string {
	if t == nil {
		return DefaultFallbackModel
	}
	if model, ok := t.Models[kind]; ok && strings.TrimSpace(model) != "" {
		return model
	}
	if strings.TrimSpace(t.Fallback) != "" {
		return t.Fallback
	}
	return DefaultFallbackModel
}
