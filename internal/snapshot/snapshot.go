// Package snapshot 负责把编排共享状态落盘，供外部观察进度。
// 写入是尽力而为的：失败只记录日志，绝不中断编排周期。
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"ScriptForge/internal/state"
)

// StateFileName 是共享状态快照在数据目录中的文件名。
const StateFileName = "current_state.json"

// Sink 接收每个周期结束时的共享状态。
type Sink interface {
	Write(project *state.Project) error
}

// FileSink 把状态以 JSON 形式写到数据目录下的固定文件。
type FileSink struct {
	dir string
}

// NewFileSink 创建文件快照写入器，数据目录不存在时会创建。
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("快照目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建快照目录失败: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Path 返回快照文件的完整路径。
func (s *FileSink) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

// Write 覆盖写入最新状态。
func (s *FileSink) Write(project *state.Project) error {
	data := project.FullJSON()
	if err := os.WriteFile(s.Path(), []byte(data), 0o644); err != nil {
		return fmt.Errorf("写入状态快照失败: %w", err)
	}
	return nil
}

// Discard 丢弃所有快照，用于未配置数据目录的场景。
type Discard struct{}

func (Discard) Write(*state.Project) error { return nil }
