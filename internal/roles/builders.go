package roles

import (
	"fmt"
	"strings"

	"ScriptForge/internal/state"
)

// codeProducer 每次产出一个逻辑上独立的代码块。
type codeProducer struct {
	model string
}

func (r *codeProducer) Kind() Kind    { return KindCodeProducer }
func (r *codeProducer) Model() string { return r.model }

func (r *codeProducer) Render(request string, project *state.Project) string {
	return fmt.Sprintf(`You are the code producer. Your task is to write a single, logical chunk of Python code to help achieve the goal.
Goal: %s
Success Criteria: %s
Current Code Plan: %s
Existing Chunks: %v
Advisor's Last Remark: %s
Write the next necessary code chunk. Enclose the code within %s ... %s.
Your output MUST contain ONLY the Python code chunk, formatted strictly within %s ... %s tags, with no extra conversational text.
`, request, project.SuccessCriteria, project.Plan, project.ChunkIDs(), project.Advice,
		codeFenceMarker, "```", codeFenceMarker, "```")
}

// Fold 提取围栏内代码并追加为新块；标记缺失时不做任何修改。
func (r *codeProducer) Fold(output string, project *state.Project) {
	chunk, ok := extractFenced(output)
	if !ok {
		return
	}
	project.AppendChunk(chunk)
}

// codeChecker 对最近追加的代码块给出判定。
type codeChecker struct {
	model string
}

func (r *codeChecker) Kind() Kind    { return KindCodeChecker }
func (r *codeChecker) Model() string { return r.model }

func (r *codeChecker) Render(request string, project *state.Project) string {
	lastChunkID := project.LastChunkID
	if lastChunkID == "" {
		lastChunkID = "None"
	}
	chunk, ok := project.CodeChunks[project.LastChunkID]
	if !ok {
		chunk = "No new chunk to validate."
	}
	return fmt.Sprintf(`You are the code checker, the validator. Analyze the following Python code chunk for correctness, syntax errors, and adherence to the plan and success criteria.
Code Chunk ('%s'):
%s

Success Criteria: %s
Respond STRICTLY with 'VALID' if it's good, or 'INVALID:' followed by a brief, actionable reason for rejection. Do not include any other text.
`, lastChunkID, chunk, project.SuccessCriteria)
}

// Fold 以最近块 id 记录判定；尚无块时是显式空操作。
// 否决时同时把原因写入 advice，反馈给后续周期。
func (r *codeChecker) Fold(output string, project *state.Project) {
	lastChunkID := project.LastChunkID
	if lastChunkID == "" {
		return
	}
	if strings.HasPrefix(output, state.VerdictValid) {
		project.Validations[lastChunkID] = state.VerdictValid
		return
	}
	project.Validations[lastChunkID] = fmt.Sprintf("INVALID - %s", output)
	project.Advice = fmt.Sprintf("Validation failed for %s: %s", lastChunkID, output)
}

// assembler 把全部判定为 VALID 的代码块组装成最终脚本。
type assembler struct {
	model string
}

func (r *assembler) Kind() Kind    { return KindAssembler }
func (r *assembler) Model() string { return r.model }

func (r *assembler) Render(request string, project *state.Project) string {
	var validChunks strings.Builder
	for _, id := range project.ValidChunkIDs() {
		fmt.Fprintf(&validChunks, "# %s\n%s\n\n", id, project.CodeChunks[id])
	}
	if validChunks.Len() == 0 {
		validChunks.WriteString("(no validated chunks)\n")
	}
	return fmt.Sprintf(`You are the assembler, the composer. Your task is to assemble the validated code chunks into a single, coherent, and executable Python script.
Validated Chunks:
%s
Success Criteria: %s
Ensure all necessary imports are at the top. Add appropriate function definitions and a main execution block (e.g., 'if __name__ == "__main__":'). Ensure correct indentation, logical flow, and order for a fully functional script.
Enclose the final script within %s ... %s. Your output MUST contain ONLY the Python script, formatted strictly within %s ... %s tags, with no extra conversational text.
`, validChunks.String(), project.SuccessCriteria,
		codeFenceMarker, "```", codeFenceMarker, "```")
}

// Fold 提取围栏内脚本写入 finalScript；标记缺失时不做任何修改。
// 重复调用同样覆盖，最终以最后一次组装为准。
func (r *assembler) Fold(output string, project *state.Project) {
	script, ok := extractFenced(output)
	if !ok {
		return
	}
	project.FinalScript = script
}
