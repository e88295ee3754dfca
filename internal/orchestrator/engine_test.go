package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"ScriptForge/internal/llm"
	"ScriptForge/internal/proofs"
	"ScriptForge/internal/roles"
	"ScriptForge/internal/snapshot"
	"ScriptForge/internal/state"
)

// scriptedClient 按模型名返回预设输出，决策模型按调用次数出队。
type scriptedClient struct {
	mu        sync.Mutex
	decisions []string
	byModel   map[string]string
	calls     []string
	prompts   []string
	failAll   bool
}

func (c *scriptedClient) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req.Model)
	c.prompts = append(c.prompts, req.Prompt)

	if c.failAll {
		return nil, errors.New("connection refused")
	}

	if req.Model == "cube" { // 决策角色的默认模型
		if len(c.decisions) == 0 {
			return &llm.Response{Text: "COMPLETE"}, nil
		}
		next := c.decisions[0]
		c.decisions = c.decisions[1:]
		return &llm.Response{Text: next}, nil
	}

	if text, ok := c.byModel[req.Model]; ok {
		return &llm.Response{Text: text}, nil
	}
	return &llm.Response{Text: "acknowledged"}, nil
}

func (c *scriptedClient) callCount(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, m := range c.calls {
		if m == model {
			count++
		}
	}
	return count
}

// promptAt 返回某模型第 index 次调用收到的提示词。
func (c *scriptedClient) promptAt(model string, index int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := 0
	for i, m := range c.calls {
		if m != model {
			continue
		}
		if seen == index {
			return c.prompts[i]
		}
		seen++
	}
	return ""
}

func newEngine(client llm.Client, opts ...Option) *Engine {
	return New(client, roles.NewSet(roles.DefaultModelTable()), opts...)
}

func TestRunHappyPath(t *testing.T) {
	client := &scriptedClient{
		decisions: []string{"PLAN", "EXECUTE", "VALIDATE", "COMPOSE", "COMPLETE"},
		byModel: map[string]string{
			"promiser": "1. Print a greeting.",
			"loop":     "Write one chunk that prints a greeting.",
			"line":     "RESOURCE MANAGEMENT OK",
			"coin":     "INTEGRITY OK",
			"core":     "```python\nprint('hello')\n```",
			"work":     "VALID",
			"code":     "```python\nif __name__ == \"__main__\":\n    print('hello')\n```",
		},
	}

	outcome, err := newEngine(client).Run(context.Background(), "print a greeting")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Completed {
		t.Fatal("run should have completed")
	}
	if outcome.Cycles != 5 {
		t.Fatalf("expected 5 cycles, got %d", outcome.Cycles)
	}
	if !strings.Contains(outcome.FinalScript, "__main__") {
		t.Fatalf("final script not assembled: %q", outcome.FinalScript)
	}
	if outcome.Deliverable() != outcome.FinalScript {
		t.Fatal("deliverable should be the final script when present")
	}
	// 链：创世 + 每周期一次决策 + 扇出角色
	// 5 个决策 + PLAN 的 4 个角色 + EXECUTE/VALIDATE/COMPOSE 各 1 个
	if len(outcome.Chain) != 5+4+3 {
		t.Fatalf("unexpected chain length: %d", len(outcome.Chain))
	}
	if outcome.ChainHead != outcome.Chain[len(outcome.Chain)-1].Hash {
		t.Fatal("chain head must equal the last chain entry")
	}
	if outcome.GenesisHash == outcome.ChainHead {
		t.Fatal("chain head should have moved past genesis")
	}
}

func TestChainAnchorsRenderedInstructions(t *testing.T) {
	client := &scriptedClient{
		decisions: []string{"PLAN", "COMPLETE"},
		byModel: map[string]string{
			"promiser": "1. Print a greeting.",
			"loop":     "plan",
			"line":     "RESOURCE MANAGEMENT OK",
			"coin":     "INTEGRITY OK",
		},
	}

	outcome, err := newEngine(client).Run(context.Background(), "print a greeting")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcome.Chain) < 2 {
		t.Fatalf("chain too short: %d", len(outcome.Chain))
	}

	// 第一环锚定的是决策角色收到的指令文本，而非模型输出。
	decisionPrompt := client.promptAt("cube", 0)
	want := proofs.Extend(outcome.GenesisHash, string(roles.KindDecisionMaker), decisionPrompt)
	if outcome.Chain[0].Hash != want {
		t.Fatalf("first entry not derived from rendered instruction: got %s want %s",
			outcome.Chain[0].Hash, want)
	}
	if outcome.Chain[0].Hash == proofs.Extend(outcome.GenesisHash, string(roles.KindDecisionMaker), "PLAN") {
		t.Fatal("chain entry must not be derived from the model output")
	}

	// 扇出角色以决策后的链头为共同源，同样锚定各自的指令文本。
	goalPrompt := client.promptAt("promiser", 0)
	want = proofs.Extend(outcome.Chain[0].Hash, string(roles.KindGoalDefiner), goalPrompt)
	if outcome.Chain[1].Hash != want {
		t.Fatalf("fan-out entry not derived from rendered instruction: got %s want %s",
			outcome.Chain[1].Hash, want)
	}
}

func TestRunChainIsDeterministic(t *testing.T) {
	build := func() *scriptedClient {
		return &scriptedClient{
			decisions: []string{"PLAN", "EXECUTE", "COMPLETE"},
			byModel: map[string]string{
				"promiser": "1. Done.",
				"loop":     "plan",
				"line":     "RESOURCE MANAGEMENT OK",
				"coin":     "INTEGRITY OK",
				"core":     "```python\npass\n```",
			},
		}
	}

	first, err := newEngine(build()).Run(context.Background(), "same request")
	if err != nil {
		t.Fatal(err)
	}
	second, err := newEngine(build()).Run(context.Background(), "same request")
	if err != nil {
		t.Fatal(err)
	}
	if first.ChainHead != second.ChainHead {
		t.Fatalf("identical runs diverged: %s vs %s", first.ChainHead, second.ChainHead)
	}
	if first.GenesisHash != second.GenesisHash {
		t.Fatal("genesis must be a pure function of the request")
	}
}

func TestRunClampsInvalidDecision(t *testing.T) {
	client := &scriptedClient{
		decisions: []string{"banana", "COMPLETE"},
		byModel: map[string]string{
			"line": "RESOURCE MANAGEMENT OK",
			"coin": "INTEGRITY OK",
		},
	}

	outcome, err := newEngine(client).Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 无效决策回退到 PLAN，因此规划角色被调用过
	if client.callCount("promiser") != 1 {
		t.Fatalf("goal definer should run once after the clamp, got %d calls", client.callCount("promiser"))
	}
	if outcome.Cycles != 2 {
		t.Fatalf("expected 2 cycles, got %d", outcome.Cycles)
	}
}

func TestRunSkipsValidateWithoutChunk(t *testing.T) {
	client := &scriptedClient{
		decisions: []string{"VALIDATE", "COMPLETE"},
	}

	outcome, err := newEngine(client).Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.callCount("work") != 0 {
		t.Fatalf("checker must not be invoked without a pending chunk, got %d calls", client.callCount("work"))
	}
	// 链上只有两次决策
	if len(outcome.Chain) != 2 {
		t.Fatalf("unexpected chain length: %d", len(outcome.Chain))
	}
}

func TestRunStopsAtCycleCap(t *testing.T) {
	client := &scriptedClient{
		// 永不 COMPLETE：队列耗尽前全是 REFINE
		decisions: []string{"REFINE", "REFINE", "REFINE", "REFINE", "REFINE", "REFINE", "REFINE", "REFINE", "REFINE", "REFINE", "REFINE"},
		byModel: map[string]string{
			"loop": "keep refining",
		},
	}

	outcome, err := newEngine(client).Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Completed {
		t.Fatal("run must not report completion at the cycle cap")
	}
	if outcome.Cycles != 10 {
		t.Fatalf("expected the default cap of 10 cycles, got %d", outcome.Cycles)
	}
	if outcome.Deliverable() != FailedScriptPlaceholder {
		t.Fatalf("expected placeholder deliverable, got %q", outcome.Deliverable())
	}
}

func TestRunTransportErrorsStayInBand(t *testing.T) {
	client := &scriptedClient{failAll: true}

	outcome, err := newEngine(client, WithMaxCycles(2)).Run(context.Background(), "anything")
	if err != nil {
		t.Fatalf("transport failures must not abort the run: %v", err)
	}
	if outcome.Completed {
		t.Fatal("run with a dead backend cannot complete")
	}
	if outcome.Cycles != 2 {
		t.Fatalf("expected 2 cycles, got %d", outcome.Cycles)
	}
}

func TestRunWritesSnapshots(t *testing.T) {
	dir := t.TempDir()
	sink, err := snapshot.NewFileSink(dir)
	if err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{
		decisions: []string{"EXECUTE", "COMPLETE"},
		byModel: map[string]string{
			"core": "```python\nx = 1\n```",
		},
	}

	if _, err := newEngine(client, WithSnapshotSink(sink)).Run(context.Background(), "anything"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	raw, err := os.ReadFile(sink.Path())
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	var decoded state.Project
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("snapshot is not valid json: %v", err)
	}
	if decoded.CodeChunks["chunk_1"] != "x = 1" {
		t.Fatalf("snapshot missing produced chunk: %+v", decoded.CodeChunks)
	}
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	if _, err := newEngine(&scriptedClient{}).Run(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank request")
	}
}

func TestRunRejectsMissingClient(t *testing.T) {
	engine := New(nil, roles.NewSet(roles.DefaultModelTable()))
	if _, err := engine.Run(context.Background(), "anything"); err == nil {
		t.Fatal("expected error without a configured client")
	}
}
