package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ScriptForge/internal/entropy"
	xerrors "ScriptForge/internal/errors"
	"ScriptForge/internal/llm"
	"ScriptForge/internal/observability/metrics"
	"ScriptForge/internal/proofs"
	"ScriptForge/internal/roles"
	"ScriptForge/internal/snapshot"
	"ScriptForge/internal/state"
	"ScriptForge/pkg/logger"
)

// defaultMaxCycles 是单次编排运行允许的最大决策周期数。
const defaultMaxCycles = 10

// FailedScriptPlaceholder 在运行结束仍无最终脚本时作为交付物返回。
const FailedScriptPlaceholder = "# Composition failed. No final script was generated."

// transitions 把决策动作映射到本周期需要并发调用的角色集合。
// 切片顺序即折叠顺序与指纹链追加顺序。
var transitions = map[state.Action][]roles.Kind{
	state.ActionPlan: {
		roles.KindGoalDefiner,
		roles.KindPlanAdvisor,
		roles.KindScopeAuditor,
		roles.KindIntegrityAuditor,
	},
	state.ActionExecute:  {roles.KindCodeProducer},
	state.ActionValidate: {roles.KindCodeChecker},
	state.ActionRefine:   {roles.KindPlanAdvisor},
	state.ActionCompose:  {roles.KindAssembler},
}

// ChainEntry 是指纹链上的一环：某个角色收到的指令文本被锚定后的摘要。
type ChainEntry struct {
	Role roles.Kind `json:"role"`
	Hash string     `json:"hash"`
}

// Outcome 汇总一次编排运行的全部产出。
type Outcome struct {
	FinalScript string       `json:"final_script,omitempty"`
	Completed   bool         `json:"completed"`
	Cycles      int          `json:"cycles"`
	GenesisHash string       `json:"genesis_hash"`
	ChainHead   string       `json:"chain_head"`
	Chain       []ChainEntry `json:"chain"`
}

// Deliverable 返回最终脚本；缺失时返回失败占位脚本。
func (o *Outcome) Deliverable() string {
	if strings.TrimSpace(o.FinalScript) == "" {
		return FailedScriptPlaceholder
	}
	return o.FinalScript
}

// Engine 驱动周期化的多角色编排：估算熵、请求决策、
// 并发调用角色、串行折叠输出并延伸指纹链。
type Engine struct {
	client            llm.Client
	set               *roles.Set
	sink              snapshot.Sink
	maxCycles         int
	invocationTimeout time.Duration
}

// Option 定义可选的引擎配置。
type Option func(*Engine)

// WithMaxCycles 覆盖默认的周期上限。
func WithMaxCycles(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxCycles = n
		}
	}
}

// WithSnapshotSink 配置周期末状态快照的落盘目标。
func WithSnapshotSink(sink snapshot.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithInvocationTimeout 为每次角色调用设置超时，零值表示不限时。
func WithInvocationTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.invocationTimeout = timeout
		}
	}
}

// New 创建编排引擎。
func New(client llm.Client, set *roles.Set, opts ...Option) *Engine {
	engine := &Engine{
		client:    client,
		set:       set,
		sink:      snapshot.Discard{},
		maxCycles: defaultMaxCycles,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine
}

// Run 围绕初始请求执行完整的编排运行，直到决策为 COMPLETE
// 或达到周期上限。返回的 Outcome 总是携带完整的指纹链。
func (e *Engine) Run(ctx context.Context, request string) (*Outcome, error) {
	if e.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if e.set == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置角色集合")
	}
	if strings.TrimSpace(request) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "编排请求不能为空")
	}

	project := state.NewProject()
	genesis := proofs.Genesis(request)
	outcome := &Outcome{
		GenesisHash: genesis,
		ChainHead:   genesis,
		Chain:       make([]ChainEntry, 0, e.maxCycles*2),
	}

	logger.L().Info("编排运行开始",
		slog.String("genesis_hash", genesis),
		slog.Int("max_cycles", e.maxCycles))

	for cycle := 1; cycle <= e.maxCycles; cycle++ {
		outcome.Cycles = cycle

		project.CurrentEntropyScore = entropy.Estimate(project)
		metrics.SetEntropy(project.CurrentEntropyScore)

		decision, err := e.decide(ctx, request, project, outcome)
		if err != nil {
			return outcome, err
		}
		metrics.ObserveCycle(string(decision))

		logger.L().Info("周期决策完成",
			slog.Int("cycle", cycle),
			slog.String("action", string(decision)),
			slog.Float64("entropy", project.CurrentEntropyScore))

		if decision == state.ActionComplete {
			outcome.Completed = true
			e.persist(project)
			break
		}

		kinds := transitions[decision]
		if decision == state.ActionValidate && project.LastChunkID == "" {
			// 没有待校验的代码块，显式跳过而不是空转模型。
			logger.L().Info("没有可校验的代码块，跳过 VALIDATE 周期", slog.Int("cycle", cycle))
			kinds = nil
		}

		if len(kinds) > 0 {
			if err := e.fanOut(ctx, request, project, outcome, kinds); err != nil {
				return outcome, err
			}
		}

		e.persist(project)
	}

	outcome.FinalScript = project.FinalScript
	metrics.ObserveRun(outcome.Completed, outcome.Cycles)

	logger.L().Info("编排运行结束",
		slog.Bool("completed", outcome.Completed),
		slog.Int("cycles", outcome.Cycles),
		slog.String("chain_head", outcome.ChainHead))
	return outcome, nil
}

// decide 调用决策角色并立即折叠，返回归一化后的动作。
// 指纹链在调用模型之前基于渲染出的指令文本延伸。
func (e *Engine) decide(ctx context.Context, request string, project *state.Project, outcome *Outcome) (state.Action, error) {
	role, ok := e.set.Get(roles.KindDecisionMaker)
	if !ok {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "角色集合缺少决策角色")
	}

	prompt := role.Render(request, project)
	outcome.ChainHead = proofs.Extend(outcome.ChainHead, string(role.Kind()), prompt)
	outcome.Chain = append(outcome.Chain, ChainEntry{Role: role.Kind(), Hash: outcome.ChainHead})

	output, err := e.invoke(ctx, role, prompt)
	if err != nil {
		return "", err
	}
	role.Fold(output, project)
	return project.CurrentAction, nil
}

// fanOut 以同一链头为源并发调用一组角色。指令文本在扇出前
// 统一渲染，并按声明顺序先行延伸指纹链；汇合后同样按声明顺序
// 串行折叠输出，使结果与调用完成顺序无关。
func (e *Engine) fanOut(ctx context.Context, request string, project *state.Project, outcome *Outcome, kinds []roles.Kind) error {
	type invocation struct {
		role   roles.Role
		prompt string
		output string
		err    error
	}

	results := make([]invocation, len(kinds))
	origin := outcome.ChainHead
	for i, kind := range kinds {
		role, ok := e.set.Get(kind)
		if !ok {
			return xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("角色集合缺少角色 %s", kind))
		}
		prompt := role.Render(request, project)
		hash := proofs.Extend(origin, string(kind), prompt)
		outcome.Chain = append(outcome.Chain, ChainEntry{Role: kind, Hash: hash})
		outcome.ChainHead = hash
		results[i] = invocation{role: role, prompt: prompt}
	}

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(slot *invocation) {
			defer wg.Done()
			slot.output, slot.err = e.invoke(ctx, slot.role, slot.prompt)
		}(&results[i])
	}
	wg.Wait()

	for _, result := range results {
		if result.err != nil {
			return result.err
		}
	}

	for _, result := range results {
		result.role.Fold(result.output, project)
	}
	return nil
}

// invoke 用已渲染的指令文本调用模型。传输层错误不会中断运行：
// 错误文本以带内形式进入角色输出，由折叠逻辑自行消化。
func (e *Engine) invoke(ctx context.Context, role roles.Role, prompt string) (string, error) {
	if e.invocationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.invocationTimeout)
		defer cancel()
	}

	started := time.Now()
	response, err := e.client.Generate(ctx, llm.Request{Model: role.Model(), Prompt: prompt})
	metrics.ObserveRoleInvocation(string(role.Kind()), role.Model(), time.Since(started), err == nil)
	if err != nil {
		logger.L().Warn("角色调用失败，错误文本进入带内输出",
			slog.String("role", string(role.Kind())),
			slog.String("model", role.Model()),
			slog.String("error", err.Error()))
		return fmt.Sprintf("Error: %v", err), nil
	}
	return response.Text, nil
}

// persist 尽力而为地写入状态快照，失败只记录日志。
func (e *Engine) persist(project *state.Project) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Write(project); err != nil {
		logger.L().Warn("状态快照写入失败", slog.String("error", err.Error()))
	}
}
