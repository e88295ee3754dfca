package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type roleKey struct {
	role    string
	model   string
	outcome string
}

type engineState struct {
	mu           sync.Mutex
	entropy      float64
	entropySet   bool
	cycles       map[string]uint64
	runs         map[string]uint64
	runCycles    *histogram
	roleCalls    map[roleKey]uint64
	roleLatency  map[roleKey]*histogram
}

var engineCollector = &engineState{
	cycles:      make(map[string]uint64),
	runs:        make(map[string]uint64),
	runCycles:   newHistogram([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}),
	roleCalls:   make(map[roleKey]uint64),
	roleLatency: make(map[roleKey]*histogram),
}

// SetEntropy records the most recent entropy estimate produced by the engine.
func SetEntropy(score float64) {
	engineCollector.mu.Lock()
	defer engineCollector.mu.Unlock()
	engineCollector.entropy = score
	engineCollector.entropySet = true
}

// ObserveCycle counts a decision cycle by the action it resolved to.
func ObserveCycle(action string) {
	engineCollector.mu.Lock()
	defer engineCollector.mu.Unlock()
	engineCollector.cycles[action]++
}

// ObserveRoleInvocation records a single role invocation against the model it targeted.
func ObserveRoleInvocation(role, model string, duration time.Duration, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	key := roleKey{role: role, model: model, outcome: outcome}

	engineCollector.mu.Lock()
	defer engineCollector.mu.Unlock()
	engineCollector.roleCalls[key]++
	hist := engineCollector.roleLatency[key]
	if hist == nil {
		hist = newHistogram([]float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60})
		engineCollector.roleLatency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveRun records a finished orchestration run and the cycle count it consumed.
func ObserveRun(completed bool, cycles int) {
	engineCollector.mu.Lock()
	defer engineCollector.mu.Unlock()
	engineCollector.runs[strconv.FormatBool(completed)]++
	engineCollector.runCycles.observe(float64(cycles))
}

func (c *engineState) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(1024)

	if c.entropySet {
		builder.WriteString("# HELP scriptforge_entropy_score Most recent entropy estimate of the orchestration state.\n")
		builder.WriteString("# TYPE scriptforge_entropy_score gauge\n")
		builder.WriteString(fmt.Sprintf("scriptforge_entropy_score %s\n", formatFloat(c.entropy)))
	}

	builder.WriteString("# HELP scriptforge_cycles_total Total number of decision cycles by resolved action.\n")
	builder.WriteString("# TYPE scriptforge_cycles_total counter\n")
	actions := make([]string, 0, len(c.cycles))
	for action := range c.cycles {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	for _, action := range actions {
		builder.WriteString(fmt.Sprintf("scriptforge_cycles_total{action=\"%s\"} %d\n", escape(action), c.cycles[action]))
	}

	builder.WriteString("# HELP scriptforge_runs_total Total number of finished orchestration runs.\n")
	builder.WriteString("# TYPE scriptforge_runs_total counter\n")
	outcomes := make([]string, 0, len(c.runs))
	for outcome := range c.runs {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		builder.WriteString(fmt.Sprintf("scriptforge_runs_total{completed=\"%s\"} %d\n", escape(outcome), c.runs[outcome]))
	}

	builder.WriteString("# HELP scriptforge_run_cycles Cycle count consumed per finished run.\n")
	builder.WriteString("# TYPE scriptforge_run_cycles histogram\n")
	for idx, bound := range c.runCycles.buckets {
		builder.WriteString(fmt.Sprintf("scriptforge_run_cycles_bucket{le=\"%s\"} %d\n", formatFloat(bound), c.runCycles.counts[idx]))
	}
	builder.WriteString(fmt.Sprintf("scriptforge_run_cycles_bucket{le=\"+Inf\"} %d\n", c.runCycles.count))
	builder.WriteString(fmt.Sprintf("scriptforge_run_cycles_sum %s\n", formatFloat(c.runCycles.sum)))
	builder.WriteString(fmt.Sprintf("scriptforge_run_cycles_count %d\n", c.runCycles.count))

	keys := make([]roleKey, 0, len(c.roleCalls))
	for key := range c.roleCalls {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].role == keys[j].role {
			if keys[i].model == keys[j].model {
				return keys[i].outcome < keys[j].outcome
			}
			return keys[i].model < keys[j].model
		}
		return keys[i].role < keys[j].role
	})

	builder.WriteString("# HELP scriptforge_role_invocations_total Total number of role invocations.\n")
	builder.WriteString("# TYPE scriptforge_role_invocations_total counter\n")
	for _, key := range keys {
		builder.WriteString(fmt.Sprintf("scriptforge_role_invocations_total{role=\"%s\",model=\"%s\",outcome=\"%s\"} %d\n",
			escape(key.role), escape(key.model), escape(key.outcome), c.roleCalls[key]))
	}

	builder.WriteString("# HELP scriptforge_role_invocation_duration_seconds Role invocation duration in seconds.\n")
	builder.WriteString("# TYPE scriptforge_role_invocation_duration_seconds histogram\n")
	for _, key := range keys {
		hist := c.roleLatency[key]
		if hist == nil {
			continue
		}
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("scriptforge_role_invocation_duration_seconds_bucket{role=\"%s\",model=\"%s\",outcome=\"%s\",le=\"%s\"} %d\n",
				escape(key.role), escape(key.model), escape(key.outcome), formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("scriptforge_role_invocation_duration_seconds_bucket{role=\"%s\",model=\"%s\",outcome=\"%s\",le=\"+Inf\"} %d\n",
			escape(key.role), escape(key.model), escape(key.outcome), hist.count))
		builder.WriteString(fmt.Sprintf("scriptforge_role_invocation_duration_seconds_sum{role=\"%s\",model=\"%s\",outcome=\"%s\"} %s\n",
			escape(key.role), escape(key.model), escape(key.outcome), formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("scriptforge_role_invocation_duration_seconds_count{role=\"%s\",model=\"%s\",outcome=\"%s\"} %d\n",
			escape(key.role), escape(key.model), escape(key.outcome), hist.count))
	}

	return builder.String()
}
