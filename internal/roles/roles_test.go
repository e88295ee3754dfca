package roles

import (
	"strings"
	"testing"

	"ScriptForge/internal/state"
)

func testSet(t *testing.T) *Set {
	t.Helper()
	return NewSet(DefaultModelTable())
}

func mustGet(t *testing.T, set *Set, kind Kind) Role {
	t.Helper()
	role, ok := set.Get(kind)
	if !ok {
		t.Fatalf("missing role %s", kind)
	}
	return role
}

func TestDecisionFoldClampsToEnumeration(t *testing.T) {
	role := mustGet(t, testSet(t), KindDecisionMaker)

	cases := []string{"banana", "", "complete the task", "EXECUTE NOW"}
	for _, raw := range cases {
		project := state.NewProject()
		role.Fold(raw, project)
		if project.CurrentAction != state.ActionPlan {
			t.Fatalf("Fold(%q) set action %q, want PLAN", raw, project.CurrentAction)
		}
	}

	project := state.NewProject()
	role.Fold("  compose \n", project)
	if project.CurrentAction != state.ActionCompose {
		t.Fatalf("expected COMPOSE, got %q", project.CurrentAction)
	}
}

func TestDecisionRenderReportsEntropy(t *testing.T) {
	role := mustGet(t, testSet(t), KindDecisionMaker)
	project := state.NewProject()
	project.CurrentEntropyScore = 1.25

	prompt := role.Render("build a tool", project)
	if !strings.Contains(prompt, "Current Entropy Score: 1.25") {
		t.Fatalf("prompt missing entropy score:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Current Action: INIT") {
		t.Fatalf("prompt should report INIT before the first cycle:\n%s", prompt)
	}
}

func TestCodeProducerFoldAppendsSequentially(t *testing.T) {
	role := mustGet(t, testSet(t), KindCodeProducer)
	project := state.NewProject()

	role.Fold("```python\nimport asyncio\n```", project)
	role.Fold("here you go:\n```python\nasync def main():\n    pass\n```\nthanks", project)

	if len(project.CodeChunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(project.CodeChunks))
	}
	if project.LastChunkID != "chunk_2" {
		t.Fatalf("unexpected last chunk id: %s", project.LastChunkID)
	}
	if project.CodeChunks["chunk_1"] != "import asyncio" {
		t.Fatalf("unexpected chunk body: %q", project.CodeChunks["chunk_1"])
	}
}

func TestCodeProducerFoldDropsMissingFence(t *testing.T) {
	role := mustGet(t, testSet(t), KindCodeProducer)
	project := state.NewProject()

	role.Fold("I think the code should import asyncio first.", project)

	if len(project.CodeChunks) != 0 || project.LastChunkID != "" {
		t.Fatalf("state mutated despite missing fence: %+v", project)
	}
}

func TestCodeCheckerFold(t *testing.T) {
	role := mustGet(t, testSet(t), KindCodeChecker)

	t.Run("no pending chunk", func(t *testing.T) {
		project := state.NewProject()
		role.Fold("VALID", project)
		if len(project.Validations) != 0 {
			t.Fatalf("expected no-op without last chunk id: %+v", project.Validations)
		}
	})

	t.Run("valid verdict", func(t *testing.T) {
		project := state.NewProject()
		id := project.AppendChunk("x = 1")
		role.Fold("VALID", project)
		if project.Validations[id] != state.VerdictValid {
			t.Fatalf("unexpected verdict: %q", project.Validations[id])
		}
		if project.Advice != "" {
			t.Fatalf("advice should stay empty on VALID, got %q", project.Advice)
		}
	})

	t.Run("invalid verdict feeds advice", func(t *testing.T) {
		project := state.NewProject()
		id := project.AppendChunk("x = ")
		role.Fold("INVALID: incomplete assignment", project)
		if project.Validations[id] != "INVALID - INVALID: incomplete assignment" {
			t.Fatalf("unexpected verdict: %q", project.Validations[id])
		}
		if !strings.Contains(project.Advice, "Validation failed for "+id) {
			t.Fatalf("advice not updated: %q", project.Advice)
		}
	})
}

func TestValidationKeysSubsetOfChunks(t *testing.T) {
	set := testSet(t)
	producer := mustGet(t, set, KindCodeProducer)
	checker := mustGet(t, set, KindCodeChecker)
	project := state.NewProject()

	for i := 0; i < 5; i++ {
		producer.Fold("```python\npass\n```", project)
		verdict := "VALID"
		if i%2 == 1 {
			verdict = "INVALID: nope"
		}
		checker.Fold(verdict, project)
	}

	for id := range project.Validations {
		if _, ok := project.CodeChunks[id]; !ok {
			t.Fatalf("validation key %s has no chunk", id)
		}
	}
}

func TestPlanAdvisorFoldOverwriteRules(t *testing.T) {
	role := mustGet(t, testSet(t), KindPlanAdvisor)

	project := state.NewProject()
	role.Fold("initial plan: do X then Y", project)
	if project.Plan != "initial plan: do X then Y" {
		t.Fatalf("missing plan should be created: %q", project.Plan)
	}

	role.Fold("just keep going", project)
	if project.Plan != "initial plan: do X then Y" {
		t.Fatalf("plan overwritten without refinement signal: %q", project.Plan)
	}
	if project.Advice != "just keep going" {
		t.Fatalf("advice not updated: %q", project.Advice)
	}

	role.Fold("Refinement: split step Y into two chunks", project)
	if project.Plan != "Refinement: split step Y into two chunks" {
		t.Fatalf("refinement output should replace the plan: %q", project.Plan)
	}
}

func TestPlanAdvisorRenderExcludesChunkBodies(t *testing.T) {
	role := mustGet(t, testSet(t), KindPlanAdvisor)
	project := state.NewProject()
	project.AppendChunk("very_secret_chunk_body")

	prompt := role.Render("goal", project)
	if strings.Contains(prompt, "very_secret_chunk_body") {
		t.Fatalf("advisor prompt must not include chunk bodies:\n%s", prompt)
	}
}

func TestAssemblerGatesOnExactValidVerdict(t *testing.T) {
	role := mustGet(t, testSet(t), KindAssembler)
	project := state.NewProject()

	good := project.AppendChunk("print('good')")
	bad := project.AppendChunk("print('bad')")
	odd := project.AppendChunk("print('odd')")
	project.Validations[good] = state.VerdictValid
	project.Validations[bad] = "INVALID - broken"
	project.Validations[odd] = "VALID - with caveats"

	prompt := role.Render("goal", project)
	if !strings.Contains(prompt, "print('good')") {
		t.Fatalf("valid chunk missing from assembler prompt:\n%s", prompt)
	}
	if strings.Contains(prompt, "print('bad')") || strings.Contains(prompt, "print('odd')") {
		t.Fatalf("non-VALID chunks leaked into assembler prompt:\n%s", prompt)
	}
}

func TestAssemblerFold(t *testing.T) {
	role := mustGet(t, testSet(t), KindAssembler)
	project := state.NewProject()

	role.Fold("no fence here", project)
	if project.FinalScript != "" {
		t.Fatalf("final script set despite missing fence: %q", project.FinalScript)
	}

	role.Fold("```python\nif __name__ == \"__main__\":\n    main()\n```", project)
	if !strings.Contains(project.FinalScript, "__main__") {
		t.Fatalf("final script not extracted: %q", project.FinalScript)
	}
}

func TestAuditorsOverwriteReports(t *testing.T) {
	set := testSet(t)
	project := state.NewProject()

	scope := mustGet(t, set, KindScopeAuditor)
	scope.Fold("first assessment", project)
	scope.Fold("RESOURCE MANAGEMENT OK", project)
	if project.ResourceManagement != "RESOURCE MANAGEMENT OK" {
		t.Fatalf("resource report not overwritten: %q", project.ResourceManagement)
	}

	integrity := mustGet(t, set, KindIntegrityAuditor)
	integrity.Fold("INTEGRITY OK", project)
	if project.PromptIntegrity != "INTEGRITY OK" {
		t.Fatalf("integrity report not stored: %q", project.PromptIntegrity)
	}
}

func TestGoalDefinerOverwrites(t *testing.T) {
	role := mustGet(t, testSet(t), KindGoalDefiner)
	project := state.NewProject()
	project.SuccessCriteria = "1. old"

	role.Fold("1. new criteria", project)
	if project.SuccessCriteria != "1. new criteria" {
		t.Fatalf("criteria not overwritten: %q", project.SuccessCriteria)
	}
}

func TestRenderIsPure(t *testing.T) {
	set := testSet(t)
	project := state.NewProject()
	project.Plan = "plan"
	project.AppendChunk("x = 1")
	before := project.FullJSON()

	for _, kind := range Kinds() {
		role := mustGet(t, set, kind)
		_ = role.Render("request", project)
	}
	if after := project.FullJSON(); after != before {
		t.Fatalf("render mutated state:\nbefore: %s\nafter: %s", before, after)
	}
}
