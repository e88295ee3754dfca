package proofs

import "testing"

func TestGenesisDeterministic(t *testing.T) {
	first := Genesis("write a hello world script")
	second := Genesis("write a hello world script")
	if first != second {
		t.Fatalf("genesis not deterministic: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
	if other := Genesis("write a different script"); other == first {
		t.Fatalf("different requests produced identical genesis hash")
	}
}

func TestExtendChainsThoughts(t *testing.T) {
	head := Genesis("demo")

	a := Extend(head, "decision-maker", "thought one")
	b := Extend(head, "decision-maker", "thought one")
	if a != b {
		t.Fatalf("extend not deterministic: %s vs %s", a, b)
	}

	if c := Extend(head, "decision-maker", "thought two"); c == a {
		t.Fatalf("different thoughts produced identical fingerprint")
	}
	if d := Extend(head, "plan-advisor", "thought one"); d == a {
		t.Fatalf("different roles produced identical fingerprint")
	}
	if e := Extend(a, "decision-maker", "thought one"); e == a {
		t.Fatalf("chained fingerprint collided with its origin")
	}
}
