package session

import "testing"

func TestAccumulatorCommitAppends(t *testing.T) {
	a := NewAccumulator()

	if got := a.Commit("Tell me about"); got != "Tell me about" {
		t.Fatalf("expected first commit verbatim, got %q", got)
	}
	if got := a.Commit("  a recent project.  "); got != "Tell me about a recent project." {
		t.Fatalf("expected single-space join, got %q", got)
	}
	if got := a.Commit("   "); got != "Tell me about a recent project." {
		t.Fatalf("blank commit must not change transcript, got %q", got)
	}
}

func TestAccumulatorCommitClearsSegment(t *testing.T) {
	a := NewAccumulator()
	a.Update("tell me ab")
	a.Commit("Tell me about your role.")

	segment, accumulated := a.Snapshot()
	if segment != "" {
		t.Fatalf("expected segment cleared after commit, got %q", segment)
	}
	if accumulated != "Tell me about your role." {
		t.Fatalf("unexpected accumulated text %q", accumulated)
	}
}

func TestAccumulatorFreezeResetsAtomically(t *testing.T) {
	a := NewAccumulator()
	a.Commit("What motivates you?")
	a.Update("and also")

	if got := a.Freeze(); got != "What motivates you?" {
		t.Fatalf("unexpected snapshot %q", got)
	}

	segment, accumulated := a.Snapshot()
	if segment != "" || accumulated != "" {
		t.Fatalf("expected empty state after freeze, got %q / %q", segment, accumulated)
	}
	if got := a.Freeze(); got != "" {
		t.Fatalf("second freeze must observe empty state, got %q", got)
	}
}

func TestAccumulatorUpdateReplaces(t *testing.T) {
	a := NewAccumulator()
	a.Update("what mo")
	a.Update("what motivates")

	segment, _ := a.Snapshot()
	if segment != "what motivates" {
		t.Fatalf("expected latest interim, got %q", segment)
	}
}

func TestAccumulatorReset(t *testing.T) {
	a := NewAccumulator()
	a.Commit("Some confirmed text.")
	a.Update("interim")
	a.Reset()

	segment, accumulated := a.Snapshot()
	if segment != "" || accumulated != "" {
		t.Fatalf("expected cleared state, got %q / %q", segment, accumulated)
	}
}
