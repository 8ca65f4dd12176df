package agent

import (
	"errors"
	"testing"
)

func TestNewResultValidation(t *testing.T) {
	if _, err := NewResult("summarizer", true, "x", 0.5); err == nil {
		t.Fatal("expected error for unknown agent type")
	}
	if _, err := NewResult(TypeExtraction, true, "x", -0.1); err == nil {
		t.Fatal("expected error for negative confidence")
	}
	if _, err := NewResult(TypeExtraction, true, "x", 1.1); err == nil {
		t.Fatal("expected error for confidence above 1; it must never be clamped")
	}

	r, err := NewResult(TypeCompliance, true, "ok", 1.0)
	if err != nil {
		t.Fatalf("boundary confidence 1.0 should be valid: %v", err)
	}
	if r.Confidence != 1.0 {
		t.Errorf("confidence altered: %v", r.Confidence)
	}

	if _, err := NewResult(TypeDescription, false, "", 0); err != nil {
		t.Fatalf("boundary confidence 0 should be valid: %v", err)
	}
}

func TestFailure(t *testing.T) {
	r := Failure(TypeTaxSuggestion, errors.New("timeout"))
	if r.Success {
		t.Error("failure result must not be successful")
	}
	if r.Error != "timeout" {
		t.Errorf("expected error message 'timeout', got %q", r.Error)
	}
	if r.Confidence != 0 {
		t.Errorf("expected zero confidence, got %v", r.Confidence)
	}

	if got := Failure(TypeExtraction, nil); got.Error == "" {
		t.Error("nil error must still produce a non-empty message")
	}
}

func TestFailed(t *testing.T) {
	ok, _ := NewResult(TypeExtraction, true, "x", 0.9)
	if ok.Failed() {
		t.Error("successful result reported as failed")
	}

	// A set error dominates even when success was left true.
	buggy := &Result{AgentType: TypeExtraction, Success: true, Error: "rate limited"}
	if !buggy.Failed() {
		t.Error("result with error must be failed regardless of success flag")
	}

	unsuccessful := &Result{AgentType: TypeExtraction, Success: false}
	if !unsuccessful.Failed() {
		t.Error("unsuccessful result must be failed")
	}
}

func TestToMapOmitsUnsetOptionals(t *testing.T) {
	r, _ := NewResult(TypeDescription, true, "drafted", 0.8)
	m := r.ToMap()

	if _, ok := m["error"]; ok {
		t.Error("error key must be absent when unset")
	}
	if _, ok := m["metadata"]; ok {
		t.Error("metadata key must be absent when unset")
	}
	if m["agent_type"] != "description" || m["confidence"] != 0.8 {
		t.Errorf("unexpected map: %+v", m)
	}

	failed := Failure(TypeDescription, errors.New("boom")).ToMap()
	if failed["error"] != "boom" {
		t.Errorf("expected error in map, got %+v", failed)
	}
}

func TestWithMetadataCopies(t *testing.T) {
	r, _ := NewResult(TypeCompliance, true, "ok", 0.9)
	r2 := r.WithMetadata("model", "gpt-4o-mini")

	if len(r.Metadata) != 0 {
		t.Error("receiver must not be modified")
	}
	if r2.Metadata["model"] != "gpt-4o-mini" {
		t.Errorf("metadata not set on copy: %+v", r2.Metadata)
	}

	r3 := r2.WithMetadata("cached", true)
	if _, ok := r2.Metadata["cached"]; ok {
		t.Error("chained WithMetadata leaked into earlier copy")
	}
	if r3.Metadata["model"] != "gpt-4o-mini" || r3.Metadata["cached"] != true {
		t.Errorf("expected merged metadata, got %+v", r3.Metadata)
	}
}
