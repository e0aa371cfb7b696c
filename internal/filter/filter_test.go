package filter

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestFilter_Match(t *testing.T) {
	f, err := New(`(u) => u.type === "task"`, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !f.Match(json.RawMessage(`{"type":"task","id":1}`)) {
		t.Error("matching update filtered out")
	}
	if f.Match(json.RawMessage(`{"type":"dataset","id":2}`)) {
		t.Error("non-matching update passed")
	}
}

func TestFilter_CompileError(t *testing.T) {
	if _, err := New(`(u) =>`, zerolog.Nop()); err == nil {
		t.Error("expected compile error")
	}
}

func TestFilter_NotAFunction(t *testing.T) {
	if _, err := New(`42`, zerolog.Nop()); err == nil {
		t.Error("expected error for non-function filter")
	}
}

func TestFilter_EvaluationErrorFailsOpen(t *testing.T) {
	f, err := New(`(u) => u.missing.deeply.nested`, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !f.Match(json.RawMessage(`{"type":"task"}`)) {
		t.Error("evaluation errors must fail open")
	}
}

func TestFilter_MalformedUpdateFailsOpen(t *testing.T) {
	f, err := New(`(u) => false`, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !f.Match(json.RawMessage(`{not json`)) {
		t.Error("malformed updates must fail open")
	}
}
