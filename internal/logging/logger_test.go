package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultIsSilent(t *testing.T) {
	Configure(nil)
	// Must not panic and must not be nil.
	L(CategoryEngine).Info("dropped")
}

func TestCategoryGating(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Configure(zap.New(core), CategoryEngine)
	defer Configure(nil)

	L(CategoryEngine).Info("kept")
	L(CategoryTemplates).Info("dropped")

	if got := logs.Len(); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
	if msg := logs.All()[0].Message; msg != "kept" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestAllCategoriesWhenUnfiltered(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Configure(zap.New(core))
	defer Configure(nil)

	L(CategoryEngine).Info("a")
	L(CategoryFiles).Info("b")

	if got := logs.Len(); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}
}
