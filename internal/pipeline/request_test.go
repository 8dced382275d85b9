package pipeline

import (
	"context"
	"strings"
	"testing"
)

func TestProcessPartsDeclaredOverflowUploadsNothing(t *testing.T) {
	store := objectstoreMemory()
	engine := newTestEngine(t, store, engineOptions{aggregateMax: 100})

	parts := []Part{
		{FieldName: "files", FileName: "a.bin", DeclaredSize: 80, Body: strings.NewReader(strings.Repeat("a", 80))},
		{FieldName: "files", FileName: "b.bin", DeclaredSize: 80, Body: strings.NewReader(strings.Repeat("b", 80))},
	}
	outcomes := engine.ProcessParts(context.Background(), parts)

	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, outcome := range outcomes {
		if KindOf(outcome.Err) != KindRequestTooLarge {
			t.Fatalf("expected kind %q for %s, got %q (%v)",
				KindRequestTooLarge, outcome.FileName, KindOf(outcome.Err), outcome.Err)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("expected no uploads performed, got keys %v", store.Keys())
	}
}

func TestProcessPartsStreamingOverflow(t *testing.T) {
	store := objectstoreMemory()
	engine := newTestEngine(t, store, engineOptions{aggregateMax: 64})

	// Unknown declared size forces enforcement during streaming.
	outcomes := engine.ProcessParts(context.Background(), []Part{
		{FieldName: "files", FileName: "big.bin", DeclaredSize: -1, Body: strings.NewReader(strings.Repeat("x", 256))},
	})
	if KindOf(outcomes[0].Err) != KindRequestTooLarge {
		t.Fatalf("expected kind %q, got %q (%v)", KindRequestTooLarge, KindOf(outcomes[0].Err), outcomes[0].Err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no completed uploads, got keys %v", store.Keys())
	}
}

func TestProcessPartsIsolatesFailures(t *testing.T) {
	store := objectstoreMemory()
	engine := newTestEngine(t, store, engineOptions{})

	outcomes := engine.ProcessParts(context.Background(), []Part{
		{FieldName: "mystery", FileName: "a.jpg", Body: strings.NewReader("a")},
		{FieldName: "banner", FileName: "hero.png", Body: strings.NewReader("banner-bytes")},
	})

	if KindOf(outcomes[0].Err) != KindUnknownField {
		t.Fatalf("expected unknown field failure, got %v", outcomes[0].Err)
	}
	if outcomes[1].Err != nil {
		t.Fatalf("expected second part to succeed, got %v", outcomes[1].Err)
	}
	if outcomes[1].Result == nil || outcomes[1].Result.Category != "banner" {
		t.Fatalf("unexpected result %+v", outcomes[1].Result)
	}
	if store.Len() != 1 {
		t.Fatalf("expected exactly one stored object, got keys %v", store.Keys())
	}
}
