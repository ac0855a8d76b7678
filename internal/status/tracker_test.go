package status

import (
	"fmt"
	"sync"
	"testing"

	"github.com/kalambet/dealscout/internal/product"
)

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker()
	if err := tr.Initialize("s1"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	rec, ok := tr.Get("s1")
	if !ok {
		t.Fatal("record missing after Initialize")
	}
	if rec.State != StatePending {
		t.Errorf("state = %q, want pending", rec.State)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	tr.MarkProcessing("s1")
	rec, _ = tr.Get("s1")
	if rec.State != StateProcessing {
		t.Errorf("state = %q, want processing", rec.State)
	}

	results := []product.Candidate{{Title: "keyboard", Price: 42}}
	tr.Complete("s1", results)
	rec, _ = tr.Get("s1")
	if rec.State != StateCompleted {
		t.Errorf("state = %q, want completed", rec.State)
	}
	if len(rec.Results) != 1 || rec.Results[0].Title != "keyboard" {
		t.Errorf("results = %+v", rec.Results)
	}
	if rec.Err != "" {
		t.Errorf("err = %q, want empty", rec.Err)
	}
}

func TestTracker_Fail(t *testing.T) {
	tr := NewTracker()
	if err := tr.Initialize("s1"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	tr.MarkProcessing("s1")
	tr.Fail("s1", "no scrapers responded")

	rec, _ := tr.Get("s1")
	if rec.State != StateFailed {
		t.Errorf("state = %q, want failed", rec.State)
	}
	if rec.Err != "no scrapers responded" {
		t.Errorf("err = %q", rec.Err)
	}
	if rec.Results != nil {
		t.Errorf("results = %+v, want nil", rec.Results)
	}
}

func TestTracker_DuplicateInitialize(t *testing.T) {
	tr := NewTracker()
	if err := tr.Initialize("s1"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := tr.Initialize("s1"); err == nil {
		t.Fatal("expected error on duplicate id")
	}
}

func TestTracker_UnknownIDIgnored(t *testing.T) {
	tr := NewTracker()
	tr.MarkProcessing("ghost")
	tr.Complete("ghost", nil)
	tr.Fail("ghost", "boom")
	if _, ok := tr.Get("ghost"); ok {
		t.Fatal("transition on unknown id must not create a record")
	}
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("s%d", i)
		if err := tr.Initialize(id); err != nil {
			t.Fatalf("initialize %s: %v", id, err)
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.MarkProcessing(id)
			tr.Complete(id, nil)
		}()
		go func() {
			defer wg.Done()
			tr.Get(id)
		}()
	}
	wg.Wait()
	for i := 0; i < 20; i++ {
		rec, ok := tr.Get(fmt.Sprintf("s%d", i))
		if !ok || rec.State != StateCompleted {
			t.Errorf("record s%d = %+v, ok=%v", i, rec, ok)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	if StatePending.Terminal() || StateProcessing.Terminal() {
		t.Error("pending/processing must not be terminal")
	}
	if !StateCompleted.Terminal() || !StateFailed.Terminal() {
		t.Error("completed/failed must be terminal")
	}
}
