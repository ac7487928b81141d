package embedding

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestLocal_IndexAndTopK(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Index(ctx, "mem1", []float64{1, 0, 0}, "quantum AI", time.Now()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if err := idx.Index(ctx, "mem2", []float64{0, 1, 0}, "unrelated topic", time.Now()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	matches, err := idx.TopK(ctx, []float64{1, 0, 0}, 3, 0.7)
	if err != nil {
		t.Fatalf("TopK() error = %v", err)
	}
	if len(matches) != 1 || matches[0].MemID != "mem1" {
		t.Fatalf("matches = %+v, want [mem1]", matches)
	}
	if math.Abs(matches[0].Score-1.0) > 1e-9 {
		t.Errorf("score = %v, want ~1.0", matches[0].Score)
	}
}

func TestLocal_ReplaysSnapshotAndLog(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	ctx := context.Background()
	if err := idx.Index(ctx, "mem1", []float64{1, 0}, "alpha", time.Now()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if err := idx.Snapshot(); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if err := idx.Index(ctx, "mem2", []float64{0, 1}, "beta", time.Now()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if err := idx.logFile.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	reloaded, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() reload error = %v", err)
	}
	defer reloaded.Close()

	matches, err := reloaded.TopK(ctx, []float64{1, 0}, 5, 0.0)
	if err != nil {
		t.Fatalf("TopK() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2 (snapshot + replayed log)", len(matches))
	}
}

func TestLocal_TopKDropsBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	defer idx.Close()
	ctx := context.Background()
	if err := idx.Index(ctx, "mem1", []float64{1, 0}, "alpha", time.Now()); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	matches, err := idx.TopK(ctx, []float64{0, 1}, 5, 0.7)
	if err != nil {
		t.Fatalf("TopK() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %+v, want none below threshold", matches)
	}
}
