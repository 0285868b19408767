package signature

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/subflow-io/subflow/internal/sigstore"
	"github.com/subflow-io/subflow/pkg/api"
)

func testJob(t *testing.T, dir string) api.Job {
	t.Helper()
	in := writeFile(t, dir, "in.txt", "input data")
	out := filepath.Join(dir, "out.txt")
	return api.Job{
		StepID:        "step_1",
		StepTokens:    []string{"run", "(", "cmd", ")"},
		Input:         []string{in},
		Output:        api.OutputSpec{Targets: []string{out}, Mode: api.OutputDetermined},
		SignatureVars: []string{"n"},
		ProcessVars:   map[string]any{"n": 3},
	}
}

func TestRecord_KeyStable(t *testing.T) {
	dir := t.TempDir()
	job := testJob(t, dir)

	r1 := NewRecord(job, api.NewExecutionContext(job))
	r2 := NewRecord(job, api.NewExecutionContext(job))
	if r1.Key() != r2.Key() {
		t.Fatalf("same job must produce the same key")
	}

	job2 := job
	job2.ProcessVars = map[string]any{"n": 4}
	r3 := NewRecord(job2, api.NewExecutionContext(job2))
	if r3.Key() == r1.Key() {
		t.Fatalf("signature variables must participate in the key")
	}
}

func TestRecord_WriteThenValidate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := sigstore.NewMemoryStore()
	job := testJob(t, dir)

	r := NewRecord(job, api.NewExecutionContext(job))
	if err := r.Lock(ctx, store, "w1", time.Minute, time.Second); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	writeFile(t, dir, "out.txt", "result")
	if _, err := r.Write(ctx, store, map[string]any{"count": 12}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Release(ctx, store)

	fresh := NewRecord(job, api.NewExecutionContext(job))
	content, matched, err := fresh.Validate(ctx, store)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !matched {
		t.Fatalf("expected a matching signature")
	}
	if content.Shared["count"] != 12 {
		t.Fatalf("shared context lost: %v", content.Shared)
	}
	if len(content.Output) != 1 {
		t.Fatalf("output lost: %v", content.Output)
	}
}

func TestRecord_ValidateRejectsChangedInput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := sigstore.NewMemoryStore()
	job := testJob(t, dir)

	r := NewRecord(job, api.NewExecutionContext(job))
	if err := r.Lock(ctx, store, "w1", time.Minute, time.Second); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	writeFile(t, dir, "out.txt", "result")
	if _, err := r.Write(ctx, store, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Release(ctx, store)

	writeFile(t, dir, "in.txt", "changed input")

	_, matched, err := NewRecord(job, api.NewExecutionContext(job)).Validate(ctx, store)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if matched {
		t.Fatalf("changed input must invalidate the signature")
	}
}

func TestRecord_ValidateRejectsRemovedOutput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := sigstore.NewMemoryStore()
	job := testJob(t, dir)

	r := NewRecord(job, api.NewExecutionContext(job))
	if err := r.Lock(ctx, store, "w1", time.Minute, time.Second); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	out := writeFile(t, dir, "out.txt", "result")
	if _, err := r.Write(ctx, store, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Release(ctx, store)

	if err := os.Remove(out); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, matched, err := NewRecord(job, api.NewExecutionContext(job)).Validate(ctx, store)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if matched {
		t.Fatalf("removed output must invalidate the signature")
	}
}

func TestRecord_ValidateMissingRecord(t *testing.T) {
	dir := t.TempDir()
	job := testJob(t, dir)

	_, matched, err := NewRecord(job, api.NewExecutionContext(job)).Validate(context.Background(), sigstore.NewMemoryStore())
	if err != nil {
		t.Fatalf("a missing record is not an error: %v", err)
	}
	if matched {
		t.Fatalf("missing record must not match")
	}
}

func TestRecord_WriteRequiresLock(t *testing.T) {
	dir := t.TempDir()
	job := testJob(t, dir)

	r := NewRecord(job, api.NewExecutionContext(job))
	if _, err := r.Write(context.Background(), sigstore.NewMemoryStore(), nil); err == nil {
		t.Fatalf("expected write without lock to fail")
	}
}

func TestRecord_LockContention(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := sigstore.NewMemoryStore()
	job := testJob(t, dir)

	holder := NewRecord(job, api.NewExecutionContext(job))
	if err := holder.Lock(ctx, store, "w1", time.Minute, time.Second); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	waiter := NewRecord(job, api.NewExecutionContext(job))
	err := waiter.Lock(ctx, store, "w2", time.Minute, 150*time.Millisecond)
	if err == nil {
		t.Fatalf("expected lock timeout")
	}
	if kind, ok := api.AsSignal(err); !ok || kind != api.SignalUnavailableLock {
		t.Fatalf("expected unavailable-lock signal, got %v", err)
	}

	holder.Release(ctx, store)
	if err := waiter.Lock(ctx, store, "w2", time.Minute, time.Second); err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
}

func TestRecord_ReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := sigstore.NewMemoryStore()
	job := testJob(t, dir)

	r := NewRecord(job, api.NewExecutionContext(job))
	r.Release(ctx, store) // never locked

	if err := r.Lock(ctx, store, "w1", time.Minute, time.Second); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	r.Release(ctx, store)
	r.Release(ctx, store) // second release is a no-op

	var nilRecord *Record
	nilRecord.Release(ctx, store)
}

func TestRecord_ValidateRejectsChangedVars(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := sigstore.NewMemoryStore()
	job := testJob(t, dir)

	r := NewRecord(job, api.NewExecutionContext(job))
	if err := r.Lock(ctx, store, "w1", time.Minute, time.Second); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	writeFile(t, dir, "out.txt", "result")
	if _, err := r.Write(ctx, store, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Release(ctx, store)

	// A different signature-variable value produces a different key, so
	// validation finds no record at all.
	job2 := job
	job2.ProcessVars = map[string]any{"n": 99}
	_, matched, err := NewRecord(job2, api.NewExecutionContext(job2)).Validate(ctx, store)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if matched {
		t.Fatalf("different signature variables must not match")
	}
}

func TestRecord_UndecodableTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := sigstore.NewMemoryStore()
	job := testJob(t, dir)

	r := NewRecord(job, api.NewExecutionContext(job))
	if err := store.Put(ctx, r.Key(), []byte("not a gob payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, matched, err := r.Validate(ctx, store)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if matched {
		t.Fatalf("garbage record must not match")
	}
}
