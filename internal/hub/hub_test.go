package hub

import (
	"context"
	"testing"

	"github.com/rakunlabs/datahub/internal/resource"
	"github.com/rakunlabs/datahub/internal/sample"
)

func newTestHub() *Hub {
	now := 0.0
	return New(func() float64 { return now }, nil)
}

// fakeStore is an in-memory resource.BufferStore stand-in for tests that
// exercise backup persistence and garbage collection without a real
// sqlite3/postgres backend.
type fakeStore struct {
	backups map[string][]resource.BufferSample
}

func newFakeStore() *fakeStore {
	return &fakeStore{backups: map[string][]resource.BufferSample{}}
}

func (f *fakeStore) Load(path string) ([]resource.BufferSample, float64, error) {
	return f.backups[path], 0, nil
}

func (f *fakeStore) Save(path string, samples []resource.BufferSample, lastBackup float64) error {
	f.backups[path] = samples
	return nil
}

func (f *fakeStore) Purge(path string) error {
	delete(f.backups, path)
	return nil
}

func (f *fakeStore) ListPaths() ([]string, error) {
	paths := make([]string, 0, len(f.backups))
	for p := range f.backups {
		paths = append(paths, p)
	}
	return paths, nil
}

func TestCreateInputAndPush(t *testing.T) {
	h := newTestHub()
	s, err := h.OpenSession("demo")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	if err := h.CreateInput(s, "value", sample.Number, ""); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	if err := h.Push(s, "value", sample.Number, 10.0, 1.5); err != nil {
		t.Fatalf("Push: %v", err)
	}

	v, err := h.GetNumeric(s.AppPath + "/value")
	if err != nil {
		t.Fatalf("GetNumeric: %v", err)
	}
	if v != 1.5 {
		t.Fatalf("GetNumeric = %v, want 1.5", v)
	}
}

func TestSessionCloseConvertsInputsToPlaceholders(t *testing.T) {
	h := newTestHub()
	s, err := h.OpenSession("demo")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := h.CreateInput(s, "value", sample.Number, ""); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	// A push handler is an admin setting, so closing the session keeps the
	// entry as a Placeholder instead of removing it.
	if _, err := h.AddPushHandler(s, "value", sample.Number, func(kind sample.Kind, smp *sample.Sample, ctx any) {}, nil); err != nil {
		t.Fatalf("AddPushHandler: %v", err)
	}

	if err := h.CloseSession(context.Background(), s.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}

	if _, err := h.GetNumeric(s.AppPath + "/value"); err == nil {
		t.Fatalf("expected GetNumeric to fail (Unavailable) on a placeholder")
	}
}

func TestStartEndUpdateQuiescesPushes(t *testing.T) {
	h := newTestHub()
	s, _ := h.OpenSession("demo")
	if err := h.CreateInput(s, "value", sample.Number, ""); err != nil {
		t.Fatalf("CreateInput: %v", err)
	}
	if err := h.CreateObs("/obs/x"); err != nil {
		t.Fatalf("CreateObs: %v", err)
	}
	if err := h.SetBufferMaxCount("/obs/x", 10); err != nil {
		t.Fatalf("SetBufferMaxCount: %v", err)
	}
	if err := h.SetSource("/obs/x", s.AppPath+"/value"); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	h.StartUpdate(context.Background())
	if err := h.SetMinPeriod("/obs/x", 10); err != nil {
		t.Fatalf("SetMinPeriod: %v", err)
	}

	for i := 1.0; i <= 5; i++ {
		if err := h.Push(s, "value", sample.Number, i, i); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	h.EndUpdate(context.Background())

	v, err := h.GetNumeric("/obs/x")
	if err != nil {
		t.Fatalf("GetNumeric: %v", err)
	}
	if v != 5 {
		t.Fatalf("GetNumeric(/obs/x) = %v, want 5 (last push replayed)", v)
	}
}

func TestSessionLookup(t *testing.T) {
	h := newTestHub()
	s, err := h.OpenSession("demo")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	got, err := h.Session(s.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if got.AppPath != s.AppPath {
		t.Fatalf("Session returned AppPath %q, want %q", got.AppPath, s.AppPath)
	}

	if _, err := h.Session("no-such-session"); err == nil {
		t.Fatal("expected error looking up an unknown session")
	}
}

func TestPurgeOrphanedBackupsRemovesOnlyOrphans(t *testing.T) {
	store := newFakeStore()
	now := 0.0
	h := New(func() float64 { return now }, store)

	if err := h.CreateObs("/obs/kept"); err != nil {
		t.Fatalf("CreateObs: %v", err)
	}
	if err := h.SetBufferMaxCount("/obs/kept", 5); err != nil {
		t.Fatalf("SetBufferMaxCount: %v", err)
	}

	// A backup with no matching observation in the tree is an orphan.
	store.backups["/obs/kept"] = []resource.BufferSample{{Timestamp: 1, Kind: sample.Number, Number: 1}}
	store.backups["/obs/deleted"] = []resource.BufferSample{{Timestamp: 1, Kind: sample.Number, Number: 1}}

	purged := h.PurgeOrphanedBackups(context.Background())
	if purged != 1 {
		t.Fatalf("PurgeOrphanedBackups purged %d, want 1", purged)
	}
	if _, ok := store.backups["/obs/kept"]; !ok {
		t.Fatal("backup for a live observation should not have been purged")
	}
	if _, ok := store.backups["/obs/deleted"]; ok {
		t.Fatal("orphaned backup should have been purged")
	}
}
