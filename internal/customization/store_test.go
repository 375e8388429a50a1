package customization_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lumen/internal/customization"
	"lumen/internal/logging"
)

type memoryPersister struct {
	mu      sync.Mutex
	records map[string]customization.Record
	deletes []string
	loadErr error
	putErr  error
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{records: make(map[string]customization.Record)}
}

func (m *memoryPersister) Put(_ context.Context, rec customization.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.records[strings.ToLower(rec.ID)] = rec
	return nil
}

func (m *memoryPersister) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	delete(m.records, strings.ToLower(id))
	return nil
}

func (m *memoryPersister) LoadAll(context.Context) ([]customization.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]customization.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memoryPersister) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[strings.ToLower(id)]
	return ok
}

func TestSaveAndTryLoadIgnoreCase(t *testing.T) {
	persister := newMemoryPersister()
	store := customization.NewStore(4, persister, logging.NewNop())

	want := customization.Customization{Name: "Left", IsUnison: true, Lowest: 10, Highest: 80}
	if !store.Save("ddc:DEL:ABC", want) {
		t.Fatal("expected Save to store a valid customization")
	}
	got, ok := store.TryLoad("DDC:del:abc")
	if !ok {
		t.Fatal("expected case-insensitive lookup to succeed")
	}
	if got != want {
		t.Fatalf("TryLoad = %+v, want %+v", got, want)
	}
	if !persister.has("ddc:DEL:ABC") {
		t.Fatal("expected Save to reach the persister")
	}
}

func TestSaveInvalidOrDefaultClears(t *testing.T) {
	tests := []struct {
		name string
		c    customization.Customization
	}{
		{"lowest equals highest", customization.Customization{Lowest: 50, Highest: 50}},
		{"lowest above highest", customization.Customization{Lowest: 60, Highest: 40}},
		{"highest above 100", customization.Customization{Lowest: 0, Highest: 120}},
		{"all defaults", customization.Default()},
		{"blank name is default", customization.Customization{Name: "  ", Lowest: 0, Highest: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			persister := newMemoryPersister()
			store := customization.NewStore(4, persister, logging.NewNop())
			store.Save("mon", customization.Customization{Name: "Existing", Lowest: 0, Highest: 100})

			if store.Save("mon", tt.c) {
				t.Fatal("expected Save to report cleared")
			}
			if _, ok := store.TryLoad("mon"); ok {
				t.Fatal("expected customization cleared")
			}
			if persister.has("mon") {
				t.Fatal("expected persister entry removed")
			}
		})
	}
}

func TestEvictionForwardsToPersister(t *testing.T) {
	persister := newMemoryPersister()
	store := customization.NewStore(2, persister, logging.NewNop())
	named := func(n string) customization.Customization {
		return customization.Customization{Name: n, Lowest: 0, Highest: 100}
	}

	store.Save("Y", named("y"))
	store.Save("X", named("x"))
	store.Save("Z", named("z"))
	if _, ok := store.TryLoad("Y"); ok {
		t.Fatal("expected Y evicted")
	}
	if persister.has("Y") {
		t.Fatal("expected evicted Y deleted from persister")
	}

	store.TryLoad("X")
	store.Save("W", named("w"))
	if _, ok := store.TryLoad("X"); !ok {
		t.Fatal("expected X retained after being read")
	}
	if _, ok := store.TryLoad("Z"); ok {
		t.Fatal("expected Z evicted")
	}
}

func TestLoadRestoresOldestFirst(t *testing.T) {
	persister := newMemoryPersister()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	persister.records["a"] = customization.Record{ID: "A", Customization: customization.Customization{Name: "a", Highest: 100}, UpdatedAt: base}
	persister.records["b"] = customization.Record{ID: "B", Customization: customization.Customization{Name: "b", Highest: 100}, UpdatedAt: base.Add(time.Minute)}
	persister.records["bad"] = customization.Record{ID: "bad", Customization: customization.Customization{Lowest: 90, Highest: 10}, UpdatedAt: base}

	store := customization.NewStore(4, &sortedPersister{persister}, logging.NewNop())
	loaded, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != 2 {
		t.Fatalf("expected 2 loaded, got %d", loaded)
	}
	records := store.Records()
	if len(records) != 2 || records[0].ID != "B" || records[1].ID != "A" {
		t.Fatalf("expected B most recent, got %+v", records)
	}
	if persister.has("bad") {
		t.Fatal("expected invalid persisted record dropped")
	}
}

// sortedPersister returns records ordered by UpdatedAt like the SQLite store.
type sortedPersister struct{ *memoryPersister }

func (s *sortedPersister) LoadAll(ctx context.Context) ([]customization.Record, error) {
	records, err := s.memoryPersister.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].UpdatedAt.Before(records[j-1].UpdatedAt); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
	return records, nil
}

func TestLoadPropagatesPersisterError(t *testing.T) {
	persister := newMemoryPersister()
	persister.loadErr = errors.New("disk gone")
	store := customization.NewStore(4, persister, logging.NewNop())
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
}

func TestPersistFailureKeepsInMemoryValue(t *testing.T) {
	persister := newMemoryPersister()
	persister.putErr = errors.New("read-only")
	store := customization.NewStore(4, persister, logging.NewNop())
	if !store.Save("mon", customization.Customization{IsUnison: true, Highest: 100}) {
		t.Fatal("expected Save to store in memory despite persist failure")
	}
	if _, ok := store.TryLoad("mon"); !ok {
		t.Fatal("expected in-memory customization")
	}
}

func TestExportImportPreservesRecency(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := customization.NewStore(4, nil, logging.NewNop(), customization.WithClock(func() time.Time { return clock }))
	src.Save("ddc:A", customization.Customization{Name: "Left", Lowest: 5, Highest: 90})
	src.Save("ddc:B", customization.Customization{IsUnison: true, Lowest: 0, Highest: 100})

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "id: ddc:A") || !strings.Contains(out, "unison: true") {
		t.Fatalf("unexpected export:\n%s", out)
	}

	dst := customization.NewStore(4, nil, logging.NewNop())
	result, err := dst.Import(strings.NewReader(out))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Stored != 2 || result.Cleared != 0 {
		t.Fatalf("unexpected import result %+v", result)
	}
	records := dst.Records()
	if records[0].ID != "ddc:B" {
		t.Fatalf("expected ddc:B most recent after import, got %s", records[0].ID)
	}
	if got, _ := dst.TryLoad("ddc:a"); got.Name != "Left" || got.Highest != 90 {
		t.Fatalf("unexpected imported value %+v", got)
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	store := customization.NewStore(4, nil, logging.NewNop())
	if _, err := store.Import(strings.NewReader("version: 9\nmonitors: []\n")); err == nil {
		t.Fatal("expected version error")
	}
}

func TestImportInvalidEntryClears(t *testing.T) {
	store := customization.NewStore(4, nil, logging.NewNop())
	store.Save("mon", customization.Customization{Name: "x", Highest: 100})
	doc := "version: 1\nmonitors:\n  - id: MON\n    lowest: 80\n    highest: 20\n"
	result, err := store.Import(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Cleared != 1 {
		t.Fatalf("expected one cleared entry, got %+v", result)
	}
	if store.Len() != 0 {
		t.Fatalf("expected store empty, got %d", store.Len())
	}
}
