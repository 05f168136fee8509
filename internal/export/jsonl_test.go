package export

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/localsync/tasksync/internal/events"
	"github.com/localsync/tasksync/internal/model"
	"github.com/localsync/tasksync/internal/store"
	"github.com/localsync/tasksync/internal/syncer"
)

type nopRemote struct{}

func (nopRemote) FetchChanged(ctx context.Context, entityType model.EntityType, since time.Time) ([]json.RawMessage, error) {
	return nil, nil
}
func (nopRemote) Create(ctx context.Context, entityType model.EntityType, data json.RawMessage) error {
	return nil
}
func (nopRemote) Update(ctx context.Context, entityType model.EntityType, id string, data json.RawMessage) error {
	return nil
}
func (nopRemote) Delete(ctx context.Context, entityType model.EntityType, id string) error {
	return nil
}
func (nopRemote) Ping(ctx context.Context) error { return nil }

func newTestController(t *testing.T) *syncer.Controller {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	opts := syncer.DefaultOptions()
	opts.AutoSync = false
	opts.Logger = log.New(io.Discard, "", 0)
	c := syncer.New(db, nopRemote{}, events.NewBus(nil), opts)
	t.Cleanup(c.Close)
	return c
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestController(t)
	ctx := context.Background()

	category := model.NewCategory("errands")
	if err := src.CreateCategory(ctx, category); err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}

	task := model.NewTask("Return library books")
	task.Category = "errands"
	task.Priority = model.PriorityHigh
	task.AddTag("outside")
	if err := src.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.jsonl")
	exported, err := Export(ctx, src.Store(), path)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if exported.Tasks != 1 || exported.Categories != 1 {
		t.Errorf("expected 1 task and 1 category exported, got %+v", exported)
	}

	dst := newTestController(t)
	imported, err := Import(ctx, dst, path, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if imported.Created != 2 || imported.Updated != 0 {
		t.Errorf("expected 2 created, got %+v", imported)
	}
	if len(imported.Errors) != 0 {
		t.Errorf("unexpected import errors: %v", imported.Errors)
	}

	rec, err := dst.Store().GetRecord(model.EntityTask, task.ID)
	if err != nil {
		t.Fatalf("imported task missing: %v", err)
	}
	got := rec.(*model.Task)
	if got.Title != task.Title || got.Category != "errands" || !got.HasTag("outside") {
		t.Errorf("imported task lost fields: %+v", got)
	}

	// Imported records are staged for push like local mutations.
	pending, err := dst.Store().ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 staged operations, got %d", len(pending))
	}
}

func TestExportCategoriesFirst(t *testing.T) {
	src := newTestController(t)
	ctx := context.Background()

	if err := src.CreateTask(ctx, model.NewTask("a task")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if err := src.CreateCategory(ctx, model.NewCategory("zz-last-alphabetically")); err != nil {
		t.Fatalf("CreateCategory failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.jsonl")
	if _, err := Export(ctx, src.Store(), path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first Line
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("failed to parse first line: %v", err)
	}
	if first.EntityType != model.EntityCategory {
		t.Errorf("expected categories exported first, got %s", first.EntityType)
	}
}

func TestImportUpdatesExisting(t *testing.T) {
	src := newTestController(t)
	ctx := context.Background()

	task := model.NewTask("original title")
	if err := src.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.jsonl")
	task.Title = "imported title"
	task.Touch()
	writeSnapshot(t, path, Line{EntityType: model.EntityTask, Data: mustMarshal(t, task)})

	result, err := Import(ctx, src, path, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Created != 0 || result.Updated != 1 {
		t.Errorf("expected 1 updated, got %+v", result)
	}

	rec, err := src.Store().GetRecord(model.EntityTask, task.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.(*model.Task).Title != "imported title" {
		t.Errorf("update not applied: %q", rec.(*model.Task).Title)
	}
}

func TestImportDryRun(t *testing.T) {
	dst := newTestController(t)
	ctx := context.Background()

	task := model.NewTask("previewed")
	path := filepath.Join(t.TempDir(), "snapshot.jsonl")
	writeSnapshot(t, path, Line{EntityType: model.EntityTask, Data: mustMarshal(t, task)})

	result, err := Import(ctx, dst, path, ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("dry run still counts, got %+v", result)
	}

	if _, err := dst.Store().GetRecord(model.EntityTask, task.ID); err == nil {
		t.Error("dry run must not write records")
	}
}

func TestImportContinuesPastBadLines(t *testing.T) {
	dst := newTestController(t)
	ctx := context.Background()

	invalid := model.NewTask("")
	valid := model.NewTask("good")
	path := filepath.Join(t.TempDir(), "snapshot.jsonl")
	writeSnapshot(t, path,
		Line{EntityType: model.EntityTask, Data: mustMarshal(t, invalid)},
		Line{EntityType: model.EntityTask, Data: mustMarshal(t, valid)},
	)

	result, err := Import(ctx, dst, path, ImportOptions{})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("expected 1 created, got %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %v", result.Errors)
	}

	if _, err := dst.Store().GetRecord(model.EntityTask, valid.ID); err != nil {
		t.Errorf("valid record must still import: %v", err)
	}
}

func TestImportMissingFile(t *testing.T) {
	dst := newTestController(t)

	if _, err := Import(context.Background(), dst, filepath.Join(t.TempDir(), "nope.jsonl"), ImportOptions{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func writeSnapshot(t *testing.T, path string, lines ...Line) {
	t.Helper()

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create snapshot: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, line := range lines {
		if err := encoder.Encode(line); err != nil {
			t.Fatalf("failed to write snapshot line: %v", err)
		}
	}
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}
