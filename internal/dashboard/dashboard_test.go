package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/localsync/tasksync/internal/events"
	"github.com/localsync/tasksync/internal/model"
	"github.com/localsync/tasksync/internal/store"
	"github.com/localsync/tasksync/internal/syncer"
)

// nopRemote satisfies remote.Client without a server.
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

func testServer(t *testing.T) (*Server, *syncer.Controller) {
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
	controller := syncer.New(db, nopRemote{}, events.NewBus(nil), opts)
	t.Cleanup(controller.Close)

	server := NewServer(controller, &Config{
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	return server, controller
}

// dialAndWait connects a WebSocket client and waits for registration.
func dialAndWait(t *testing.T, server *Server, wantClients int) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() < wantClients {
		if time.Now().After(deadline) {
			t.Fatalf("client not registered, count %d", server.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestServerStartStop(t *testing.T) {
	server, _ := testServer(t)

	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
}

func TestEventRelay(t *testing.T) {
	server, controller := testServer(t)

	conn := dialAndWait(t, server, 1)

	task := model.NewTask("broadcast me")
	if err := controller.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	var evt events.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if evt.Type != events.TypeTaskCreated {
		t.Errorf("Expected %s event, got %s", events.TypeTaskCreated, evt.Type)
	}
	if evt.EntityID != task.ID {
		t.Errorf("Expected entity %s, got %s", task.ID, evt.EntityID)
	}
}

func TestMultipleClients(t *testing.T) {
	server, controller := testServer(t)

	first := dialAndWait(t, server, 1)
	second := dialAndWait(t, server, 2)

	if err := controller.CreateTask(context.Background(), model.NewTask("fan out")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i, conn := range []*websocket.Conn{first, second} {
		if _, _, err := conn.Read(ctx); err != nil {
			t.Errorf("client %d: failed to read broadcast: %v", i, err)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, controller := testServer(t)

	if err := controller.CreateTask(context.Background(), model.NewTask("pending")); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	resp, err := http.Get("http://" + server.GetAddr() + "/status")
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var status syncer.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.IsOnline {
		t.Error("Expected offline status")
	}
	if status.PendingOperations != 1 {
		t.Errorf("Expected 1 pending operation, got %d", status.PendingOperations)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := testServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected ok status, got %v", body["status"])
	}
}
