package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dirigent-dev/dirigent/pkg/api"
	"github.com/dirigent-dev/dirigent/pkg/provider"
	"github.com/dirigent-dev/dirigent/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration tests in short mode")
	}
	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("dirigent_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func makeTestRecord(id string) *storage.StoredResponse {
	return &storage.StoredResponse{
		Response: &api.Response{
			ID:     id,
			Object: "response",
			Status: api.ResponseStatusCompleted,
			Model:  "test-model",
			Output: []api.Item{
				{ID: "item_out1", Type: api.ItemTypeMessage, Status: api.ItemStatusCompleted,
					Message: &api.MessageData{Role: api.RoleAssistant,
						Output: []api.OutputContentPart{api.NewOutputTextPart("hi there")}}},
			},
			Usage:     &api.Usage{InputTokens: 5, OutputTokens: 3, TotalTokens: 8},
			CreatedAt: time.Now().Unix(),
		},
		Input: []api.Item{
			{ID: "item_in1", Type: api.ItemTypeMessage, Status: api.ItemStatusCompleted,
				Message: &api.MessageData{Role: api.RoleUser,
					Content: []api.ContentPart{{Type: "input_text", Text: "hello"}}}},
		},
		Messages: []provider.ProviderMessage{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		},
	}
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestPostgres_SaveAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(uniqueID("resp_pg"))
	if err := store.SaveResponse(ctx, rec); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	got, err := store.GetResponse(ctx, rec.Response.ID)
	if err != nil {
		t.Fatalf("GetResponse failed: %v", err)
	}

	if got.ID != rec.Response.ID {
		t.Errorf("ID = %q, want %q", got.ID, rec.Response.ID)
	}
	if got.Model != "test-model" {
		t.Errorf("Model = %q, want %q", got.Model, "test-model")
	}
	if got.Status != api.ResponseStatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, api.ResponseStatusCompleted)
	}
	if len(got.Output) != 1 {
		t.Errorf("len(Output) = %d, want 1", len(got.Output))
	}
	if got.Usage == nil || got.Usage.InputTokens != 5 {
		t.Errorf("Usage.InputTokens = %v, want 5", got.Usage)
	}
}

func TestPostgres_StoredRecordRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(uniqueID("resp_rec"))
	if err := store.SaveResponse(ctx, rec); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	got, err := store.GetStoredResponse(ctx, rec.Response.ID)
	if err != nil {
		t.Fatalf("GetStoredResponse failed: %v", err)
	}
	if len(got.Input) != 1 || got.Input[0].ID != "item_in1" {
		t.Errorf("input items not preserved: %+v", got.Input)
	}
	if len(got.Messages) != 2 || got.Messages[1].Role != "assistant" {
		t.Errorf("raw messages not preserved: %+v", got.Messages)
	}
}

func TestPostgres_GetNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetResponse(context.Background(), "resp_nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_SoftDelete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(uniqueID("resp_del"))
	store.SaveResponse(ctx, rec)

	if err := store.DeleteResponse(ctx, rec.Response.ID); err != nil {
		t.Fatalf("DeleteResponse failed: %v", err)
	}

	_, err := store.GetResponse(ctx, rec.Response.ID)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Chain retrieval still returns soft-deleted records.
	got, err := store.GetStoredResponse(ctx, rec.Response.ID)
	if err != nil {
		t.Fatalf("GetStoredResponse should return deleted record: %v", err)
	}
	if got.Response.ID != rec.Response.ID {
		t.Errorf("chain ID = %q, want %q", got.Response.ID, rec.Response.ID)
	}
}

func TestPostgres_DuplicateSave(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(uniqueID("resp_dup"))
	store.SaveResponse(ctx, rec)

	err := store.SaveResponse(ctx, rec)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestPostgres_ListResponses(t *testing.T) {
	store := setupTestDB(t)
	ctx := storage.SetTenant(context.Background(), uniqueID("tenant_list"))

	ids := make([]string, 3)
	base := time.Now().Unix()
	for i := range ids {
		ids[i] = uniqueID(fmt.Sprintf("resp_list%d", i))
		rec := makeTestRecord(ids[i])
		rec.Response.CreatedAt = base + int64(i)
		if err := store.SaveResponse(ctx, rec); err != nil {
			t.Fatalf("SaveResponse failed: %v", err)
		}
	}

	list, err := store.ListResponses(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListResponses failed: %v", err)
	}
	if len(list.Data) != 3 {
		t.Fatalf("got %d responses, want 3", len(list.Data))
	}
	// Default order is desc (newest first).
	if list.Data[0].ID != ids[2] {
		t.Errorf("first = %q, want %q", list.Data[0].ID, ids[2])
	}
	if list.FirstID != ids[2] || list.LastID != ids[0] {
		t.Errorf("cursors = %q..%q", list.FirstID, list.LastID)
	}

	// Cursor pagination.
	page, err := store.ListResponses(ctx, storage.ListOptions{After: ids[2], Limit: 1})
	if err != nil {
		t.Fatalf("ListResponses failed: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != ids[1] {
		t.Errorf("after cursor page = %+v", page.Data)
	}
	if !page.HasMore {
		t.Error("expected HasMore")
	}
}

func TestPostgres_ListInputItems(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	rec := makeTestRecord(uniqueID("resp_items"))
	rec.Input = []api.Item{
		{ID: "item_1", Type: api.ItemTypeMessage, Message: &api.MessageData{Role: api.RoleUser}},
		{ID: "item_2", Type: api.ItemTypeMessage, Message: &api.MessageData{Role: api.RoleUser}},
	}
	store.SaveResponse(ctx, rec)

	list, err := store.ListInputItems(ctx, rec.Response.ID, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListInputItems failed: %v", err)
	}
	if len(list.Data) != 2 || list.Data[0].ID != "item_1" {
		t.Errorf("items = %+v", list.Data)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestPostgres_ChainReconstruction(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	recA := makeTestRecord(uniqueID("resp_chain_a"))
	recB := makeTestRecord(uniqueID("resp_chain_b"))
	recB.Response.PreviousResponseID = &recA.Response.ID
	recC := makeTestRecord(uniqueID("resp_chain_c"))
	recC.Response.PreviousResponseID = &recB.Response.ID

	store.SaveResponse(ctx, recA)
	store.SaveResponse(ctx, recB)
	store.SaveResponse(ctx, recC)

	// Delete the middle response. Chain reconstruction must still work.
	store.DeleteResponse(ctx, recB.Response.ID)

	gotB, err := store.GetStoredResponse(ctx, recB.Response.ID)
	if err != nil {
		t.Fatalf("GetStoredResponse(B) failed: %v", err)
	}
	if gotB.Response.PreviousResponseID == nil || *gotB.Response.PreviousResponseID != recA.Response.ID {
		t.Errorf("chain link: B.previous = %v, want %q", gotB.Response.PreviousResponseID, recA.Response.ID)
	}
}

func TestPostgres_TenantIsolation(t *testing.T) {
	store := setupTestDB(t)

	ctxA := storage.SetTenant(context.Background(), "tenant-a")
	ctxB := storage.SetTenant(context.Background(), "tenant-b")

	rec := makeTestRecord(uniqueID("resp_tenant"))
	store.SaveResponse(ctxA, rec)

	if _, err := store.GetResponse(ctxA, rec.Response.ID); err != nil {
		t.Fatalf("tenant A should see own response: %v", err)
	}
	if _, err := store.GetResponse(ctxB, rec.Response.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("tenant B should not see tenant A's response")
	}
	// No tenant in context means single-tenant mode, all rows visible.
	if _, err := store.GetResponse(context.Background(), rec.Response.ID); err != nil {
		t.Fatalf("no-tenant should see all: %v", err)
	}
}

func TestPostgres_ConversationLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	conv := &storage.Conversation{
		ID:        uniqueID("conv_pg"),
		Object:    "conversation",
		Metadata:  map[string]any{"topic": "testing"},
		CreatedAt: time.Now().Unix(),
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := store.CreateConversation(ctx, conv); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate create: expected ErrConflict, got %v", err)
	}

	got, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Metadata["topic"] != "testing" {
		t.Errorf("metadata = %+v", got.Metadata)
	}

	items := []api.Item{
		{ID: "item_1", Type: api.ItemTypeMessage, Message: &api.MessageData{Role: api.RoleUser}},
		{ID: "item_2", Type: api.ItemTypeMessage, Message: &api.MessageData{Role: api.RoleAssistant}},
	}
	if err := store.AddItems(ctx, conv.ID, items); err != nil {
		t.Fatalf("AddItems failed: %v", err)
	}

	list, err := store.ListItems(ctx, conv.ID, storage.ListOptions{Order: "asc"})
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(list.Data) != 2 || list.Data[0].ID != "item_1" {
		t.Errorf("asc items = %+v", list.Data)
	}

	desc, err := store.ListItems(ctx, conv.ID, storage.ListOptions{Order: "desc"})
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if desc.Data[0].ID != "item_2" {
		t.Errorf("desc first = %q", desc.Data[0].ID)
	}

	if err := store.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, err := store.GetConversation(ctx, conv.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
