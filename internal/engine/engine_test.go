package engine

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forgelink/relay/internal/config"
	"github.com/forgelink/relay/internal/db"
	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
	"github.com/forgelink/relay/internal/gitops"
	"github.com/forgelink/relay/internal/models"
	"github.com/forgelink/relay/internal/peer"
	"github.com/forgelink/relay/internal/store"
)

const (
	testForgeHost = "https://git.example.org"
	testSelfURL   = "https://relay.alice.org"
)

// mockGit implements gitops.System and records the operations run on it.
type mockGit struct {
	mu        sync.Mutex
	processed []string // branch names handed to ProcessPatch
	pushed    []string
	patches   []string
	failFetch bool
}

func (m *mockGit) InitRepo(ctx context.Context, localURL, upstreamURL string) (*gitops.Repo, error) {
	return &gitops.Repo{Dir: "/tmp/relay-test", LocalURL: localURL, UpstreamURL: upstreamURL}, nil
}

func (m *mockGit) FetchUpstream(ctx context.Context, repo *gitops.Repo) error {
	if m.failFetch {
		return fault.New(fault.Unreachable, fault.CodeInterfaceUnreachable, "mock git: upstream down")
	}
	return nil
}

func (m *mockGit) DefaultBranch(ctx context.Context, repo *gitops.Repo) (string, error) {
	return "main", nil
}

func (m *mockGit) ProcessPatch(ctx context.Context, repo *gitops.Repo, patch, branch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, branch)
	m.patches = append(m.patches, patch)
	return patch, nil
}

func (m *mockGit) ApplyPatch(ctx context.Context, repo *gitops.Repo, patch gitops.Patch, branch string) error {
	return nil
}

func (m *mockGit) PushLocal(ctx context.Context, repo *gitops.Repo, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushed = append(m.pushed, branch)
	return nil
}

func (m *mockGit) Mirror(ctx context.Context, repo *gitops.Repo) error {
	return m.PushLocal(ctx, repo, "main")
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *forge.MockForge, *mockGit) {
	t.Helper()
	conn, err := db.Connect(config.DatabaseConfig{
		Backend: "sqlite",
		Path:    filepath.Join(t.TempDir(), "relay.db"),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(conn, 0)
	if err := st.SaveInterface(&models.Interface{URL: testSelfURL}); err != nil {
		t.Fatalf("seed self: %v", err)
	}

	f := forge.NewMockForge(testForgeHost, "relay-admin")
	git := &mockGit{}
	logger := log.New(io.Discard, "", 0)
	e := New(st, f, git, peer.NewClient(testSelfURL, time.Second), testSelfURL, logger)
	return e, st, f, git
}

func TestGetUser_FetchesOnce(t *testing.T) {
	e, st, f, _ := newTestEngine(t)
	f.SeedUser(&forge.User{Name: "Bob", UserID: "bob", ProfileURL: testForgeHost + "/bob"})

	u, err := e.GetUser(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.ID == 0 || u.UserID != "bob" {
		t.Fatalf("GetUser = %+v", u)
	}

	stored, err := st.UserByLogin("bob")
	if err != nil {
		t.Fatalf("UserByLogin: %v", err)
	}
	if stored == nil {
		t.Fatal("fetched user was not persisted")
	}

	// Second call is served from the cache even if the forge forgets the user.
	f2 := forge.NewMockForge(testForgeHost, "relay-admin")
	e.forge = f2
	again, err := e.GetUser(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUser again: %v", err)
	}
	if again.ID != u.ID {
		t.Errorf("second lookup id = %d, want %d", again.ID, u.ID)
	}
}

func TestGetUser_StoreWinsOverForge(t *testing.T) {
	e, st, f, _ := newTestEngine(t)
	if err := st.SaveUser(&models.User{Name: "Stored Bob", UserID: "bob"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	f.SeedUser(&forge.User{Name: "Forge Bob", UserID: "bob"})

	u, err := e.GetUser(context.Background(), "bob")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Name != "Stored Bob" {
		t.Errorf("name = %q, want the stored copy", u.Name)
	}
}

func TestGetRepo_FetchesAndPersists(t *testing.T) {
	e, st, f, _ := newTestEngine(t)
	f.SeedUser(&forge.User{Name: "Alice", UserID: "alice"})
	f.SeedRepository(&forge.RepositoryInfo{
		Name:        "widgets",
		Owner:       "alice",
		Description: "widget factory",
		HTMLURL:     testForgeHost + "/alice/widgets",
	})

	r, err := e.GetRepo(context.Background(), "alice", "widgets")
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	if r.ID == 0 || r.Description != "widget factory" {
		t.Fatalf("GetRepo = %+v", r)
	}

	stored, err := st.RepositoryByName("alice", "widgets")
	if err != nil {
		t.Fatalf("RepositoryByName: %v", err)
	}
	if stored == nil || stored.ID != r.ID {
		t.Error("fetched repository was not persisted")
	}
}

func TestGetRepo_UnknownUpstream(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	_, err := e.GetRepo(context.Background(), "alice", "ghost")
	if !fault.IsNotFound(err) {
		t.Errorf("GetRepo = %v, want NotFound fault", err)
	}
}

func TestGetIssue_ClosedStateAndNativeFlag(t *testing.T) {
	e, _, f, _ := newTestEngine(t)
	f.SeedUser(&forge.User{UserID: "alice"})
	f.SeedUser(&forge.User{UserID: "bob"})
	f.SeedRepository(&forge.RepositoryInfo{Name: "widgets", Owner: "alice"})
	f.SeedIssue("alice", "widgets", &forge.Issue{
		Title:   "panic on empty config",
		HTMLURL: testForgeHost + "/alice/widgets/issues/4",
		Number:  4,
		State:   "closed",
		Author:  "bob",
	})

	repo, err := e.GetRepo(context.Background(), "alice", "widgets")
	if err != nil {
		t.Fatalf("GetRepo: %v", err)
	}
	issue, err := e.GetIssue(context.Background(), repo, "alice", 4)
	if err != nil {
		t.Fatalf("GetIssue: %v", err)
	}
	if !issue.IsClosed {
		t.Error("closed upstream issue stored as open")
	}
	if !issue.IsNative {
		t.Error("fetched issue not flagged native")
	}
	if issue.IsPullRequest() {
		t.Error("plain issue stored as pull request")
	}
}

func TestFork_MappingMakesRepeatIdempotent(t *testing.T) {
	e, _, f, _ := newTestEngine(t)

	name, err := e.Fork(context.Background(), "alice", "widgets")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if name != "widgets" {
		t.Errorf("fork name = %q, want widgets", name)
	}

	again, err := e.Fork(context.Background(), "alice", "widgets")
	if err != nil {
		t.Fatalf("Fork again: %v", err)
	}
	if again != name {
		t.Errorf("second fork name = %q, want %q", again, name)
	}
	if len(f.Forked) != 1 {
		t.Errorf("forge fork calls = %d, want 1", len(f.Forked))
	}
}
