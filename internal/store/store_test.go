package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/forgelink/relay/internal/config"
	"github.com/forgelink/relay/internal/db"
	"github.com/forgelink/relay/internal/models"
)

func newTestStore(t *testing.T) *Store {
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
	return New(conn, 0)
}

func TestSaveUser_NewRow(t *testing.T) {
	s := newTestStore(t)

	u := models.User{Name: "Alice", UserID: "alice", ProfileURL: "https://git.alice.org/alice"}
	if err := s.SaveUser(&u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if u.ID == 0 {
		t.Error("SaveUser did not assign an id")
	}
}

func TestSaveUser_ExistingRowShortCircuits(t *testing.T) {
	s := newTestStore(t)

	first := models.User{Name: "Alice", UserID: "alice"}
	if err := s.SaveUser(&first); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	// Give the stored row a generated field which a later save must not lose.
	if err := s.DB().Model(&first).Update("private_key", "secret").Error; err != nil {
		t.Fatalf("update: %v", err)
	}

	again := models.User{Name: "Alice Renamed", UserID: "alice"}
	if err := s.SaveUser(&again); err != nil {
		t.Fatalf("SaveUser again: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("second save id = %d, want %d", again.ID, first.ID)
	}
	if again.PrivateKey == nil || *again.PrivateKey != "secret" {
		t.Error("second save did not copy the stored private key")
	}

	stored, err := s.UserByLogin("alice")
	if err != nil {
		t.Fatalf("UserByLogin: %v", err)
	}
	if stored.Name != "Alice" {
		t.Errorf("stored name = %q, want the original %q", stored.Name, "Alice")
	}

	n, err := s.CountUsers()
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Errorf("user count = %d, want 1", n)
	}
}

func TestUserByLogin_Unknown(t *testing.T) {
	s := newTestStore(t)

	u, err := s.UserByLogin("nobody")
	if err != nil {
		t.Fatalf("UserByLogin: %v", err)
	}
	if u != nil {
		t.Errorf("UserByLogin(nobody) = %+v, want nil", u)
	}
}

func TestSaveRepository_NaturalKey(t *testing.T) {
	s := newTestStore(t)

	r := models.Repository{
		Name:    "widgets",
		Owner:   models.User{UserID: "alice"},
		HTMLURL: "https://git.alice.org/alice/widgets",
	}
	if err := s.SaveRepository(&r); err != nil {
		t.Fatalf("SaveRepository: %v", err)
	}
	if err := s.DB().Model(&r).Update("private_key", "repo-key").Error; err != nil {
		t.Fatalf("update: %v", err)
	}

	again := models.Repository{Name: "widgets", Owner: models.User{UserID: "alice"}}
	if err := s.SaveRepository(&again); err != nil {
		t.Fatalf("SaveRepository again: %v", err)
	}
	if again.ID != r.ID {
		t.Errorf("second save id = %d, want %d", again.ID, r.ID)
	}
	if again.PrivateKey == nil || *again.PrivateKey != "repo-key" {
		t.Error("second save did not copy the stored private key")
	}

	// Same name under a different owner is a distinct repository.
	other := models.Repository{Name: "widgets", Owner: models.User{UserID: "bob"}}
	if err := s.SaveRepository(&other); err != nil {
		t.Fatalf("SaveRepository other owner: %v", err)
	}
	if other.ID == r.ID {
		t.Error("different owner collapsed onto the same row")
	}

	got, err := s.RepositoryByName("alice", "widgets")
	if err != nil {
		t.Fatalf("RepositoryByName: %v", err)
	}
	if got == nil || got.ID != r.ID {
		t.Errorf("RepositoryByName = %+v, want id %d", got, r.ID)
	}
}

func TestSaveIssue_Idempotent(t *testing.T) {
	s := newTestStore(t)

	issue := models.Issue{
		Title:       "panic on empty config",
		HTMLURL:     "https://git.alice.org/alice/widgets/issues/4",
		RepoScopeID: 4,
		Created:     1700000000,
		Updated:     1700000000,
		Repository:  models.Repository{Name: "widgets", Owner: models.User{UserID: "alice"}},
		User:        models.User{UserID: "bob"},
		IsNative:    true,
	}
	if err := s.SaveIssue(&issue); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}

	again := models.Issue{
		Title:       "panic on empty config (edited)",
		HTMLURL:     "https://git.alice.org/alice/widgets/issues/4",
		RepoScopeID: 4,
		Repository:  models.Repository{Name: "widgets", Owner: models.User{UserID: "alice"}},
		User:        models.User{UserID: "bob"},
	}
	if err := s.SaveIssue(&again); err != nil {
		t.Fatalf("SaveIssue again: %v", err)
	}
	if again.ID != issue.ID {
		t.Errorf("second save id = %d, want %d", again.ID, issue.ID)
	}

	n, err := s.CountIssues()
	if err != nil {
		t.Fatalf("CountIssues: %v", err)
	}
	if n != 1 {
		t.Errorf("issue count = %d, want 1", n)
	}
}

func TestUpdateIssue_PersistsStateTransition(t *testing.T) {
	s := newTestStore(t)

	merged := false
	pr := models.Issue{
		Title:       "add retry",
		HTMLURL:     "https://git.alice.org/alice/widgets/pulls/9",
		RepoScopeID: 9,
		Repository:  models.Repository{Name: "widgets", Owner: models.User{UserID: "alice"}},
		User:        models.User{UserID: "bob"},
		IsMerged:    &merged,
	}
	if err := s.SaveIssue(&pr); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}

	if err := pr.SetMerged(1700000500); err != nil {
		t.Fatalf("SetMerged: %v", err)
	}
	if err := s.UpdateIssue(&pr); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	got, err := s.IssueByURL(pr.HTMLURL)
	if err != nil {
		t.Fatalf("IssueByURL: %v", err)
	}
	if got.State() != models.IssueMerged {
		t.Errorf("state = %s, want merged", got.State())
	}
	if got.Updated != 1700000500 {
		t.Errorf("updated = %d, want 1700000500", got.Updated)
	}
}

func TestIssueByNumber(t *testing.T) {
	s := newTestStore(t)

	issue := models.Issue{
		Title:       "docs typo",
		HTMLURL:     "https://git.alice.org/alice/widgets/issues/12",
		RepoScopeID: 12,
		Repository:  models.Repository{Name: "widgets", Owner: models.User{UserID: "alice"}},
		User:        models.User{UserID: "carol"},
	}
	if err := s.SaveIssue(&issue); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}

	got, err := s.IssueByNumber(issue.RepositoryID, 12)
	if err != nil {
		t.Fatalf("IssueByNumber: %v", err)
	}
	if got == nil || got.ID != issue.ID {
		t.Fatalf("IssueByNumber = %+v, want id %d", got, issue.ID)
	}
	if got.Repository.Name != "widgets" || got.User.UserID != "carol" {
		t.Error("IssueByNumber did not preload repository and author")
	}

	missing, err := s.IssueByNumber(issue.RepositoryID, 999)
	if err != nil {
		t.Fatalf("IssueByNumber missing: %v", err)
	}
	if missing != nil {
		t.Errorf("IssueByNumber(999) = %+v, want nil", missing)
	}
}

func TestSaveComment_EditAdvancesBody(t *testing.T) {
	s := newTestStore(t)

	issue := models.Issue{
		Title:       "flaky test",
		HTMLURL:     "https://git.alice.org/alice/widgets/issues/7",
		RepoScopeID: 7,
		Repository:  models.Repository{Name: "widgets", Owner: models.User{UserID: "alice"}},
		User:        models.User{UserID: "bob"},
	}
	if err := s.SaveIssue(&issue); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}

	c := models.Comment{
		Body:      "reproduced on main",
		HTMLURL:   "https://git.alice.org/alice/widgets/issues/7#issuecomment-31",
		CommentID: 31,
		Created:   1700000100,
		Updated:   1700000100,
		User:      models.User{UserID: "carol"},
		IssueID:   issue.ID,
	}
	if err := s.SaveComment(&c); err != nil {
		t.Fatalf("SaveComment: %v", err)
	}

	edited := c
	edited.ID = 0
	edited.Body = "reproduced on main, bisected to ab12cd"
	edited.Updated = 1700000900
	edited.User = models.User{UserID: "carol"}
	edited.UserID = 0
	if err := s.SaveComment(&edited); err != nil {
		t.Fatalf("SaveComment edit: %v", err)
	}

	comments, err := s.CommentsForIssue(issue.ID)
	if err != nil {
		t.Fatalf("CommentsForIssue: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("comment count = %d, want 1", len(comments))
	}
	if comments[0].Body != edited.Body {
		t.Errorf("body = %q, want edited body", comments[0].Body)
	}

	// A stale copy must not roll the body back.
	stale := c
	stale.ID = 0
	stale.Body = "old text"
	stale.Updated = 1700000100
	stale.UserID = 0
	stale.User = models.User{UserID: "carol"}
	if err := s.SaveComment(&stale); err != nil {
		t.Fatalf("SaveComment stale: %v", err)
	}
	comments, err = s.CommentsForIssue(issue.ID)
	if err != nil {
		t.Fatalf("CommentsForIssue: %v", err)
	}
	if comments[0].Body != edited.Body {
		t.Errorf("stale save overwrote body: %q", comments[0].Body)
	}
}

func TestSubscribe_RepeatIsNoop(t *testing.T) {
	s := newTestStore(t)

	repo := models.Repository{Name: "widgets", Owner: models.User{UserID: "alice"}}
	if err := s.SaveRepository(&repo); err != nil {
		t.Fatalf("SaveRepository: %v", err)
	}
	peer := models.Interface{URL: "https://relay.bob.org"}
	if err := s.SaveInterface(&peer); err != nil {
		t.Fatalf("SaveInterface: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Subscribe(repo.ID, peer.ID); err != nil {
			t.Fatalf("Subscribe #%d: %v", i, err)
		}
	}

	peers, err := s.Subscribers(repo.ID)
	if err != nil {
		t.Fatalf("Subscribers: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("subscriber count = %d, want 1", len(peers))
	}
	if peers[0].URL != peer.URL {
		t.Errorf("subscriber = %q, want %q", peers[0].URL, peer.URL)
	}
}

func TestCreateAndResolveTask(t *testing.T) {
	s := newTestStore(t)

	self := models.Interface{URL: "https://relay.alice.org"}
	if err := s.SaveInterface(&self); err != nil {
		t.Fatalf("SaveInterface: %v", err)
	}

	task, err := s.CreateTask(self.ID, models.PayloadCreateIssue, `{"title":"x"}`)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != models.TaskQueued {
		t.Errorf("new task status = %s, want QUEUED", task.Status)
	}

	payload, err := s.TaskPayloadFor(task.ID)
	if err != nil {
		t.Fatalf("TaskPayloadFor: %v", err)
	}
	if payload == nil || payload.Kind != models.PayloadCreateIssue {
		t.Fatalf("payload = %+v, want kind %s", payload, models.PayloadCreateIssue)
	}

	if err := s.ResolveTask(task.UUID, models.TaskCompleted); err != nil {
		t.Fatalf("ResolveTask: %v", err)
	}
	got, err := s.TaskByUUID(task.UUID)
	if err != nil {
		t.Fatalf("TaskByUUID: %v", err)
	}
	if got.Status != models.TaskCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}

	// Statuses never regress.
	if err := s.ResolveTask(task.UUID, models.TaskError); err == nil {
		t.Error("resolving a completed task did not fail")
	}
	if err := s.ResolveTask(task.UUID, models.TaskQueued); err == nil {
		t.Error("resolving to QUEUED did not fail")
	}
}

func TestCheckpoint_AdvanceIsMonotonic(t *testing.T) {
	s := newTestStore(t)

	const url = "https://relay.alice.org"
	epoch := time.Date(2021, 11, 10, 11, 36, 2, 0, time.UTC)
	if err := s.EnsureCheckpoint(url, epoch); err != nil {
		t.Fatalf("EnsureCheckpoint: %v", err)
	}
	// Seeding twice keeps the original watermark.
	if err := s.EnsureCheckpoint(url, epoch.Add(time.Hour)); err != nil {
		t.Fatalf("EnsureCheckpoint again: %v", err)
	}
	got, err := s.Checkpoint(url)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if !got.Equal(epoch) {
		t.Errorf("checkpoint = %v, want %v", got, epoch)
	}

	later := epoch.Add(10 * time.Minute)
	if err := s.AdvanceCheckpoint(url, later); err != nil {
		t.Fatalf("AdvanceCheckpoint: %v", err)
	}
	got, err = s.Checkpoint(url)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if !got.Equal(later) {
		t.Errorf("checkpoint = %v, want %v", got, later)
	}

	// A stale writer cannot move the watermark backwards.
	if err := s.AdvanceCheckpoint(url, epoch); err != nil {
		t.Fatalf("AdvanceCheckpoint backwards: %v", err)
	}
	got, err = s.Checkpoint(url)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if !got.Equal(later) {
		t.Errorf("checkpoint moved backwards to %v", got)
	}
}

func TestForkName_Roundtrip(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.ForkName("alice", "widgets")
	if err != nil {
		t.Fatalf("ForkName: %v", err)
	}
	if found {
		t.Error("ForkName found a mapping before any save")
	}

	if err := s.SaveForkName("alice", "widgets", "widgets-x7k2m9qp4z"); err != nil {
		t.Fatalf("SaveForkName: %v", err)
	}
	// Repeat saves keep the first mapping.
	if err := s.SaveForkName("alice", "widgets", "other"); err != nil {
		t.Fatalf("SaveForkName again: %v", err)
	}

	name, found, err := s.ForkName("alice", "widgets")
	if err != nil {
		t.Fatalf("ForkName: %v", err)
	}
	if !found || name != "widgets-x7k2m9qp4z" {
		t.Errorf("ForkName = %q/%v, want widgets-x7k2m9qp4z/true", name, found)
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache[string, int64](time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("users", 5)
	if n, ok := c.Get("users"); !ok || n != 5 {
		t.Fatalf("Get = %d/%v, want 5/true", n, ok)
	}

	base = base.Add(2 * time.Minute)
	if _, ok := c.Get("users"); ok {
		t.Error("entry survived past its ttl")
	}
}

func TestTTLCache_Invalidate(t *testing.T) {
	c := NewTTLCache[string, int64](time.Minute)
	c.Put("issues", 3)
	c.Invalidate("issues")
	if _, ok := c.Get("issues"); ok {
		t.Error("entry survived invalidation")
	}
}
