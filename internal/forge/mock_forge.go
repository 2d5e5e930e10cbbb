package forge

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/forgelink/relay/internal/fault"
)

// MockForge implements Forge for testing. Seed it with repositories, issues,
// and users; it records created issues, pull requests, comments, forks, and
// subscriptions.
type MockForge struct {
	mu sync.Mutex

	username string
	host     string
	hostURL  *url.URL

	repos  map[string]*RepositoryInfo // owner/repo
	issues map[string]*Issue          // owner/repo#n
	users  map[string]*User

	polls [][]Notification // one batch per GetNotifications call
	calls int

	// PollErr, when set, fails every GetNotifications call.
	PollErr error

	CreatedIssues []CreateIssue
	CreatedPulls  []CreatePullrequest
	Comments      []CommentOnIssue
	Forked        []string
	Subscribed    []string
	CreatedRepos  []string
}

// NewMockForge builds a mock forge at host administered by username. host
// must be an absolute URL such as "https://git.example.org".
func NewMockForge(host, username string) *MockForge {
	hostURL, err := url.Parse(host)
	if err != nil {
		panic(fmt.Sprintf("mock forge: malformed host %q", host))
	}
	return &MockForge{
		username: username,
		host:     host,
		hostURL:  hostURL,
		repos:    make(map[string]*RepositoryInfo),
		issues:   make(map[string]*Issue),
		users:    make(map[string]*User),
	}
}

func repoKey(owner, repo string) string { return owner + "/" + repo }

// SeedRepository registers a repository the mock will answer for.
func (m *MockForge) SeedRepository(info *RepositoryInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[repoKey(info.Owner, info.Name)] = info
}

// SeedIssue registers an issue under owner/repo.
func (m *MockForge) SeedIssue(owner, repo string, issue *Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[fmt.Sprintf("%s#%d", repoKey(owner, repo), issue.Number)] = issue
}

// SeedUser registers a forge account.
func (m *MockForge) SeedUser(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
}

// SeedPoll queues one batch of notifications; successive GetNotifications
// calls consume batches in order, then return empty results.
func (m *MockForge) SeedPoll(batch []Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls = append(m.polls, batch)
}

func (m *MockForge) GetNotifications(ctx context.Context, since time.Time) (*NotificationResp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.PollErr != nil {
		return nil, m.PollErr
	}
	if len(m.polls) == 0 {
		return &NotificationResp{LastRead: since}, nil
	}
	batch := m.polls[0]
	m.polls = m.polls[1:]
	last := since
	for _, n := range batch {
		if n.UpdatedAt.After(last) {
			last = n.UpdatedAt
		}
	}
	return &NotificationResp{Notifications: batch, LastRead: last}, nil
}

// PollCalls reports how many times GetNotifications ran.
func (m *MockForge) PollCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockForge) GetOwnerRepoFromURL(raw string) (string, string, error) {
	return OwnerRepoFromURL(m.hostURL, raw)
}

func (m *MockForge) GetIssue(ctx context.Context, owner, repo string, issueID int64) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[fmt.Sprintf("%s#%d", repoKey(owner, repo), issueID)]
	if !ok {
		return nil, fault.New(fault.NotFound, fault.CodeRepositoryNotFound,
			fmt.Sprintf("mock forge: issue %s#%d", repoKey(owner, repo), issueID))
	}
	return issue, nil
}

func (m *MockForge) GetRepository(ctx context.Context, owner, repo string) (*RepositoryInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.repos[repoKey(owner, repo)]
	if !ok {
		return nil, fault.New(fault.NotFound, fault.CodeRepositoryNotFound,
			fmt.Sprintf("mock forge: repository %s", repoKey(owner, repo)))
	}
	return info, nil
}

func (m *MockForge) GetUser(ctx context.Context, name string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[name]
	if !ok {
		return nil, fault.New(fault.NotFound, fault.CodeRepositoryNotFound,
			fmt.Sprintf("mock forge: user %s", name))
	}
	return u, nil
}

func (m *MockForge) ForkInner(ctx context.Context, owner, repo string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Forked = append(m.Forked, repoKey(owner, repo))
	return repo, nil
}

func (m *MockForge) CreateIssue(ctx context.Context, issue CreateIssue) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreatedIssues = append(m.CreatedIssues, issue)
	return fmt.Sprintf("%s/%s/%s/issues/%d", m.host, issue.Owner, issue.Repo, len(m.CreatedIssues)), nil
}

func (m *MockForge) CreatePullRequest(ctx context.Context, pr CreatePullrequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreatedPulls = append(m.CreatedPulls, pr)
	return fmt.Sprintf("%s/%s/%s/pulls/%d", m.host, pr.Owner, pr.Repo, len(m.CreatedPulls)), nil
}

func (m *MockForge) CommentOnIssue(ctx context.Context, comment CommentOnIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Comments = append(m.Comments, comment)
	return nil
}

func (m *MockForge) CreateRepository(ctx context.Context, repo, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := repoKey(m.username, repo)
	if _, ok := m.repos[key]; ok {
		return fault.RepositoryExists(repo)
	}
	m.repos[key] = &RepositoryInfo{
		Name:        repo,
		Owner:       m.username,
		Description: description,
		HTMLURL:     fmt.Sprintf("%s/%s/%s", m.host, m.username, repo),
	}
	m.CreatedRepos = append(m.CreatedRepos, repo)
	return nil
}

func (m *MockForge) Subscribe(ctx context.Context, owner, repo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscribed = append(m.Subscribed, repoKey(owner, repo))
	return nil
}

func (m *MockForge) Username() string { return m.username }
