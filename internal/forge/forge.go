// Package forge defines the capability contract the reconciliation core
// requires from an upstream software forge, plus the notification and payload
// types exchanged across it. Concrete adapters live in subpackages.
package forge

import (
	"context"
	"time"
)

// Notification subject types as reported by forges.
const (
	TypeIssue  = "Issue"
	TypePull   = "Pull"
	TypeCommit = "commit"
	// TypeRepository is only emitted for repository-transfer requests and is
	// irrelevant to federation; adapters drop it.
	TypeRepository = "repository"
)

// Comment is a forge comment embedded in a notification.
type Comment struct {
	Body      string
	UpdatedAt time.Time
	Author    string
	ID        int64
	URL       string
}

// Notification is a forge-native event record returned by polling.
type Notification struct {
	Type      string
	ID        string
	State     string
	UpdatedAt time.Time
	Title     string
	RepoURL   string
	Upstream  string
	PrURL     string
	Comment   *Comment
}

// NotificationResp is the result of one poll: the notifications plus the
// watermark to resume from. LastRead is the max UpdatedAt among the returned
// notifications, or the requested since when none were returned.
type NotificationResp struct {
	Notifications []Notification
	LastRead      time.Time
}

// RepositoryInfo describes a repository as reported by the forge.
type RepositoryInfo struct {
	Name        string
	Owner       string
	Description string
	HTMLURL     string
}

// Issue describes an issue or pull request as reported by the forge.
type Issue struct {
	Title       string
	Description string
	HTMLURL     string
	Number      int64
	State       string
	Author      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// User describes a forge account.
type User struct {
	Name        string
	UserID      string
	ProfileURL  string
	AvatarURL   string
	Description string
}

// CreateIssue is the payload for opening an issue on the forge.
type CreateIssue struct {
	Owner  string
	Repo   string
	Title  string
	Body   string
	Closed bool
}

// CreatePullrequest is the payload for opening a pull request on the forge.
type CreatePullrequest struct {
	Owner   string
	Repo    string
	Head    string
	Base    string
	Title   string
	Message string
	Body    string
}

// CommentOnIssue is the payload for commenting on an existing issue.
type CommentOnIssue struct {
	Owner    string
	Repo     string
	IssueURL string
	Body     string
}

// Forge is the capability contract consumed by the reconciliation core. Every
// operation can block on network I/O and honors ctx cancellation. Failures are
// classified fault errors (RepositoryNotFound, ForbiddenOperation,
// RepositoryExists, InvalidIssueURL, ForgeUnknown).
type Forge interface {
	// GetNotifications returns activity since the given watermark, excluding
	// repository-transfer notifications.
	GetNotifications(ctx context.Context, since time.Time) (*NotificationResp, error)

	// GetOwnerRepoFromURL resolves (owner, repo) from a repository URL,
	// rejecting hosts other than the configured forge.
	GetOwnerRepoFromURL(url string) (owner, repo string, err error)

	GetIssue(ctx context.Context, owner, repo string, issueID int64) (*Issue, error)
	GetRepository(ctx context.Context, owner, repo string) (*RepositoryInfo, error)
	GetUser(ctx context.Context, name string) (*User, error)

	// ForkInner forks owner/repo into the administered account and returns
	// the name of the new repository.
	ForkInner(ctx context.Context, owner, repo string) (string, error)

	// CreateRepository creates an empty repository under the administered
	// account, used to anchor mirrors of foreign repositories.
	CreateRepository(ctx context.Context, repo, description string) error

	CreateIssue(ctx context.Context, issue CreateIssue) (htmlURL string, err error)
	CreatePullRequest(ctx context.Context, pr CreatePullrequest) (htmlURL string, err error)
	CommentOnIssue(ctx context.Context, comment CommentOnIssue) error
	Subscribe(ctx context.Context, owner, repo string) error

	// Username is the forge account this Interface administers.
	Username() string
}
