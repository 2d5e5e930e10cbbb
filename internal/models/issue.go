package models

import "fmt"

// IssueState is the visible lifecycle state of an issue or pull request.
type IssueState string

const (
	IssueOpen   IssueState = "open"
	IssueClosed IssueState = "closed"
	IssueMerged IssueState = "merged"
)

// Issue is a forge issue mirrored into the local store. Pull requests share
// the table: IsMerged is nil for plain issues and non-nil for PRs. IsClosed
// false while IsMerged true is invalid (merging implies closing).
type Issue struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"size:1024;not null"`
	Description string `gorm:"type:text"`
	HTMLURL     string `gorm:"size:2048;uniqueIndex;not null"`
	// Created and Updated are epoch seconds.
	Created int64
	Updated int64
	// RepoScopeID is the forge-local issue number, unique within a repository.
	RepoScopeID  int64      `gorm:"not null;uniqueIndex:idx_issue_repo_scope"`
	RepositoryID uint       `gorm:"not null;uniqueIndex:idx_issue_repo_scope"`
	Repository   Repository `gorm:"foreignKey:RepositoryID"`
	UserID       uint       `gorm:"not null"`
	User         User       `gorm:"foreignKey:UserID"`
	IsClosed     bool       `gorm:"default:false"`
	IsMerged     *bool
	IsNative     bool `gorm:"default:true"`

	SignedByID *uint
	SignedBy   *Interface `gorm:"foreignKey:SignedByID"`
}

// IsPullRequest reports whether the row represents a pull request.
func (i *Issue) IsPullRequest() bool { return i.IsMerged != nil }

// State derives the lifecycle state from the stored flags.
func (i *Issue) State() IssueState {
	if i.IsMerged != nil && *i.IsMerged {
		return IssueMerged
	}
	if i.IsClosed {
		return IssueClosed
	}
	return IssueOpen
}

// SetClosed transitions the issue to closed at t (epoch seconds).
func (i *Issue) SetClosed(t int64) {
	i.IsClosed = true
	i.Updated = t
}

// SetOpen reopens the issue at t. Reopening a merged pull request resets the
// merge flag.
func (i *Issue) SetOpen(t int64) {
	i.IsClosed = false
	if i.IsMerged != nil {
		merged := false
		i.IsMerged = &merged
	}
	i.Updated = t
}

// SetMerged marks a pull request merged at t, which implies closing. Calling
// it on a plain issue is a type error.
func (i *Issue) SetMerged(t int64) error {
	if i.IsMerged == nil {
		return fmt.Errorf("models: issue %s is not a pull request", i.HTMLURL)
	}
	merged := true
	i.IsMerged = &merged
	i.IsClosed = true
	i.Updated = t
	return nil
}
