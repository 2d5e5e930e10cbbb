// Package store wraps the database with the persistence rules the relay
// depends on: natural-key lookups, save calls that short-circuit when the
// row already exists, and cached table counts.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forgelink/relay/internal/models"
)

// DefaultCountTTL bounds how stale the cached table counts may get.
const DefaultCountTTL = 30 * time.Second

// Store is the single entry point for reading and writing relay state.
type Store struct {
	db     *gorm.DB
	counts *TTLCache[string, int64]
}

// New wraps db. Table counts are cached for countTTL; pass zero for the
// default.
func New(db *gorm.DB, countTTL time.Duration) *Store {
	if countTTL <= 0 {
		countTTL = DefaultCountTTL
	}
	return &Store{
		db:     db,
		counts: NewTTLCache[string, int64](countTTL),
	}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// first loads a single row into dest, translating a miss into (found=false)
// instead of an error.
func (s *Store) first(dest any, query string, args ...any) (bool, error) {
	err := s.db.Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveInterface records a federation peer. If the URL is already known the
// existing row's id is copied onto iface and nothing is written.
func (s *Store) SaveInterface(iface *models.Interface) error {
	var existing models.Interface
	found, err := s.first(&existing, "url = ?", iface.URL)
	if err != nil {
		return fmt.Errorf("store: look up interface %s: %w", iface.URL, err)
	}
	if found {
		iface.ID = existing.ID
		if iface.PublicKey == "" {
			iface.PublicKey = existing.PublicKey
		}
		return nil
	}
	if err := s.db.Create(iface).Error; err != nil {
		return fmt.Errorf("store: save interface %s: %w", iface.URL, err)
	}
	s.counts.Invalidate("interfaces")
	return nil
}

// InterfaceByURL returns the peer row for url, or nil when unknown.
func (s *Store) InterfaceByURL(url string) (*models.Interface, error) {
	var iface models.Interface
	found, err := s.first(&iface, "url = ?", url)
	if err != nil {
		return nil, fmt.Errorf("store: load interface %s: %w", url, err)
	}
	if !found {
		return nil, nil
	}
	return &iface, nil
}

// SaveUser records a forge account. Users are immutable after first contact:
// if the login is already known the existing row's id and private key are
// copied onto u and nothing is written.
func (s *Store) SaveUser(u *models.User) error {
	var existing models.User
	found, err := s.first(&existing, "user_id = ?", u.UserID)
	if err != nil {
		return fmt.Errorf("store: look up user %s: %w", u.UserID, err)
	}
	if found {
		u.ID = existing.ID
		u.PrivateKey = existing.PrivateKey
		return nil
	}
	if err := s.db.Create(u).Error; err != nil {
		return fmt.Errorf("store: save user %s: %w", u.UserID, err)
	}
	s.counts.Invalidate("users")
	return nil
}

// UserByLogin returns the account row for the forge login, or nil.
func (s *Store) UserByLogin(login string) (*models.User, error) {
	var u models.User
	found, err := s.first(&u, "user_id = ?", login)
	if err != nil {
		return nil, fmt.Errorf("store: load user %s: %w", login, err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

// SaveRepository records a repository under its (owner, name) natural key.
// The owner is saved first when not yet persisted. If the repository is
// already known the existing row's id and private key are copied onto r and
// nothing is written.
func (s *Store) SaveRepository(r *models.Repository) error {
	if r.OwnerID == 0 {
		if r.Owner.UserID == "" {
			return fmt.Errorf("store: repository %s has no owner", r.Name)
		}
		if err := s.SaveUser(&r.Owner); err != nil {
			return err
		}
		r.OwnerID = r.Owner.ID
	}
	var existing models.Repository
	found, err := s.first(&existing, "owner_id = ? AND name = ?", r.OwnerID, r.Name)
	if err != nil {
		return fmt.Errorf("store: look up repository %s: %w", r.Name, err)
	}
	if found {
		r.ID = existing.ID
		r.PrivateKey = existing.PrivateKey
		return nil
	}
	if err := s.db.Create(r).Error; err != nil {
		return fmt.Errorf("store: save repository %s: %w", r.Name, err)
	}
	s.counts.Invalidate("repositories")
	return nil
}

// RepositoryByName returns the repository owned by the given login, or nil.
func (s *Store) RepositoryByName(owner, name string) (*models.Repository, error) {
	var r models.Repository
	err := s.db.
		Joins("Owner").
		Where("repositories.name = ? AND Owner.user_id = ?", name, owner).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load repository %s/%s: %w", owner, name, err)
	}
	return &r, nil
}

// SaveIssue records an issue or pull request keyed by its html URL. Foreign
// rows (repository, author) are saved first when not yet persisted. If the
// issue is already known the existing row's id is copied onto i and nothing
// is written; state changes go through UpdateIssue.
func (s *Store) SaveIssue(i *models.Issue) error {
	if i.RepositoryID == 0 {
		if err := s.SaveRepository(&i.Repository); err != nil {
			return err
		}
		i.RepositoryID = i.Repository.ID
	}
	if i.UserID == 0 {
		if i.User.UserID == "" {
			return fmt.Errorf("store: issue %s has no author", i.HTMLURL)
		}
		if err := s.SaveUser(&i.User); err != nil {
			return err
		}
		i.UserID = i.User.ID
	}
	var existing models.Issue
	found, err := s.first(&existing, "html_url = ?", i.HTMLURL)
	if err != nil {
		return fmt.Errorf("store: look up issue %s: %w", i.HTMLURL, err)
	}
	if found {
		i.ID = existing.ID
		return nil
	}
	if err := s.db.Create(i).Error; err != nil {
		return fmt.Errorf("store: save issue %s: %w", i.HTMLURL, err)
	}
	s.counts.Invalidate("issues")
	return nil
}

// UpdateIssue persists a state transition on an already-saved issue.
func (s *Store) UpdateIssue(i *models.Issue) error {
	if i.ID == 0 {
		return fmt.Errorf("store: update of unsaved issue %s", i.HTMLURL)
	}
	err := s.db.Model(i).Select("is_closed", "is_merged", "updated").Updates(map[string]any{
		"is_closed": i.IsClosed,
		"is_merged": i.IsMerged,
		"updated":   i.Updated,
	}).Error
	if err != nil {
		return fmt.Errorf("store: update issue %s: %w", i.HTMLURL, err)
	}
	return nil
}

// IssueByURL returns the issue row for the forge html URL, or nil.
func (s *Store) IssueByURL(url string) (*models.Issue, error) {
	var i models.Issue
	err := s.db.
		Preload("Repository").Preload("Repository.Owner").Preload("User").
		Where("html_url = ?", url).First(&i).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load issue %s: %w", url, err)
	}
	return &i, nil
}

// IssueByNumber returns the issue with the forge-local number inside a
// repository, or nil.
func (s *Store) IssueByNumber(repositoryID uint, number int64) (*models.Issue, error) {
	var i models.Issue
	err := s.db.
		Preload("Repository").Preload("Repository.Owner").Preload("User").
		Where("repository_id = ? AND repo_scope_id = ?", repositoryID, number).
		First(&i).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load issue %d #%d: %w", repositoryID, number, err)
	}
	return &i, nil
}

// SaveComment records an issue comment keyed by the forge comment id. On a
// known comment the body and updated timestamp advance when the incoming
// copy is newer; everything else stays put.
func (s *Store) SaveComment(c *models.Comment) error {
	if c.UserID == 0 {
		if c.User.UserID == "" {
			return fmt.Errorf("store: comment %s has no author", c.HTMLURL)
		}
		if err := s.SaveUser(&c.User); err != nil {
			return err
		}
		c.UserID = c.User.ID
	}
	if c.IssueID == 0 {
		return fmt.Errorf("store: comment %s has no issue", c.HTMLURL)
	}
	var existing models.Comment
	found, err := s.first(&existing, "comment_id = ?", c.CommentID)
	if err != nil {
		return fmt.Errorf("store: look up comment %d: %w", c.CommentID, err)
	}
	if found {
		c.ID = existing.ID
		if c.Updated > existing.Updated {
			err := s.db.Model(c).Select("body", "updated").Updates(map[string]any{
				"body":    c.Body,
				"updated": c.Updated,
			}).Error
			if err != nil {
				return fmt.Errorf("store: update comment %d: %w", c.CommentID, err)
			}
		}
		return nil
	}
	if err := s.db.Create(c).Error; err != nil {
		return fmt.Errorf("store: save comment %d: %w", c.CommentID, err)
	}
	s.counts.Invalidate("comments")
	return nil
}

// CommentsForIssue lists an issue's comments in creation order.
func (s *Store) CommentsForIssue(issueID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.Preload("User").
		Where("issue_id = ?", issueID).
		Order("created ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("store: load comments for issue %d: %w", issueID, err)
	}
	return comments, nil
}

// Subscribe records that the peer wants events for the repository. Repeat
// subscriptions are no-ops.
func (s *Store) Subscribe(repositoryID, interfaceID uint) error {
	sub := models.Subscription{RepositoryID: repositoryID, InterfaceID: interfaceID}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("store: subscribe interface %d to repository %d: %w", interfaceID, repositoryID, err)
	}
	return nil
}

// Subscribers lists the peers subscribed to a repository.
func (s *Store) Subscribers(repositoryID uint) ([]models.Interface, error) {
	var peers []models.Interface
	err := s.db.
		Joins("JOIN subscriptions ON subscriptions.interface_id = interfaces.id").
		Where("subscriptions.repository_id = ?", repositoryID).
		Find(&peers).Error
	if err != nil {
		return nil, fmt.Errorf("store: load subscribers of repository %d: %w", repositoryID, err)
	}
	return peers, nil
}

// count runs a cached COUNT(*) over model.
func (s *Store) count(key string, model any) (int64, error) {
	if n, ok := s.counts.Get(key); ok {
		return n, nil
	}
	var n int64
	if err := s.db.Model(model).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count %s: %w", key, err)
	}
	s.counts.Put(key, n)
	return n, nil
}

// CountUsers returns the (cached) number of known users.
func (s *Store) CountUsers() (int64, error) { return s.count("users", &models.User{}) }

// CountRepositories returns the (cached) number of known repositories.
func (s *Store) CountRepositories() (int64, error) {
	return s.count("repositories", &models.Repository{})
}

// CountIssues returns the (cached) number of known issues.
func (s *Store) CountIssues() (int64, error) { return s.count("issues", &models.Issue{}) }

// CountComments returns the (cached) number of known comments.
func (s *Store) CountComments() (int64, error) { return s.count("comments", &models.Comment{}) }

// CountInterfaces returns the (cached) number of known peers.
func (s *Store) CountInterfaces() (int64, error) {
	return s.count("interfaces", &models.Interface{})
}
