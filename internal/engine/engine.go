// Package engine reconciles forge notifications against the local store and
// propagates them: pull requests are replayed as patches onto the local
// fork, issue activity fans out to subscribed peer relays.
package engine

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/forgelink/relay/internal/forge"
	"github.com/forgelink/relay/internal/gitops"
	"github.com/forgelink/relay/internal/models"
	"github.com/forgelink/relay/internal/peer"
	"github.com/forgelink/relay/internal/store"
)

const userCacheTTL = 5 * time.Minute

// Engine executes classified events.
type Engine struct {
	store   *store.Store
	forge   forge.Forge
	git     gitops.System
	peers   *peer.Client
	selfURL string
	users   *store.TTLCache[string, *models.User]
	hc      *http.Client
	logger  *log.Logger

	// peerTimeout bounds each subscriber delivery during fan-out.
	peerTimeout time.Duration
}

// New wires an Engine. selfURL is this relay's own interface URL, already
// seeded in the store.
func New(st *store.Store, f forge.Forge, git gitops.System, peers *peer.Client, selfURL string, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:       st,
		forge:       f,
		git:         git,
		peers:       peers,
		selfURL:     selfURL,
		users:       store.NewTTLCache[string, *models.User](userCacheTTL),
		hc:          &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		peerTimeout: 10 * time.Second,
	}
}

// GetUser returns the stored account for login, fetching it from the forge
// on first reference. The store copy wins over the forge copy; a short cache
// sits in front of both.
func (e *Engine) GetUser(ctx context.Context, login string) (*models.User, error) {
	if u, ok := e.users.Get(login); ok {
		return u, nil
	}
	u, err := e.store.UserByLogin(login)
	if err != nil {
		return nil, err
	}
	if u == nil {
		fetched, err := e.forge.GetUser(ctx, login)
		if err != nil {
			return nil, err
		}
		u = &models.User{
			Name:        fetched.Name,
			UserID:      fetched.UserID,
			ProfileURL:  fetched.ProfileURL,
			AvatarURL:   fetched.AvatarURL,
			Description: fetched.Description,
		}
		if err := e.store.SaveUser(u); err != nil {
			return nil, err
		}
	}
	e.users.Put(login, u)
	return u, nil
}

// GetRepo returns the stored repository, fetching it from the forge on first
// reference.
func (e *Engine) GetRepo(ctx context.Context, owner, name string) (*models.Repository, error) {
	r, err := e.store.RepositoryByName(owner, name)
	if err != nil {
		return nil, err
	}
	if r != nil {
		return r, nil
	}
	info, err := e.forge.GetRepository(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	ownerRow, err := e.GetUser(ctx, info.Owner)
	if err != nil {
		return nil, err
	}
	r = &models.Repository{
		Name:        info.Name,
		OwnerID:     ownerRow.ID,
		Description: info.Description,
		HTMLURL:     info.HTMLURL,
	}
	if err := e.store.SaveRepository(r); err != nil {
		return nil, err
	}
	return r, nil
}

// GetIssue returns the stored issue, fetching it from the forge on first
// reference. Fetched issues are closed iff the forge reports them closed and
// are recorded as native.
func (e *Engine) GetIssue(ctx context.Context, repo *models.Repository, owner string, number int64) (*models.Issue, error) {
	i, err := e.store.IssueByNumber(repo.ID, number)
	if err != nil {
		return nil, err
	}
	if i != nil {
		return i, nil
	}
	fetched, err := e.forge.GetIssue(ctx, owner, repo.Name, number)
	if err != nil {
		return nil, err
	}
	author, err := e.GetUser(ctx, fetched.Author)
	if err != nil {
		return nil, err
	}
	i = &models.Issue{
		Title:        fetched.Title,
		Description:  fetched.Description,
		HTMLURL:      fetched.HTMLURL,
		Created:      fetched.CreatedAt.Unix(),
		Updated:      fetched.UpdatedAt.Unix(),
		RepoScopeID:  fetched.Number,
		RepositoryID: repo.ID,
		UserID:       author.ID,
		IsClosed:     fetched.State == "closed",
		IsNative:     true,
	}
	if err := e.store.SaveIssue(i); err != nil {
		return nil, err
	}
	return i, nil
}

// Fork forks owner/repo into the administered account, returning the local
// name. The mapping table makes repeat calls idempotent without touching the
// forge.
func (e *Engine) Fork(ctx context.Context, owner, repo string) (string, error) {
	name, found, err := e.store.ForkName(owner, repo)
	if err != nil {
		return "", err
	}
	if found {
		return name, nil
	}
	name, err = e.forge.ForkInner(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("engine: fork %s/%s: %w", owner, repo, err)
	}
	if err := e.store.SaveForkName(owner, repo, name); err != nil {
		return "", err
	}
	return name, nil
}

// self returns this relay's own interface row.
func (e *Engine) self() (*models.Interface, error) {
	iface, err := e.store.InterfaceByURL(e.selfURL)
	if err != nil {
		return nil, err
	}
	if iface == nil {
		return nil, fmt.Errorf("engine: own interface %s not seeded", e.selfURL)
	}
	return iface, nil
}
