// Package gitea implements the forge capability against the Gitea REST API.
package gitea

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/forgelink/relay/internal/config"
	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
)

// Gitea talks to a single Gitea instance.
type Gitea struct {
	host     *url.URL
	username string
	apiKey   string
	client   *http.Client
}

// New builds a Gitea adapter from forge configuration.
func New(cfg config.ForgeConfig) (*Gitea, error) {
	clean, err := forge.CleanURL(cfg.Host)
	if err != nil {
		return nil, err
	}
	host, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("gitea: parse host %q: %w", cfg.Host, err)
	}
	if host.Scheme != "http" && host.Scheme != "https" {
		return nil, fmt.Errorf("gitea: host scheme must be http or https, got %q", host.Scheme)
	}
	return &Gitea{
		host:     host,
		username: cfg.Username,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Username returns the administered forge account.
func (g *Gitea) Username() string { return g.username }

// GetOwnerRepoFromURL resolves (owner, repo) from a repository URL.
func (g *Gitea) GetOwnerRepoFromURL(raw string) (string, string, error) {
	return forge.OwnerRepoFromURL(g.host, raw)
}

func (g *Gitea) apiURL(path string, query url.Values) string {
	u := *g.host
	u.Path = "/api/v1/" + strings.TrimPrefix(path, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (g *Gitea) do(ctx context.Context, method, rawURL string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gitea: marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("gitea: build request: %w", err)
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "token "+g.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.Unreachable, fault.CodeInterfaceUnreachable, "forge request failed", err)
	}
	return resp, nil
}

func decode(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fault.Wrap(fault.UnknownUpstream, fault.CodeForgeUnknownError, "decode forge response", err)
	}
	return nil
}

// giteaRepo is the subset of the repository JSON the adapter consumes.
type giteaRepo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	HTMLURL     string `json:"html_url"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// GetRepository fetches repository details.
func (g *Gitea) GetRepository(ctx context.Context, owner, repo string) (*forge.RepositoryInfo, error) {
	raw, err := g.getRepo(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	return &forge.RepositoryInfo{
		Name:        raw.Name,
		Owner:       raw.Owner.Login,
		Description: raw.Description,
		HTMLURL:     raw.HTMLURL,
	}, nil
}

func (g *Gitea) getRepo(ctx context.Context, owner, repo string) (*giteaRepo, error) {
	resp, err := g.do(ctx, http.MethodGet, g.apiURL(fmt.Sprintf("repos/%s/%s", owner, repo), nil), nil)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var raw giteaRepo
		if err := decode(resp, &raw); err != nil {
			return nil, err
		}
		return &raw, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fault.RepositoryNotFound(owner + "/" + repo)
	}
	resp.Body.Close()
	return nil, fault.ForgeUnknown(resp.StatusCode, nil)
}

// GetIssue fetches a single issue by its repo-scoped number.
func (g *Gitea) GetIssue(ctx context.Context, owner, repo string, issueID int64) (*forge.Issue, error) {
	resp, err := g.do(ctx, http.MethodGet, g.apiURL(fmt.Sprintf("repos/%s/%s/issues/%d", owner, repo, issueID), nil), nil)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fault.RepositoryNotFound(fmt.Sprintf("%s/%s#%d", owner, repo, issueID))
	default:
		resp.Body.Close()
		return nil, fault.ForgeUnknown(resp.StatusCode, nil)
	}

	var raw struct {
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		HTMLURL   string    `json:"html_url"`
		Number    int64     `json:"number"`
		State     string    `json:"state"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
		User      struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := decode(resp, &raw); err != nil {
		return nil, err
	}
	return &forge.Issue{
		Title:       raw.Title,
		Description: raw.Body,
		HTMLURL:     raw.HTMLURL,
		Number:      raw.Number,
		State:       raw.State,
		Author:      raw.User.Login,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
	}, nil
}

// GetUser fetches account details. Falls back to the login when the account
// has no display name set.
func (g *Gitea) GetUser(ctx context.Context, name string) (*forge.User, error) {
	resp, err := g.do(ctx, http.MethodGet, g.apiURL("users/"+name, nil), nil)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fault.New(fault.NotFound, fault.CodeRepositoryNotFound, fmt.Sprintf("user %s not found", name))
	default:
		resp.Body.Close()
		return nil, fault.ForgeUnknown(resp.StatusCode, nil)
	}

	var raw struct {
		Username    string `json:"username"`
		FullName    string `json:"full_name"`
		AvatarURL   string `json:"avatar_url"`
		Description string `json:"description"`
	}
	if err := decode(resp, &raw); err != nil {
		return nil, err
	}
	display := strings.TrimSpace(raw.FullName)
	if display == "" {
		display = raw.Username
	}
	profile := *g.host
	profile.Path = "/" + raw.Username
	return &forge.User{
		Name:        display,
		UserID:      raw.Username,
		ProfileURL:  profile.String(),
		AvatarURL:   raw.AvatarURL,
		Description: raw.Description,
	}, nil
}

// CreateIssue opens an issue and returns its HTML URL.
func (g *Gitea) CreateIssue(ctx context.Context, issue forge.CreateIssue) (string, error) {
	payload := map[string]interface{}{
		"title":  issue.Title,
		"body":   issue.Body,
		"closed": issue.Closed,
	}
	resp, err := g.do(ctx, http.MethodPost, g.apiURL(fmt.Sprintf("repos/%s/%s/issues", issue.Owner, issue.Repo), nil), payload)
	if err != nil {
		return "", err
	}
	switch resp.StatusCode {
	case http.StatusCreated:
		var raw struct {
			HTMLURL string `json:"html_url"`
		}
		if err := decode(resp, &raw); err != nil {
			return "", err
		}
		return raw.HTMLURL, nil
	case http.StatusForbidden:
		resp.Body.Close()
		return "", fault.ForbiddenOperation("create issue")
	case http.StatusNotFound:
		resp.Body.Close()
		return "", fault.RepositoryNotFound(issue.Owner + "/" + issue.Repo)
	}
	resp.Body.Close()
	return "", fault.ForgeUnknown(resp.StatusCode, nil)
}

// CreateRepository creates a repository under the administered account.
func (g *Gitea) CreateRepository(ctx context.Context, repo, description string) error {
	payload := map[string]string{"name": repo, "description": description}
	resp, err := g.do(ctx, http.MethodPost, g.apiURL("user/repos", nil), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return fault.RepositoryExists(repo)
	}
	return fault.ForgeUnknown(resp.StatusCode, nil)
}

// Subscribe watches a repository so its activity shows up in notifications.
func (g *Gitea) Subscribe(ctx context.Context, owner, repo string) error {
	resp, err := g.do(ctx, http.MethodPut, g.apiURL(fmt.Sprintf("repos/%s/%s/subscription", owner, repo), nil), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fault.RepositoryNotFound(owner + "/" + repo)
	}
	return fault.ForgeUnknown(resp.StatusCode, nil)
}

// CreatePullRequest opens a pull request and returns its HTML URL.
func (g *Gitea) CreatePullRequest(ctx context.Context, pr forge.CreatePullrequest) (string, error) {
	payload := map[string]interface{}{
		"head":  pr.Head,
		"base":  pr.Base,
		"title": pr.Title,
		"body":  pr.Body,
	}
	resp, err := g.do(ctx, http.MethodPost, g.apiURL(fmt.Sprintf("repos/%s/%s/pulls", pr.Owner, pr.Repo), nil), payload)
	if err != nil {
		return "", err
	}
	switch resp.StatusCode {
	case http.StatusCreated:
		var raw struct {
			HTMLURL string `json:"html_url"`
		}
		if err := decode(resp, &raw); err != nil {
			return "", err
		}
		return raw.HTMLURL, nil
	case http.StatusForbidden:
		resp.Body.Close()
		return "", fault.ForbiddenOperation("create pull request")
	case http.StatusNotFound:
		resp.Body.Close()
		return "", fault.RepositoryNotFound(pr.Owner + "/" + pr.Repo)
	}
	resp.Body.Close()
	return "", fault.ForgeUnknown(resp.StatusCode, nil)
}

// CommentOnIssue adds a comment to an existing issue. The issue index is
// parsed from the comment's issue URL.
func (g *Gitea) CommentOnIssue(ctx context.Context, comment forge.CommentOnIssue) error {
	index, err := issueIndex(comment.IssueURL)
	if err != nil {
		return err
	}
	payload := map[string]string{"body": comment.Body}
	resp, err := g.do(ctx, http.MethodPost, g.apiURL(fmt.Sprintf("repos/%s/%s/issues/%d/comments", comment.Owner, comment.Repo, index), nil), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusForbidden:
		return fault.ForbiddenOperation("comment on issue")
	case http.StatusNotFound:
		return fault.RepositoryNotFound(comment.Owner + "/" + comment.Repo)
	}
	return fault.ForgeUnknown(resp.StatusCode, nil)
}

// issueIndex extracts the repo-scoped issue number from an issue HTML URL.
func issueIndex(issueURL string) (int64, error) {
	parsed, err := url.Parse(issueURL)
	if err != nil {
		return 0, fault.InvalidIssueURL(issueURL)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 4 {
		return 0, fault.InvalidIssueURL(issueURL)
	}
	index, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0, fault.InvalidIssueURL(issueURL)
	}
	return index, nil
}

// errAlreadyForked marks the forge-reported "already forked" condition, which
// surfaces to the caller instead of triggering the rename loop.
var errAlreadyForked = fault.New(fault.Conflict, fault.CodeRepositoryExists, "repository is already forked by user")

// ForkInner forks owner/repo into the administered account and returns the
// name the fork landed under. A name collision on the account is resolved by
// probing randomized names until one is free and forking under that name.
func (g *Gitea) ForkInner(ctx context.Context, owner, repo string) (string, error) {
	name, err := g.fork(ctx, owner, repo, "")
	if err == nil {
		return name, nil
	}
	if errors.Is(err, errAlreadyForked) || !fault.IsConflict(err) {
		return "", err
	}

	// The account already has a repository under this name. Probe for a free
	// randomized name, then fork under it.
	for attempt := 0; attempt < 10; attempt++ {
		candidate := fmt.Sprintf("%s-%s", repo, randSuffix(10))
		_, probeErr := g.getRepo(ctx, g.username, candidate)
		if probeErr == nil {
			continue
		}
		if !fault.IsNotFound(probeErr) {
			return "", probeErr
		}
		return g.fork(ctx, owner, repo, candidate)
	}
	return "", fault.New(fault.Fatal, fault.CodeRetryBudgetExhausted, fmt.Sprintf("no free fork name for %s/%s", owner, repo))
}

func (g *Gitea) fork(ctx context.Context, owner, repo, name string) (string, error) {
	payload := map[string]string{}
	if name != "" {
		payload["name"] = name
	}
	resp, err := g.do(ctx, http.MethodPost, g.apiURL(fmt.Sprintf("repos/%s/%s/forks", owner, repo), nil), payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusCreated:
		if name != "" {
			return name, nil
		}
		return repo, nil
	case http.StatusForbidden:
		return "", fault.ForbiddenOperation("fork")
	case http.StatusNotFound:
		return "", fault.RepositoryNotFound(owner + "/" + repo)
	case http.StatusInternalServerError:
		var raw struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err == nil {
			if strings.Contains(raw.Message, "repository is already forked by user") {
				return "", errAlreadyForked
			}
			if strings.Contains(raw.Message, "repository is already exists by user") {
				return "", fault.RepositoryExists(repo)
			}
		}
	}
	return "", fault.ForgeUnknown(resp.StatusCode, nil)
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randSuffix(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(suffixAlphabet))))
		if err != nil {
			idx = big.NewInt(int64(i % len(suffixAlphabet)))
		}
		b.WriteByte(suffixAlphabet[idx.Int64()])
	}
	return b.String()
}
