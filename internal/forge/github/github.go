// Package github implements the forge capability against the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/forgelink/relay/internal/config"
	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
)

// GitHub talks to github.com (or a GitHub Enterprise host) through go-github.
type GitHub struct {
	host     *url.URL
	username string
	client   *gh.Client
}

// New builds a GitHub adapter from forge configuration.
func New(cfg config.ForgeConfig) (*GitHub, error) {
	clean, err := forge.CleanURL(cfg.Host)
	if err != nil {
		return nil, err
	}
	host, err := url.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("github: parse host %q: %w", cfg.Host, err)
	}

	var hc *http.Client
	if cfg.APIKey != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	if hc == nil {
		hc = &http.Client{}
	}
	hc.Timeout = cfg.Timeout

	return &GitHub{
		host:     host,
		username: cfg.Username,
		client:   gh.NewClient(hc),
	}, nil
}

// Username returns the administered forge account.
func (g *GitHub) Username() string { return g.username }

// GetOwnerRepoFromURL resolves (owner, repo) from a repository URL.
func (g *GitHub) GetOwnerRepoFromURL(raw string) (string, string, error) {
	return forge.OwnerRepoFromURL(g.host, raw)
}

// classify maps a go-github error to the fault taxonomy.
func classify(err error, notFoundSubject string) error {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return fault.RepositoryNotFound(notFoundSubject)
		case http.StatusForbidden:
			return fault.ForbiddenOperation("github api call")
		case http.StatusConflict, http.StatusUnprocessableEntity:
			return fault.RepositoryExists(notFoundSubject)
		}
		return fault.ForgeUnknown(ghErr.Response.StatusCode, err)
	}
	return fault.Wrap(fault.Unreachable, fault.CodeInterfaceUnreachable, "forge request failed", err)
}

// GetRepository fetches repository details.
func (g *GitHub) GetRepository(ctx context.Context, owner, repo string) (*forge.RepositoryInfo, error) {
	r, _, err := g.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, classify(err, owner+"/"+repo)
	}
	return &forge.RepositoryInfo{
		Name:        r.GetName(),
		Owner:       r.GetOwner().GetLogin(),
		Description: r.GetDescription(),
		HTMLURL:     r.GetHTMLURL(),
	}, nil
}

// GetIssue fetches a single issue by its repo-scoped number.
func (g *GitHub) GetIssue(ctx context.Context, owner, repo string, issueID int64) (*forge.Issue, error) {
	issue, _, err := g.client.Issues.Get(ctx, owner, repo, int(issueID))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("%s/%s#%d", owner, repo, issueID))
	}
	return &forge.Issue{
		Title:       issue.GetTitle(),
		Description: issue.GetBody(),
		HTMLURL:     issue.GetHTMLURL(),
		Number:      int64(issue.GetNumber()),
		State:       issue.GetState(),
		Author:      issue.GetUser().GetLogin(),
		CreatedAt:   issue.GetCreatedAt().Time,
		UpdatedAt:   issue.GetUpdatedAt().Time,
	}, nil
}

// GetUser fetches account details.
func (g *GitHub) GetUser(ctx context.Context, name string) (*forge.User, error) {
	u, _, err := g.client.Users.Get(ctx, name)
	if err != nil {
		return nil, classify(err, name)
	}
	display := strings.TrimSpace(u.GetName())
	if display == "" {
		display = u.GetLogin()
	}
	return &forge.User{
		Name:        display,
		UserID:      u.GetLogin(),
		ProfileURL:  u.GetHTMLURL(),
		AvatarURL:   u.GetAvatarURL(),
		Description: u.GetBio(),
	}, nil
}

// CreateIssue opens an issue and returns its HTML URL.
func (g *GitHub) CreateIssue(ctx context.Context, issue forge.CreateIssue) (string, error) {
	req := &gh.IssueRequest{Title: gh.String(issue.Title), Body: gh.String(issue.Body)}
	created, _, err := g.client.Issues.Create(ctx, issue.Owner, issue.Repo, req)
	if err != nil {
		return "", classify(err, issue.Owner+"/"+issue.Repo)
	}
	if issue.Closed {
		state := "closed"
		number := created.GetNumber()
		if _, _, err := g.client.Issues.Edit(ctx, issue.Owner, issue.Repo, number, &gh.IssueRequest{State: &state}); err != nil {
			return "", classify(err, issue.Owner+"/"+issue.Repo)
		}
	}
	return created.GetHTMLURL(), nil
}

// CreatePullRequest opens a pull request and returns its HTML URL.
func (g *GitHub) CreatePullRequest(ctx context.Context, pr forge.CreatePullrequest) (string, error) {
	req := &gh.NewPullRequest{
		Title: gh.String(pr.Title),
		Head:  gh.String(pr.Head),
		Base:  gh.String(pr.Base),
		Body:  gh.String(pr.Body),
	}
	created, _, err := g.client.PullRequests.Create(ctx, pr.Owner, pr.Repo, req)
	if err != nil {
		return "", classify(err, pr.Owner+"/"+pr.Repo)
	}
	return created.GetHTMLURL(), nil
}

// CommentOnIssue adds a comment to an existing issue.
func (g *GitHub) CommentOnIssue(ctx context.Context, comment forge.CommentOnIssue) error {
	number, err := numberFromURL(comment.IssueURL)
	if err != nil {
		return err
	}
	_, _, err = g.client.Issues.CreateComment(ctx, comment.Owner, comment.Repo, int(number), &gh.IssueComment{
		Body: gh.String(comment.Body),
	})
	if err != nil {
		return classify(err, comment.Owner+"/"+comment.Repo)
	}
	return nil
}

// CreateRepository creates a repository under the administered account.
func (g *GitHub) CreateRepository(ctx context.Context, repo, description string) error {
	_, _, err := g.client.Repositories.Create(ctx, "", &gh.Repository{
		Name:        gh.String(repo),
		Description: gh.String(description),
	})
	if err != nil {
		return classify(err, g.username+"/"+repo)
	}
	return nil
}

// Subscribe watches a repository so its activity shows up in notifications.
func (g *GitHub) Subscribe(ctx context.Context, owner, repo string) error {
	_, _, err := g.client.Activity.SetRepositorySubscription(ctx, owner, repo, &gh.Subscription{
		Subscribed: gh.Bool(true),
	})
	if err != nil {
		return classify(err, owner+"/"+repo)
	}
	return nil
}

// ForkInner forks owner/repo into the administered account. GitHub renames
// colliding forks itself, so no probe loop is needed; the fork's actual name
// comes back in the response.
func (g *GitHub) ForkInner(ctx context.Context, owner, repo string) (string, error) {
	forked, _, err := g.client.Repositories.CreateFork(ctx, owner, repo, nil)
	if err != nil {
		// Forking is asynchronous; 202 means the fork is being created.
		var accepted *gh.AcceptedError
		if !errors.As(err, &accepted) {
			return "", classify(err, owner+"/"+repo)
		}
	}
	if forked != nil && forked.GetName() != "" {
		return forked.GetName(), nil
	}
	return repo, nil
}

// GetNotifications polls notifications since the watermark, mapping GitHub
// subject types onto the core's Issue/Pull vocabulary.
func (g *GitHub) GetNotifications(ctx context.Context, since time.Time) (*forge.NotificationResp, error) {
	opts := &gh.NotificationListOptions{
		Since:         since,
		All:           true,
		ListOptions:   gh.ListOptions{PerPage: 100},
		Participating: false,
	}

	out := &forge.NotificationResp{LastRead: since}
	for {
		notifications, resp, err := g.client.Activity.ListNotifications(ctx, opts)
		if err != nil {
			return nil, classify(err, "notifications")
		}
		for _, raw := range notifications {
			n, err := g.intoNotification(ctx, raw)
			if err != nil {
				return nil, err
			}
			if n == nil {
				continue
			}
			out.Notifications = append(out.Notifications, *n)
			if n.UpdatedAt.After(out.LastRead) {
				out.LastRead = n.UpdatedAt
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (g *GitHub) intoNotification(ctx context.Context, raw *gh.Notification) (*forge.Notification, error) {
	owner := raw.GetRepository().GetOwner().GetLogin()
	repo := raw.GetRepository().GetName()

	n := &forge.Notification{
		ID:        raw.GetID(),
		Title:     raw.GetSubject().GetTitle(),
		UpdatedAt: raw.GetUpdatedAt().Time,
		RepoURL:   raw.GetRepository().GetHTMLURL(),
	}

	switch raw.GetSubject().GetType() {
	case "PullRequest":
		n.Type = forge.TypePull
		number, err := numberFromURL(raw.GetSubject().GetURL())
		if err != nil {
			return nil, err
		}
		pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, int(number))
		if err != nil {
			return nil, classify(err, fmt.Sprintf("%s/%s#%d", owner, repo, number))
		}
		n.State = pr.GetState()
		n.PrURL = pr.GetHTMLURL()
		n.Upstream = raw.GetRepository().GetDescription()

	case "Issue":
		n.Type = forge.TypeIssue
		commentURL := raw.GetSubject().GetLatestCommentURL()
		if commentURL == "" {
			break
		}
		commentID, err := numberFromURL(commentURL)
		if err != nil {
			return nil, err
		}
		comment, _, err := g.client.Issues.GetComment(ctx, owner, repo, commentID)
		if err != nil {
			return nil, classify(err, commentURL)
		}
		n.Comment = &forge.Comment{
			ID:        comment.GetID(),
			Body:      comment.GetBody(),
			UpdatedAt: comment.GetUpdatedAt().Time,
			Author:    comment.GetUser().GetLogin(),
			URL:       comment.GetHTMLURL(),
		}

	default:
		// Repository invitations and other subject types are irrelevant here.
		return nil, nil
	}
	return n, nil
}

// numberFromURL extracts the trailing numeric segment from an API URL.
func numberFromURL(raw string) (int64, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return 0, fault.InvalidIssueURL(raw)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	n, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0, fault.InvalidIssueURL(raw)
	}
	return n, nil
}
