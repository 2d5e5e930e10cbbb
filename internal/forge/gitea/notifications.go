package gitea

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
)

// giteaThread is the notification thread JSON returned by /notifications.
type giteaThread struct {
	ID      int64 `json:"id"`
	Subject struct {
		Title            string `json:"title"`
		URL              string `json:"url"`
		LatestCommentURL string `json:"latest_comment_url"`
		Type             string `json:"type"`
		State            string `json:"state"`
	} `json:"subject"`
	Repository struct {
		HTMLURL     string `json:"html_url"`
		Description string `json:"description"`
	} `json:"repository"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetNotifications polls forge activity since the watermark.
// Repository-transfer notifications are dropped; LastRead advances to the max
// updated_at among the returned notifications, or stays at since when the poll
// comes back empty.
func (g *Gitea) GetNotifications(ctx context.Context, since time.Time) (*forge.NotificationResp, error) {
	query := url.Values{}
	query.Set("since", since.Format(time.RFC3339))
	resp, err := g.do(ctx, http.MethodGet, g.apiURL("notifications", query), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fault.ForgeUnknown(resp.StatusCode, nil)
	}

	var threads []giteaThread
	if err := decode(resp, &threads); err != nil {
		return nil, err
	}

	out := &forge.NotificationResp{LastRead: since}
	for _, t := range threads {
		n, err := g.intoNotification(ctx, t)
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
	return out, nil
}

// intoNotification converts a notification thread into the core type,
// resolving the PR HTML URL and the latest comment where applicable. Returns
// nil for repository-transfer threads.
func (g *Gitea) intoNotification(ctx context.Context, t giteaThread) (*forge.Notification, error) {
	if t.Subject.Type == forge.TypeRepository {
		return nil, nil
	}

	n := &forge.Notification{
		Type:      t.Subject.Type,
		ID:        formatID(t.ID),
		State:     t.Subject.State,
		UpdatedAt: t.UpdatedAt,
		Title:     t.Subject.Title,
		RepoURL:   t.Repository.HTMLURL,
	}

	switch t.Subject.Type {
	case forge.TypePull:
		htmlURL, err := g.fetchHTMLURL(ctx, t.Subject.URL)
		if err != nil {
			return nil, err
		}
		n.PrURL = htmlURL
		// Mirrored repositories carry their upstream in the description.
		n.Upstream = t.Repository.Description

	case forge.TypeIssue:
		if t.Subject.LatestCommentURL == "" {
			break
		}
		comment, err := g.fetchComment(ctx, t.Subject.LatestCommentURL)
		if err != nil {
			return nil, err
		}
		n.Comment = comment
	}
	return n, nil
}

// fetchHTMLURL dereferences a subject API URL into the page URL.
func (g *Gitea) fetchHTMLURL(ctx context.Context, apiURL string) (string, error) {
	resp, err := g.do(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return "", fault.ForgeUnknown(resp.StatusCode, nil)
	}
	var raw struct {
		HTMLURL string `json:"html_url"`
	}
	if err := decode(resp, &raw); err != nil {
		return "", err
	}
	return raw.HTMLURL, nil
}

// fetchComment dereferences the latest comment of an issue thread.
func (g *Gitea) fetchComment(ctx context.Context, commentURL string) (*forge.Comment, error) {
	resp, err := g.do(ctx, http.MethodGet, commentURL, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fault.ForgeUnknown(resp.StatusCode, nil)
	}
	var raw struct {
		ID             int64     `json:"id"`
		Body           string    `json:"body"`
		UpdatedAt      time.Time `json:"updated_at"`
		IssueURL       string    `json:"issue_url"`
		PullRequestURL string    `json:"pull_request_url"`
		User           struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := decode(resp, &raw); err != nil {
		return nil, err
	}
	target := raw.IssueURL
	if raw.PullRequestURL != "" {
		target = raw.PullRequestURL
	}
	return &forge.Comment{
		ID:        raw.ID,
		Body:      raw.Body,
		UpdatedAt: raw.UpdatedAt,
		Author:    raw.User.Login,
		URL:       target,
	}, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
