package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
	"github.com/forgelink/relay/internal/models"
	"github.com/forgelink/relay/internal/peer"
	"github.com/forgelink/relay/internal/resolver"
)

// RunEvent executes a classified event. Every propagation path runs inside a
// task record: the task is opened queued and resolved to completed or error
// with the outcome.
func (e *Engine) RunEvent(ctx context.Context, event resolver.Event) error {
	switch ev := event.(type) {
	case *resolver.PrEvent:
		return e.runPr(ctx, ev)
	case *resolver.IssueEvent:
		return e.runIssue(ctx, ev)
	}
	return fmt.Errorf("engine: unhandled event kind %q", event.Kind())
}

// runPr replays a pull request patch onto the local fork of its upstream.
func (e *Engine) runPr(ctx context.Context, ev *resolver.PrEvent) error {
	n := ev.Notification

	self, err := e.self()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(peer.FromNotification(n))
	if err != nil {
		return fmt.Errorf("engine: encode pr payload: %w", err)
	}
	task, err := e.store.CreateTask(self.ID, models.PayloadApplyPatch, string(payload))
	if err != nil {
		return err
	}

	if err := e.applyPr(ctx, n); err != nil {
		if rerr := e.store.ResolveTask(task.UUID, models.TaskError); rerr != nil {
			e.logger.Printf("engine: task %s: %v", task.UUID, rerr)
		}
		return err
	}
	return e.store.ResolveTask(task.UUID, models.TaskCompleted)
}

func (e *Engine) applyPr(ctx context.Context, n forge.Notification) error {
	patch, err := e.fetchPatch(ctx, forge.PatchURL(n.PrURL))
	if err != nil {
		return err
	}
	repo, err := e.git.InitRepo(ctx, n.RepoURL, n.Upstream)
	if err != nil {
		return err
	}
	if err := e.git.FetchUpstream(ctx, repo); err != nil {
		return err
	}
	branch := forge.BranchName(n.PrURL)
	if _, err := e.git.ProcessPatch(ctx, repo, patch, branch); err != nil {
		return err
	}
	return e.git.PushLocal(ctx, repo, branch)
}

// fetchPatch downloads the raw patch behind a pull request.
func (e *Engine) fetchPatch(ctx context.Context, patchURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, patchURL, nil)
	if err != nil {
		return "", fmt.Errorf("engine: build patch request %s: %w", patchURL, err)
	}
	resp, err := e.hc.Do(req)
	if err != nil {
		return "", fault.Wrap(fault.Unreachable, fault.CodeInterfaceUnreachable,
			fmt.Sprintf("engine: fetch patch %s", patchURL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fault.ForgeUnknown(resp.StatusCode, nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("engine: read patch %s: %w", patchURL, err)
	}
	return string(body), nil
}

// runIssue mirrors issue activity into the store and fans it out to
// subscribed peers. Delivery failures are isolated per peer.
func (e *Engine) runIssue(ctx context.Context, ev *resolver.IssueEvent) error {
	n := ev.Notification

	owner, repoName, err := e.forge.GetOwnerRepoFromURL(n.RepoURL)
	if err != nil {
		return err
	}
	repo, err := e.GetRepo(ctx, owner, repoName)
	if err != nil {
		return err
	}

	self, err := e.self()
	if err != nil {
		return err
	}
	kind := models.PayloadCreateIssue
	if n.Comment != nil {
		kind = models.PayloadCommentOnIssue
	}
	payload, err := json.Marshal(peer.FromNotification(n))
	if err != nil {
		return fmt.Errorf("engine: encode issue payload: %w", err)
	}
	task, err := e.store.CreateTask(self.ID, kind, string(payload))
	if err != nil {
		return err
	}

	if err := e.mirrorIssue(ctx, n, repo, owner); err != nil {
		if rerr := e.store.ResolveTask(task.UUID, models.TaskError); rerr != nil {
			e.logger.Printf("engine: task %s: %v", task.UUID, rerr)
		}
		return err
	}

	e.fanOut(ctx, repo, n)
	return e.store.ResolveTask(task.UUID, models.TaskCompleted)
}

// mirrorIssue records the issue, its state transition, and the comment the
// notification carries. State-only notifications and wire comments from
// peers name no issue URL, so only the repository row is touched.
func (e *Engine) mirrorIssue(ctx context.Context, n forge.Notification, repo *models.Repository, owner string) error {
	if n.Comment == nil || n.Comment.URL == "" {
		e.logger.Printf("engine: issue notification on %s names no issue, skipping issue rows", n.RepoURL)
		return nil
	}

	number, err := issueNumberFromURL(n.Comment.URL)
	if err != nil {
		return err
	}
	issue, err := e.GetIssue(ctx, repo, owner, number)
	if err != nil {
		return err
	}

	switch n.State {
	case "closed":
		if issue.State() != models.IssueClosed {
			issue.SetClosed(n.UpdatedAt.Unix())
			if err := e.store.UpdateIssue(issue); err != nil {
				return err
			}
		}
	case "open":
		if issue.State() != models.IssueOpen {
			issue.SetOpen(n.UpdatedAt.Unix())
			if err := e.store.UpdateIssue(issue); err != nil {
				return err
			}
		}
	}

	author, err := e.GetUser(ctx, n.Comment.Author)
	if err != nil {
		return err
	}
	comment := &models.Comment{
		Body:      n.Comment.Body,
		HTMLURL:   fmt.Sprintf("%s#issuecomment-%d", issue.HTMLURL, n.Comment.ID),
		Created:   n.Comment.UpdatedAt.Unix(),
		Updated:   n.Comment.UpdatedAt.Unix(),
		CommentID: n.Comment.ID,
		UserID:    author.ID,
		IssueID:   issue.ID,
	}
	return e.store.SaveComment(comment)
}

// fanOut delivers the event to every subscriber of the repository. A failed
// or slow peer never blocks the rest.
func (e *Engine) fanOut(ctx context.Context, repo *models.Repository, n forge.Notification) {
	subscribers, err := e.store.Subscribers(repo.ID)
	if err != nil {
		e.logger.Printf("engine: load subscribers of %s: %v", repo.Name, err)
		return
	}
	event := peer.FromNotification(n)
	for _, sub := range subscribers {
		peerCtx, cancel := context.WithTimeout(ctx, e.peerTimeout)
		if err := e.peers.SendEvent(peerCtx, sub.URL, event); err != nil {
			e.logger.Printf("engine: deliver to %s: %v", sub.URL, err)
		}
		cancel()
	}
}

// issueNumberFromURL extracts the trailing issue number from an issue or
// pull request URL.
func issueNumberFromURL(raw string) (int64, error) {
	trimmed := strings.TrimSuffix(raw, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return 0, fault.InvalidIssueURL(raw)
	}
	n, err := strconv.ParseInt(trimmed[idx+1:], 10, 64)
	if err != nil {
		return 0, fault.InvalidIssueURL(raw)
	}
	return n, nil
}
