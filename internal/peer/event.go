package peer

import (
	"fmt"
	"time"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
)

// Event is the wire form of a notification exchanged between relays. Comment
// carries only the body; receivers re-resolve authorship against their own
// forge view.
type Event struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type"`
	State     string `json:"state"`
	UpdatedAt string `json:"updated_at"`
	Title     string `json:"title"`
	RepoURL   string `json:"repo_url,omitempty"`
	Upstream  string `json:"upstream,omitempty"`
	PrURL     string `json:"pr_url,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// FromNotification converts a polled notification into its wire form.
func FromNotification(n forge.Notification) Event {
	e := Event{
		ID:        n.ID,
		Type:      n.Type,
		State:     n.State,
		UpdatedAt: n.UpdatedAt.UTC().Format(time.RFC3339),
		Title:     n.Title,
		RepoURL:   n.RepoURL,
		Upstream:  n.Upstream,
		PrURL:     n.PrURL,
	}
	if n.Comment != nil {
		e.Comment = n.Comment.Body
	}
	return e
}

// Notification converts a received wire event back into the core type. The
// type, state, updated_at, and title fields are mandatory.
func (e Event) Notification() (forge.Notification, error) {
	if e.Type == "" || e.State == "" || e.UpdatedAt == "" || e.Title == "" {
		return forge.Notification{}, fault.InvalidPayload("event is missing mandatory fields")
	}
	updated, err := time.Parse(time.RFC3339, e.UpdatedAt)
	if err != nil {
		return forge.Notification{}, fault.InvalidPayload(fmt.Sprintf("malformed updated_at %q", e.UpdatedAt))
	}
	n := forge.Notification{
		ID:        e.ID,
		Type:      e.Type,
		State:     e.State,
		UpdatedAt: updated,
		Title:     e.Title,
		RepoURL:   e.RepoURL,
		Upstream:  e.Upstream,
		PrURL:     e.PrURL,
	}
	if e.Comment != "" {
		n.Comment = &forge.Comment{Body: e.Comment, UpdatedAt: updated}
	}
	return n, nil
}
