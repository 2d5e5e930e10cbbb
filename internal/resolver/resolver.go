// Package resolver classifies polled notifications into runnable events.
// Everything the reconciliation engine executes enters through Resolve.
package resolver

import (
	"fmt"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
)

// Event is a classified notification ready for the engine. Kind names the
// propagation path for logs and task payloads.
type Event interface {
	Kind() string
}

// PrEvent is a pull request notification against a repository fronted by the
// administered account. Its patch is replayed onto the local fork.
type PrEvent struct {
	Notification forge.Notification
}

// Kind implements Event.
func (e *PrEvent) Kind() string { return "pr" }

// IssueEvent is an issue notification fanned out to subscribed peers. The
// comment is optional: state-only notifications carry none.
type IssueEvent struct {
	Notification forge.Notification
}

// Kind implements Event.
func (e *IssueEvent) Kind() string { return "issue" }

// Resolver classifies notifications for one forge. The forge supplies URL
// ownership checks and the administered account name.
type Resolver struct {
	forge forge.Forge
}

// New builds a Resolver over f.
func New(f forge.Forge) *Resolver {
	return &Resolver{forge: f}
}

// Resolve turns a notification into a runnable event. Notifications that
// cannot drive federation (repository transfers, unknown subject types,
// pulls against repositories the administered account does not own) are
// rejected with an InvalidInput fault.
func (r *Resolver) Resolve(n forge.Notification) (Event, error) {
	switch n.Type {
	case forge.TypePull:
		return r.resolvePull(n)
	case forge.TypeIssue:
		return r.resolveIssue(n)
	case forge.TypeRepository:
		return nil, fault.New(fault.InvalidInput, fault.CodeInvalidPayload,
			"resolver: repository transfer notifications are not federated")
	}
	return nil, fault.New(fault.InvalidInput, fault.CodeInvalidPayload,
		fmt.Sprintf("resolver: unknown notification type %q", n.Type))
}

func (r *Resolver) resolvePull(n forge.Notification) (Event, error) {
	if n.PrURL == "" || n.Upstream == "" {
		return nil, fault.New(fault.InvalidInput, fault.CodeInvalidPayload,
			"resolver: pull notification is missing mandatory fields")
	}
	owner, _, err := r.forge.GetOwnerRepoFromURL(n.RepoURL)
	if err != nil {
		return nil, err
	}
	if owner != r.forge.Username() {
		return nil, fault.New(fault.InvalidInput, fault.CodeInvalidPayload,
			fmt.Sprintf("resolver: pull against %s, not the administered account", owner))
	}
	return &PrEvent{Notification: n}, nil
}

func (r *Resolver) resolveIssue(n forge.Notification) (Event, error) {
	if n.RepoURL == "" {
		return nil, fault.New(fault.InvalidInput, fault.CodeInvalidPayload,
			"resolver: issue notification is missing its repository url")
	}
	if _, _, err := r.forge.GetOwnerRepoFromURL(n.RepoURL); err != nil {
		return nil, err
	}
	return &IssueEvent{Notification: n}, nil
}
