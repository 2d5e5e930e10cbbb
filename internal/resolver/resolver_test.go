package resolver

import (
	"testing"
	"time"

	"github.com/forgelink/relay/internal/fault"
	"github.com/forgelink/relay/internal/forge"
)

func newTestResolver() *Resolver {
	return New(forge.NewMockForge("https://git.example.org", "relay-admin"))
}

func TestResolve_Pull(t *testing.T) {
	r := newTestResolver()

	n := forge.Notification{
		Type:      forge.TypePull,
		State:     "open",
		UpdatedAt: time.Now(),
		Title:     "add retry",
		RepoURL:   "https://git.example.org/relay-admin/widgets",
		PrURL:     "https://git.example.org/relay-admin/widgets/pulls/3",
		Upstream:  "https://github.com/alice/widgets",
	}
	event, err := r.Resolve(n)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pr, ok := event.(*PrEvent)
	if !ok {
		t.Fatalf("Resolve returned %T, want *PrEvent", event)
	}
	if pr.Notification.PrURL != n.PrURL {
		t.Errorf("pr url = %q, want %q", pr.Notification.PrURL, n.PrURL)
	}
}

func TestResolve_PullMissingMandatoryFields(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name string
		n    forge.Notification
	}{
		{
			name: "no pr url",
			n: forge.Notification{
				Type:     forge.TypePull,
				RepoURL:  "https://git.example.org/relay-admin/widgets",
				Upstream: "https://github.com/alice/widgets",
			},
		},
		{
			name: "no upstream",
			n: forge.Notification{
				Type:    forge.TypePull,
				RepoURL: "https://git.example.org/relay-admin/widgets",
				PrURL:   "https://git.example.org/relay-admin/widgets/pulls/3",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.n)
			if fault.KindOf(err) != fault.InvalidInput {
				t.Errorf("Resolve = %v, want InvalidInput fault", err)
			}
		})
	}
}

func TestResolve_PullAgainstForeignOwner(t *testing.T) {
	r := newTestResolver()

	n := forge.Notification{
		Type:     forge.TypePull,
		RepoURL:  "https://git.example.org/someone-else/widgets",
		PrURL:    "https://git.example.org/someone-else/widgets/pulls/3",
		Upstream: "https://github.com/alice/widgets",
	}
	if _, err := r.Resolve(n); fault.KindOf(err) != fault.InvalidInput {
		t.Errorf("Resolve = %v, want InvalidInput fault", err)
	}
}

func TestResolve_IssueWithoutComment(t *testing.T) {
	r := newTestResolver()

	// State-only notifications carry no comment and must still resolve.
	n := forge.Notification{
		Type:    forge.TypeIssue,
		State:   "closed",
		Title:   "panic on empty config",
		RepoURL: "https://git.example.org/alice/widgets",
	}
	event, err := r.Resolve(n)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := event.(*IssueEvent); !ok {
		t.Fatalf("Resolve returned %T, want *IssueEvent", event)
	}
}

func TestResolve_Rejections(t *testing.T) {
	r := newTestResolver()

	tests := []struct {
		name string
		n    forge.Notification
	}{
		{
			name: "repository transfer",
			n:    forge.Notification{Type: forge.TypeRepository},
		},
		{
			name: "unknown type",
			n:    forge.Notification{Type: "Wiki"},
		},
		{
			name: "issue without repository url",
			n:    forge.Notification{Type: forge.TypeIssue},
		},
		{
			name: "issue on a foreign forge",
			n: forge.Notification{
				Type:    forge.TypeIssue,
				RepoURL: "https://other-forge.example/alice/widgets",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.n)
			if fault.KindOf(err) != fault.InvalidInput {
				t.Errorf("Resolve = %v, want InvalidInput fault", err)
			}
		})
	}
}
