package gitops

import (
	"context"
	"strings"
	"testing"
)

func TestNewExecGit_Validation(t *testing.T) {
	if _, err := NewExecGit("", "relay", "relay@example.org"); err == nil {
		t.Error("NewExecGit accepted an empty base directory")
	}
	if _, err := NewExecGit("/var/lib/relay", "relay", "not-an-email"); err == nil {
		t.Error("NewExecGit accepted a malformed admin email")
	}
	if _, err := NewExecGit("/var/lib/relay", "relay", "relay@example.org"); err != nil {
		t.Errorf("NewExecGit: %v", err)
	}
}

func TestRepoDir(t *testing.T) {
	g, err := NewExecGit("/var/lib/relay", "relay", "relay@example.org")
	if err != nil {
		t.Fatalf("NewExecGit: %v", err)
	}

	tests := []struct {
		name     string
		upstream string
		want     string
	}{
		{
			name:     "plain repository",
			upstream: "https://git.alice.org/alice/widgets",
			want:     "/var/lib/relay/git.alice.org-alice-widgets",
		},
		{
			name:     "dot git suffix stripped",
			upstream: "https://git.alice.org/alice/widgets.git",
			want:     "/var/lib/relay/git.alice.org-alice-widgets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.repoDir(tt.upstream)
			if err != nil {
				t.Fatalf("repoDir: %v", err)
			}
			if got != tt.want {
				t.Errorf("repoDir(%q) = %q, want %q", tt.upstream, got, tt.want)
			}
		})
	}
}

func TestApplyPatch_RejectsBadAuthorEmail(t *testing.T) {
	g, err := NewExecGit("/var/lib/relay", "relay", "relay@example.org")
	if err != nil {
		t.Fatalf("NewExecGit: %v", err)
	}
	repo := &Repo{Dir: "/nonexistent"}
	patch := Patch{AuthorName: "Bob", AuthorEmail: "bob-at-example", Body: "diff"}
	err = g.ApplyPatch(context.Background(), repo, patch, "federated-branch")
	if err == nil || !strings.Contains(err.Error(), "author email") {
		t.Errorf("ApplyPatch = %v, want author email error", err)
	}
}
