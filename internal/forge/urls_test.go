package forge

import (
	"net/url"
	"testing"

	"github.com/forgelink/relay/internal/fault"
)

func TestOwnerRepoFromURL(t *testing.T) {
	host, err := url.Parse("https://git.example.org")
	if err != nil {
		t.Fatalf("parse host: %v", err)
	}

	tests := []struct {
		name     string
		raw      string
		owner    string
		repo     string
		wantKind fault.Kind
	}{
		{name: "plain", raw: "https://git.example.org/alice/widgets", owner: "alice", repo: "widgets"},
		{name: "trailing path", raw: "https://git.example.org/alice/widgets/issues/4", owner: "alice", repo: "widgets"},
		{name: "foreign host", raw: "https://git.bob.org/alice/widgets", wantKind: fault.InvalidInput},
		{name: "no repo segment", raw: "https://git.example.org/alice", wantKind: fault.InvalidInput},
		{name: "not http", raw: "ssh://git.example.org/alice/widgets", wantKind: fault.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := OwnerRepoFromURL(host, tt.raw)
			if tt.wantKind != 0 {
				if fault.KindOf(err) != tt.wantKind {
					t.Fatalf("err = %v, want kind %v", err, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("OwnerRepoFromURL: %v", err)
			}
			if owner != tt.owner || repo != tt.repo {
				t.Errorf("got %s/%s, want %s/%s", owner, repo, tt.owner, tt.repo)
			}
		})
	}
}

func TestBranchName(t *testing.T) {
	got := BranchName("https://git.example.org/alice/widgets/pulls/7")
	want := "git.example.org-alice-widgets-pulls-7"
	if got != want {
		t.Errorf("BranchName = %q, want %q", got, want)
	}
}

func TestPatchURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://git.example.org/alice/widgets/pulls/7", "https://git.example.org/alice/widgets/pulls/7.patch"},
		{"https://git.example.org/alice/widgets/pulls/7/", "https://git.example.org/alice/widgets/pulls/7.patch"},
	}
	for _, tt := range tests {
		if got := PatchURL(tt.raw); got != tt.want {
			t.Errorf("PatchURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
