// Package gitops moves patches between the upstream repository and the local
// fork. Repositories live as bare working copies under a base directory with
// two remotes, "upstream" (read) and "local" (write).
package gitops

import "context"

// Patch is a unified diff together with its author identity.
type Patch struct {
	AuthorName  string
	AuthorEmail string
	Body        string
}

// Repo is a handle to a working copy managed by a System.
type Repo struct {
	Dir         string
	LocalURL    string
	UpstreamURL string
}

// System is the git capability the reconciliation engine needs. All
// operations are keyed by a Repo handle obtained from InitRepo.
type System interface {
	// InitRepo ensures a working copy exists for the pair of remotes and
	// returns its handle. Calling it again for the same pair is a no-op.
	InitRepo(ctx context.Context, localURL, upstreamURL string) (*Repo, error)
	// FetchUpstream pulls the upstream default branch into the working copy.
	FetchUpstream(ctx context.Context, repo *Repo) error
	// DefaultBranch reports the upstream default branch name.
	DefaultBranch(ctx context.Context, repo *Repo) (string, error)
	// ProcessPatch replays a raw diff on a fresh branch cut from the
	// upstream default branch and returns the normalized patch.
	ProcessPatch(ctx context.Context, repo *Repo, patch, branch string) (string, error)
	// ApplyPatch commits a patch under its author identity on a fresh
	// branch cut from the upstream default branch.
	ApplyPatch(ctx context.Context, repo *Repo, patch Patch, branch string) error
	// PushLocal pushes a branch to the local remote.
	PushLocal(ctx context.Context, repo *Repo, branch string) error
	// Mirror fetches the upstream default branch and pushes it to the
	// local remote, seeding or refreshing a mirror repository.
	Mirror(ctx context.Context, repo *Repo) error
}
