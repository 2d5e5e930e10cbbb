package gitops

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecGit implements System by shelling out to the git binary.
type ExecGit struct {
	baseDir    string
	adminName  string
	adminEmail string
}

// NewExecGit returns a System storing working copies under baseDir and
// committing processed patches as the given admin identity.
func NewExecGit(baseDir, adminName, adminEmail string) (*ExecGit, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("gitops: base directory is required")
	}
	if _, err := mail.ParseAddress(adminEmail); err != nil {
		return nil, fmt.Errorf("gitops: admin email %q: %w", adminEmail, err)
	}
	return &ExecGit{baseDir: baseDir, adminName: adminName, adminEmail: adminEmail}, nil
}

// repoDir derives a stable directory name from the upstream URL.
func (g *ExecGit) repoDir(upstreamURL string) (string, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil {
		return "", fmt.Errorf("gitops: parse upstream url %q: %w", upstreamURL, err)
	}
	name := u.Host + strings.ReplaceAll(strings.TrimSuffix(u.Path, ".git"), "/", "-")
	return filepath.Join(g.baseDir, name), nil
}

func (g *ExecGit) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("gitops: git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// runWithStdin is run with the patch text piped to git.
func (g *ExecGit) runWithStdin(ctx context.Context, dir, stdin string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(stdin)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gitops: git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}

// setRemote points name at url, adding the remote on first use.
func (g *ExecGit) setRemote(ctx context.Context, dir, name, url string) error {
	if _, err := g.run(ctx, dir, "remote", "set-url", name, url); err == nil {
		return nil
	}
	_, err := g.run(ctx, dir, "remote", "add", name, url)
	return err
}

func (g *ExecGit) InitRepo(ctx context.Context, localURL, upstreamURL string) (*Repo, error) {
	dir, err := g.repoDir(upstreamURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("gitops: create %s: %w", dir, err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if _, err := g.run(ctx, dir, "init"); err != nil {
			return nil, err
		}
	}
	if err := g.setRemote(ctx, dir, "upstream", upstreamURL); err != nil {
		return nil, err
	}
	if err := g.setRemote(ctx, dir, "local", localURL); err != nil {
		return nil, err
	}
	return &Repo{Dir: dir, LocalURL: localURL, UpstreamURL: upstreamURL}, nil
}

func (g *ExecGit) FetchUpstream(ctx context.Context, repo *Repo) error {
	if _, err := g.run(ctx, repo.Dir, "fetch", "upstream"); err != nil {
		return err
	}
	_, err := g.run(ctx, repo.Dir, "remote", "set-head", "upstream", "--auto")
	return err
}

func (g *ExecGit) DefaultBranch(ctx context.Context, repo *Repo) (string, error) {
	out, err := g.run(ctx, repo.Dir, "symbolic-ref", "--short", "refs/remotes/upstream/HEAD")
	if err != nil {
		return "", err
	}
	// symbolic-ref prints "upstream/<branch>".
	ref := strings.TrimSpace(out)
	return strings.TrimPrefix(ref, "upstream/"), nil
}

// checkoutFresh cuts branch from the upstream default branch, replacing any
// previous run's branch of the same name.
func (g *ExecGit) checkoutFresh(ctx context.Context, repo *Repo, branch string) error {
	def, err := g.DefaultBranch(ctx, repo)
	if err != nil {
		return err
	}
	_, err = g.run(ctx, repo.Dir, "checkout", "-B", branch, "refs/remotes/upstream/"+def)
	return err
}

func (g *ExecGit) ProcessPatch(ctx context.Context, repo *Repo, patch, branch string) (string, error) {
	if branch == "" {
		return "", fmt.Errorf("gitops: branch name is required")
	}
	if err := g.checkoutFresh(ctx, repo, branch); err != nil {
		return "", err
	}
	if err := g.runWithStdin(ctx, repo.Dir, patch, "apply", "--index", "-"); err != nil {
		return "", err
	}
	_, err := g.run(ctx, repo.Dir,
		"-c", "user.name="+g.adminName,
		"-c", "user.email="+g.adminEmail,
		"commit", "-m", "replay federated patch")
	if err != nil {
		return "", err
	}
	return g.run(ctx, repo.Dir, "format-patch", "-1", "--stdout")
}

func (g *ExecGit) ApplyPatch(ctx context.Context, repo *Repo, patch Patch, branch string) error {
	if branch == "" {
		return fmt.Errorf("gitops: branch name is required")
	}
	if _, err := mail.ParseAddress(patch.AuthorEmail); err != nil {
		return fmt.Errorf("gitops: patch author email %q: %w", patch.AuthorEmail, err)
	}
	if err := g.checkoutFresh(ctx, repo, branch); err != nil {
		return err
	}
	if err := g.runWithStdin(ctx, repo.Dir, patch.Body, "apply", "--index", "-"); err != nil {
		return err
	}
	author := fmt.Sprintf("%s <%s>", patch.AuthorName, patch.AuthorEmail)
	_, err := g.run(ctx, repo.Dir,
		"-c", "user.name="+g.adminName,
		"-c", "user.email="+g.adminEmail,
		"commit", "--author", author, "-m", "apply federated patch")
	return err
}

func (g *ExecGit) Mirror(ctx context.Context, repo *Repo) error {
	if err := g.FetchUpstream(ctx, repo); err != nil {
		return err
	}
	branch, err := g.DefaultBranch(ctx, repo)
	if err != nil {
		return err
	}
	if err := g.checkoutFresh(ctx, repo, branch); err != nil {
		return err
	}
	return g.PushLocal(ctx, repo, branch)
}

func (g *ExecGit) PushLocal(ctx context.Context, repo *Repo, branch string) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := g.run(ctx, repo.Dir, "push", "--force-with-lease", "local", branch); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
