package forge

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/forgelink/relay/internal/fault"
)

// CleanURL strips path, query, and fragment, leaving scheme and host.
func CleanURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("forge: parse url %q: %w", raw, err)
	}
	return (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host}).String(), nil
}

// OwnerRepoFromURL extracts (owner, repo) from a repository URL, verifying the
// URL belongs to the forge at host.
func OwnerRepoFromURL(host *url.URL, raw string) (string, string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", fault.Wrap(fault.InvalidInput, fault.CodeInvalidPayload, fmt.Sprintf("malformed repository url %q", raw), err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fault.InvalidPayload(fmt.Sprintf("repository url %q: scheme must be http or https", raw))
	}
	if parsed.Host != host.Host {
		return "", "", fault.UnsupportedForge(raw)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fault.InvalidPayload(fmt.Sprintf("repository url %q: missing owner or repo segment", raw))
	}
	return parts[0], parts[1], nil
}

// BranchName derives the federation branch name from a pull request URL:
// host and path joined with the path's slashes turned into dashes.
func BranchName(prURL string) string {
	parsed, err := url.Parse(prURL)
	if err != nil {
		return ""
	}
	return parsed.Host + strings.ReplaceAll(parsed.Path, "/", "-")
}

// LocalRepoName derives the local mirror name for a foreign repository URL.
func LocalRepoName(repoURL string) string {
	return BranchName(repoURL)
}

// PatchURL derives the raw-patch endpoint from a pull request URL.
func PatchURL(prURL string) string {
	if strings.HasSuffix(prURL, "/") {
		return strings.TrimSuffix(prURL, "/") + ".patch"
	}
	return prURL + ".patch"
}
