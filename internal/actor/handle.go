// Package actor renders users, repositories, and issues as federated actors:
// webfinger JRD descriptors and ActivityPub documents, addressed by the
// relay's handle grammar.
package actor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/forgelink/relay/internal/fault"
)

// HandleKind discriminates what a handle names.
type HandleKind string

const (
	KindUser  HandleKind = "user"
	KindRepo  HandleKind = "repo"
	KindIssue HandleKind = "issue"
	KindPull  HandleKind = "pull"
)

// Handle is a parsed federation handle. The grammar is:
//
//	username                     a forge account
//	!owner!repo                  a repository
//	!owner!repo!issue!N          an issue
//	!owner!repo!pull!N           a pull request
type Handle struct {
	Kind     HandleKind
	Username string
	Owner    string
	Repo     string
	Number   int64
}

// ParseHandle parses the local part of a webfinger account.
func ParseHandle(raw string) (Handle, error) {
	if raw == "" {
		return Handle{}, fault.InvalidPayload("empty handle")
	}
	if !strings.Contains(raw, "!") {
		return Handle{Kind: KindUser, Username: raw}, nil
	}
	parts := strings.Split(raw, "!")
	// A leading "!" yields an empty first element.
	if parts[0] != "" {
		return Handle{}, fault.InvalidPayload(fmt.Sprintf("malformed handle %q", raw))
	}
	switch len(parts) {
	case 3:
		if parts[1] == "" || parts[2] == "" {
			return Handle{}, fault.InvalidPayload(fmt.Sprintf("malformed handle %q", raw))
		}
		return Handle{Kind: KindRepo, Owner: parts[1], Repo: parts[2]}, nil
	case 5:
		if parts[1] == "" || parts[2] == "" {
			return Handle{}, fault.InvalidPayload(fmt.Sprintf("malformed handle %q", raw))
		}
		var kind HandleKind
		switch parts[3] {
		case "issue":
			kind = KindIssue
		case "pull":
			kind = KindPull
		default:
			return Handle{}, fault.InvalidPayload(fmt.Sprintf("handle %q: %q is neither issue nor pull", raw, parts[3]))
		}
		n, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return Handle{}, fault.InvalidPayload(fmt.Sprintf("handle %q: malformed number %q", raw, parts[4]))
		}
		return Handle{Kind: kind, Owner: parts[1], Repo: parts[2], Number: n}, nil
	}
	return Handle{}, fault.InvalidPayload(fmt.Sprintf("malformed handle %q", raw))
}

// ParseResource parses a webfinger resource query ("acct:<handle>@<domain>"),
// verifying the domain is ours.
func ParseResource(resource, domain string) (Handle, error) {
	if !strings.HasPrefix(resource, "acct:") || !strings.Contains(resource, "@") {
		return Handle{}, fault.InvalidPayload(fmt.Sprintf("malformed resource %q", resource))
	}
	rest := strings.TrimPrefix(resource, "acct:")
	at := strings.LastIndex(rest, "@")
	local, host := rest[:at], rest[at+1:]
	if host != domain {
		return Handle{}, fault.InvalidPayload(fmt.Sprintf("resource %q names a foreign domain", resource))
	}
	return ParseHandle(local)
}

// String renders the handle back into its grammar form.
func (h Handle) String() string {
	switch h.Kind {
	case KindUser:
		return h.Username
	case KindRepo:
		return fmt.Sprintf("!%s!%s", h.Owner, h.Repo)
	case KindIssue, KindPull:
		return fmt.Sprintf("!%s!%s!%s!%d", h.Owner, h.Repo, h.Kind, h.Number)
	}
	return ""
}

// Acct renders the handle as a full webfinger account on domain.
func (h Handle) Acct(domain string) string {
	return fmt.Sprintf("acct:%s@%s", h.String(), domain)
}
