package actor

import (
	"fmt"

	"github.com/forgelink/relay/internal/models"
)

// JRDContentType is the media type webfinger responses carry.
const JRDContentType = "application/jrd+json; charset=utf-8"

// ActivityContentType is the media type actor documents carry.
const ActivityContentType = "application/activity+json"

var activityContext = []string{
	"https://www.w3.org/ns/activitystreams",
	"https://forgefed.org/ns",
}

// Link is one JRD link relation.
type Link struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href"`
}

// JRD is a webfinger descriptor.
type JRD struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases,omitempty"`
	Links   []Link   `json:"links"`
}

// Document is a minimal ActivityPub actor document.
type Document struct {
	Context           []string `json:"@context"`
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	PreferredUsername string   `json:"preferredUsername,omitempty"`
	Name              string   `json:"name,omitempty"`
	Summary           string   `json:"summary,omitempty"`
	URL               string   `json:"url,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	// Tracker is the ForgeFed "context" of a Ticket: its repository actor.
	Tracker      string `json:"context,omitempty"`
	AttributedTo string `json:"attributedTo,omitempty"`
	PublicKey    *Key   `json:"publicKey,omitempty"`
}

// Key is the signing key block of an actor document.
type Key struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// userID returns the actor URL for a user handle.
func userID(base, username string) string { return fmt.Sprintf("%s/u/%s", base, username) }

// repoID returns the actor URL for a repository handle.
func repoID(base string, h Handle) string { return fmt.Sprintf("%s/r/%s", base, h.String()) }

// issueID returns the actor URL for an issue handle.
func issueID(base string, h Handle) string { return fmt.Sprintf("%s/i/%s", base, h.String()) }

// jrd assembles a descriptor with the self and profile-page links every
// actor kind shares.
func jrd(subject, self, html string) JRD {
	links := []Link{{Rel: "self", Type: ActivityContentType, Href: self}}
	if html != "" {
		links = append(links, Link{
			Rel:  "http://webfinger.net/rel/profile-page",
			Type: "text/html",
			Href: html,
		})
	}
	return JRD{Subject: subject, Aliases: []string{self}, Links: links}
}

// UserJRD describes a forge account. base is this relay's URL, domain its
// host.
func UserJRD(base, domain string, u *models.User) JRD {
	h := Handle{Kind: KindUser, Username: u.UserID}
	return jrd(h.Acct(domain), userID(base, u.UserID), u.ProfileURL)
}

// RepoJRD describes a repository.
func RepoJRD(base, domain string, owner string, r *models.Repository) JRD {
	h := Handle{Kind: KindRepo, Owner: owner, Repo: r.Name}
	return jrd(h.Acct(domain), repoID(base, h), r.HTMLURL)
}

// IssueJRD describes an issue or pull request.
func IssueJRD(base, domain string, owner string, i *models.Issue) JRD {
	kind := KindIssue
	if i.IsPullRequest() {
		kind = KindPull
	}
	h := Handle{Kind: kind, Owner: owner, Repo: i.Repository.Name, Number: i.RepoScopeID}
	return jrd(h.Acct(domain), issueID(base, h), i.HTMLURL)
}

// UserDocument renders a forge account as an ActivityPub Person.
func UserDocument(base string, u *models.User) Document {
	return Document{
		Context:           activityContext,
		ID:                userID(base, u.UserID),
		Type:              "Person",
		PreferredUsername: u.UserID,
		Name:              u.Name,
		Summary:           u.Description,
		URL:               u.ProfileURL,
		Icon:              u.AvatarURL,
	}
}

// RepoDocument renders a repository as a ForgeFed Repository actor.
func RepoDocument(base string, owner string, r *models.Repository) Document {
	h := Handle{Kind: KindRepo, Owner: owner, Repo: r.Name}
	return Document{
		Context:      activityContext,
		ID:           repoID(base, h),
		Type:         "Repository",
		Name:         r.Name,
		Summary:      r.Description,
		URL:          r.HTMLURL,
		AttributedTo: userID(base, owner),
	}
}

// IssueDocument renders an issue or pull request as a ForgeFed Ticket.
func IssueDocument(base string, owner string, i *models.Issue) Document {
	kind := KindIssue
	if i.IsPullRequest() {
		kind = KindPull
	}
	h := Handle{Kind: kind, Owner: owner, Repo: i.Repository.Name, Number: i.RepoScopeID}
	repoHandle := Handle{Kind: KindRepo, Owner: owner, Repo: i.Repository.Name}
	return Document{
		Context:      activityContext,
		ID:           issueID(base, h),
		Type:         "Ticket",
		Name:         i.Title,
		Summary:      i.Description,
		URL:          i.HTMLURL,
		Tracker:      repoID(base, repoHandle),
		AttributedTo: userID(base, i.User.UserID),
	}
}
