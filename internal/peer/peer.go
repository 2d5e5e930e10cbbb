// Package peer is the HTTP client side of relay-to-relay federation: the
// version handshake, public key fetch, and event delivery.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forgelink/relay/internal/fault"
)

// ProtocolVersions lists the federation protocol versions this relay speaks,
// newest first.
var ProtocolVersions = []string{"1"}

const defaultTimeout = 30 * time.Second

// Client talks to peer relays.
type Client struct {
	self string
	hc   *http.Client
}

// NewClient builds a peer client identifying itself as selfURL. Pass zero
// for the default timeout.
func NewClient(selfURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		self: selfURL,
		hc:   &http.Client{Timeout: timeout},
	}
}

// apiURL joins a path onto the peer's origin, dropping anything else the
// stored URL carries.
func apiURL(peerURL, path string) (string, error) {
	u, err := url.Parse(peerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fault.New(fault.InvalidInput, fault.CodeInvalidPayload,
			fmt.Sprintf("peer: malformed interface url %q", peerURL))
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, peerURL, path string, out any) error {
	target, err := apiURL(peerURL, path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("peer: build request for %s: %w", target, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fault.Wrap(fault.Unreachable, fault.CodeInterfaceUnreachable,
			fmt.Sprintf("peer: %s is unreachable", peerURL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fault.New(fault.Unreachable, fault.CodeInterfaceUnreachable,
			fmt.Sprintf("peer: %s returned %d for %s", peerURL, resp.StatusCode, path))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("peer: decode response from %s: %w", target, err)
	}
	return nil
}

// Versions returns the protocol versions the peer speaks.
func (c *Client) Versions(ctx context.Context, peerURL string) ([]string, error) {
	var body struct {
		Versions []string `json:"versions"`
	}
	if err := c.get(ctx, peerURL, "/_ff/interface/versions", &body); err != nil {
		return nil, err
	}
	return body.Versions, nil
}

// PublicKey returns the peer's base64 signing key.
func (c *Client) PublicKey(ctx context.Context, peerURL string) (string, error) {
	var body struct {
		Key string `json:"key"`
	}
	if err := c.get(ctx, peerURL, "/_ff/interface/key", &body); err != nil {
		return "", err
	}
	return body.Key, nil
}

// Handshake verifies the peer speaks a shared protocol version and returns
// its public key. It is the gate every new subscription passes through.
func (c *Client) Handshake(ctx context.Context, peerURL string) (string, error) {
	versions, err := c.Versions(ctx, peerURL)
	if err != nil {
		return "", err
	}
	if !compatible(versions) {
		return "", fault.New(fault.Unreachable, fault.CodeInterfaceUnreachable,
			fmt.Sprintf("peer: %s speaks %s, none supported", peerURL, strings.Join(versions, ",")))
	}
	return c.PublicKey(ctx, peerURL)
}

func compatible(versions []string) bool {
	for _, theirs := range versions {
		for _, ours := range ProtocolVersions {
			if theirs == ours {
				return true
			}
		}
	}
	return false
}

func (c *Client) post(ctx context.Context, peerURL, path string, in, out any) error {
	target, err := apiURL(peerURL, path)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("peer: encode request for %s: %w", target, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("peer: build request for %s: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fault.Wrap(fault.Unreachable, fault.CodeInterfaceUnreachable,
			fmt.Sprintf("peer: %s is unreachable", peerURL), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fault.New(fault.Unreachable, fault.CodeInterfaceUnreachable,
			fmt.Sprintf("peer: %s rejected %s with %d", peerURL, path, resp.StatusCode))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("peer: decode response from %s: %w", target, err)
	}
	return nil
}

// SendEvent delivers a notification payload to the peer's events endpoint.
func (c *Client) SendEvent(ctx context.Context, peerURL string, event any) error {
	return c.post(ctx, peerURL, "/api/v1/notifications/events", event, nil)
}

// RepositoryInfo asks the peer to describe a repository on its forge.
type RepositoryInfo struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	Description string `json:"description"`
}

// GetRepositoryInfo fetches repository metadata from a peer, used when
// mirroring a foreign repository locally.
func (c *Client) GetRepositoryInfo(ctx context.Context, peerURL, repoURL string) (*RepositoryInfo, error) {
	var info RepositoryInfo
	in := map[string]string{"repository_url": repoURL}
	if err := c.post(ctx, peerURL, "/api/v1/repository/info", in, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
