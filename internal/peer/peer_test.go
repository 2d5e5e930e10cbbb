package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgelink/relay/internal/fault"
)

// requireMethod emulates the method-specific mux patterns available in newer
// Go releases: wrong-method requests get 405 instead of reaching the handler.
func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// fakePeer serves the meta endpoints and records delivered events.
func fakePeer(t *testing.T, versions []string, key string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var events []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/_ff/interface/versions", requireMethod(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"versions": versions})
	}))
	mux.HandleFunc("/_ff/interface/key", requireMethod(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"key": key})
	}))
	mux.HandleFunc("/api/v1/notifications/events", requireMethod(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		events = append(events, body)
		w.Write([]byte("{}"))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &events
}

func TestHandshake(t *testing.T) {
	srv, _ := fakePeer(t, []string{"1"}, "peer-public-key")
	c := NewClient("https://relay.alice.org", 0)

	key, err := c.Handshake(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if key != "peer-public-key" {
		t.Errorf("key = %q, want peer-public-key", key)
	}
}

func TestHandshake_NoSharedVersion(t *testing.T) {
	srv, _ := fakePeer(t, []string{"99"}, "peer-public-key")
	c := NewClient("https://relay.alice.org", 0)

	_, err := c.Handshake(context.Background(), srv.URL)
	if fault.KindOf(err) != fault.Unreachable {
		t.Errorf("Handshake = %v, want Unreachable fault", err)
	}
}

func TestHandshake_PeerDown(t *testing.T) {
	srv, _ := fakePeer(t, []string{"1"}, "k")
	url := srv.URL
	srv.Close()

	c := NewClient("https://relay.alice.org", 0)
	_, err := c.Handshake(context.Background(), url)
	if fault.KindOf(err) != fault.Unreachable {
		t.Errorf("Handshake = %v, want Unreachable fault", err)
	}
}

func TestSendEvent(t *testing.T) {
	srv, events := fakePeer(t, []string{"1"}, "k")
	c := NewClient("https://relay.alice.org", 0)

	event := map[string]any{"type": "issue", "state": "open", "title": "t"}
	if err := c.SendEvent(context.Background(), srv.URL, event); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	if len(*events) != 1 {
		t.Fatalf("delivered events = %d, want 1", len(*events))
	}
	if (*events)[0]["type"] != "issue" {
		t.Errorf("delivered type = %v, want issue", (*events)[0]["type"])
	}
}

func TestSendEvent_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errcode":"F_D_INVALID_PAYLOAD"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("https://relay.alice.org", 0)
	err := c.SendEvent(context.Background(), srv.URL, map[string]any{})
	if fault.KindOf(err) != fault.Unreachable {
		t.Errorf("SendEvent = %v, want Unreachable fault", err)
	}
}

func TestAPIURL_MalformedPeer(t *testing.T) {
	c := NewClient("https://relay.alice.org", 0)
	err := c.SendEvent(context.Background(), "not a url", map[string]any{})
	if fault.KindOf(err) != fault.InvalidInput {
		t.Errorf("SendEvent = %v, want InvalidInput fault", err)
	}
}
