package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgelink/relay/internal/keys"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	cfg := fmt.Sprintf(`url: https://relay.alice.org
forge:
  kind: gitea
  host: https://git.example.org
  username: relay-admin
database:
  backend: sqlite
  path: %s
keys:
  private_key: %s
`, filepath.Join(dir, "relay.db"), kp.Private())

	path := filepath.Join(dir, "forgelink.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDBInitCmd(t *testing.T) {
	path := writeTestConfig(t)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"db", "init", "--config", path})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("db init failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Migrated all tables") {
		t.Errorf("unexpected output: %s", out)
	}
	if !strings.Contains(out, "https://relay.alice.org") {
		t.Errorf("expected seeded interface in output, got: %s", out)
	}

	// Idempotent.
	cmd = newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"db", "init", "--config", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("second db init failed: %v", err)
	}
}

func TestDBInitCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"db", "init", "--config", filepath.Join(t.TempDir(), "nope.yaml")})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestKeygenCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"keygen"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	out := buf.String()
	var private, public string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			t.Fatalf("unexpected keygen line %q", line)
		}
		switch fields[0] {
		case "private:":
			private = fields[1]
		case "public:":
			public = fields[1]
		}
	}
	kp, err := keys.Load(private)
	if err != nil {
		t.Fatalf("generated private key does not load: %v", err)
	}
	if kp.Public() != public {
		t.Errorf("public key = %q, want %q", kp.Public(), public)
	}
}
