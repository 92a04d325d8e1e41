package workdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(EnvHome, "/var/lib/legalflow")

	if got := Resolve("/tmp/override"); got != "/tmp/override" {
		t.Errorf("Resolve(flag) = %q, want /tmp/override", got)
	}
	if got := Resolve(""); got != "/var/lib/legalflow" {
		t.Errorf("Resolve(env) = %q, want /var/lib/legalflow", got)
	}
}

func TestResolveDefault(t *testing.T) {
	t.Setenv(EnvHome, "")

	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".legalflow")
	if got := Resolve(""); got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestPaths(t *testing.T) {
	dir := "/data/relay"
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"db", DBPath(dir), "/data/relay/relay.db"},
		{"socket", SocketPath(dir), "/data/relay/relayd.sock"},
		{"lock", LockPath(dir), "/data/relay/LOCK"},
		{"config", ConfigPath(dir), "/data/relay/config.toml"},
		{"log", LogPath(dir), "/data/relay/logs/relayd.log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "relay")

	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}

	info, err := os.Stat(LogDir(dir))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
}
