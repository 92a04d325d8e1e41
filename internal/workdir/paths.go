package workdir

import (
	"os"
	"path/filepath"
)

// EnvHome overrides the default data directory when set.
const EnvHome = "LEGALFLOW_HOME"

// Resolve determines the relay data directory using precedence:
// 1. flagOverride (--data-dir flag)
// 2. LEGALFLOW_HOME environment variable
// 3. ~/.legalflow
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv(EnvHome); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".legalflow")
}

// DBPath returns the relay-owned relay.db path.
func DBPath(dir string) string {
	return filepath.Join(dir, "relay.db")
}

// SocketPath returns the daemon's UDS socket path.
func SocketPath(dir string) string {
	return filepath.Join(dir, "relayd.sock")
}

// LockPath returns the lock file path.
func LockPath(dir string) string {
	return filepath.Join(dir, "LOCK")
}

// ConfigPath returns the config file path.
func ConfigPath(dir string) string {
	return filepath.Join(dir, "config.toml")
}

// LogDir returns the log directory.
func LogDir(dir string) string {
	return filepath.Join(dir, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(dir string) string {
	return filepath.Join(LogDir(dir), "relayd.log")
}

// EnsureDir creates the data directory tree with proper permissions.
func EnsureDir(dir string) error {
	dirs := []string{
		dir,
		LogDir(dir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
