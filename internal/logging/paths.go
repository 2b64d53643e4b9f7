package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.onechelp/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".onechelp", "logs")
	}
	return filepath.Join(home, ".onechelp", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// EnsureLogDir creates the directory for the given log path if it does
// not exist.
func EnsureLogDir(logPath string) error {
	return os.MkdirAll(filepath.Dir(logPath), 0o755)
}
