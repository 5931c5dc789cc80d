package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wabridge.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wabridge")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SessionDBPath returns the whatsmeow session.db path.
func SessionDBPath(name string) string {
	return filepath.Join(Dir(name), "session.db")
}

// BridgeDBPath returns the app-owned bridge.db path.
func BridgeDBPath(name string) string {
	return filepath.Join(Dir(name), "bridge.db")
}

// MediaDir returns the directory where downloaded media payloads are stored.
func MediaDir(name string) string {
	return filepath.Join(Dir(name), "media")
}

// QRPath returns the path of the PNG written for the current auth challenge.
func QRPath(name string) string {
	return filepath.Join(Dir(name), "qr.png")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wabridged.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		MediaDir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
