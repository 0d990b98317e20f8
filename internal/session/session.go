// Package session persists a run's cookie jar across process invocations,
// so a later `run --session name` can resume an authenticated page state
// without replaying a login flow. Storage prefers the OS keyring and falls
// back to a file under the user's home directory in environments where
// the keyring is unavailable (Codespaces, CI).
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/use-agent/workflowrunner/internal/browserdriver"
)

const (
	// KeyringService is the service name used for keyring storage.
	KeyringService = "workflowrunner"
	// FallbackDir is the directory for file-based session storage.
	FallbackDir = ".workflowrunner/sessions"
)

var fileBasedStorageCache *bool

func useFileBasedStorage() bool {
	if fileBasedStorageCache != nil {
		return *fileBasedStorageCache
	}

	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		result := true
		fileBasedStorageCache = &result
		return true
	}

	testKey := "_test_keyring_access_"
	err := keyring.Set(KeyringService, testKey, "test")
	result := err != nil
	fileBasedStorageCache = &result

	if !result {
		keyring.Delete(KeyringService, testKey)
	}

	return result
}

func getSessionDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, FallbackDir)
	return dir, os.MkdirAll(dir, 0700)
}

func getSessionPath(name string) (string, error) {
	dir, err := getSessionDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".json"), nil
}

// Snapshot is a named, persisted cookie jar captured at the end of a run.
type Snapshot struct {
	Name      string                 `json:"name"`
	URL       string                 `json:"url"`
	Cookies   []browserdriver.Cookie `json:"cookies"`
	CreatedAt time.Time              `json:"createdAt"`
	ExpiresAt time.Time              `json:"expiresAt,omitempty"`
}

// Save persists snap to the keyring, or a file when the keyring is
// unavailable.
func Save(snap *Snapshot) error {
	if snap.Name == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if useFileBasedStorage() {
		path, err := getSessionPath(snap.Name)
		if err != nil {
			return fmt.Errorf("failed to resolve session path: %w", err)
		}
		return os.WriteFile(path, data, 0600)
	}

	if err := keyring.Set(KeyringService, snap.Name, string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return nil
}

// Load reads a previously saved snapshot by name, rejecting one past its
// ExpiresAt.
func Load(name string) (*Snapshot, error) {
	if name == "" {
		return nil, fmt.Errorf("session name cannot be empty")
	}

	var data string
	var err error

	if useFileBasedStorage() {
		path, perr := getSessionPath(name)
		if perr != nil {
			return nil, fmt.Errorf("failed to resolve session path: %w", perr)
		}
		raw, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, fmt.Errorf("failed to load session file: %w", rerr)
		}
		data = string(raw)
	} else {
		data, err = keyring.Get(KeyringService, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load from keyring: %w", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to deserialize session: %w", err)
	}

	if !snap.ExpiresAt.IsZero() && time.Now().After(snap.ExpiresAt) {
		return nil, fmt.Errorf("session %q expired", name)
	}

	return &snap, nil
}

// Delete removes a saved session.
func Delete(name string) error {
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	if useFileBasedStorage() {
		path, err := getSessionPath(name)
		if err != nil {
			return fmt.Errorf("failed to resolve session path: %w", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete session file: %w", err)
		}
		return nil
	}

	if err := keyring.Delete(KeyringService, name); err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// List returns every saved session name.
func List() ([]string, error) {
	if useFileBasedStorage() {
		dir, err := getSessionDir()
		if err != nil {
			return nil, err
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return []string{}, nil
			}
			return nil, err
		}

		var names []string
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
				names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
			}
		}
		return names, nil
	}

	manifestData, err := keyring.Get(KeyringService, "_manifest")
	if err != nil {
		return []string{}, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(manifestData), &names); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", err)
	}
	return names, nil
}

// SaveWithManifest saves snap and, for keyring-backed storage, records its
// name in the manifest so List can enumerate it (file-based storage lists
// the directory directly and needs no manifest).
func SaveWithManifest(snap *Snapshot) error {
	if err := Save(snap); err != nil {
		return err
	}
	if useFileBasedStorage() {
		return nil
	}
	return updateManifest(snap.Name, true)
}

// DeleteWithManifest deletes a session and keeps the manifest in sync.
func DeleteWithManifest(name string) error {
	if err := Delete(name); err != nil {
		return err
	}
	if useFileBasedStorage() {
		return nil
	}
	return updateManifest(name, false)
}

func updateManifest(name string, add bool) error {
	names, _ := List()

	if add {
		for _, n := range names {
			if n == name {
				return persistManifest(names)
			}
		}
		names = append(names, name)
	} else {
		kept := names[:0]
		for _, n := range names {
			if n != name {
				kept = append(kept, n)
			}
		}
		names = kept
	}

	return persistManifest(names)
}

func persistManifest(names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return keyring.Set(KeyringService, "_manifest", string(data))
}
