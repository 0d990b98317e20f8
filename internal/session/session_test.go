package session

import (
	"testing"
	"time"

	"github.com/use-agent/workflowrunner/internal/browserdriver"
)

// forceFileBasedStorage short-circuits the keyring probe so tests run
// identically in CI and on a developer's keyring-enabled machine.
func forceFileBasedStorage(t *testing.T) {
	t.Helper()
	result := true
	fileBasedStorageCache = &result
	t.Cleanup(func() { fileBasedStorageCache = nil })
	t.Setenv("HOME", t.TempDir())
}

func TestSaveLoadDelete(t *testing.T) {
	forceFileBasedStorage(t)

	snap := &Snapshot{
		Name: "acct1",
		URL:  "https://example.com/dashboard",
		Cookies: []browserdriver.Cookie{
			{Name: "session", Value: "abc123", Domain: "example.com"},
		},
		CreatedAt: time.Now(),
	}

	if err := Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load("acct1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.URL != snap.URL || len(loaded.Cookies) != 1 || loaded.Cookies[0].Value != "abc123" {
		t.Errorf("unexpected snapshot: %+v", loaded)
	}

	if err := Delete("acct1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := Load("acct1"); err == nil {
		t.Error("expected error loading deleted session")
	}
}

func TestLoadRejectsExpiredSession(t *testing.T) {
	forceFileBasedStorage(t)

	snap := &Snapshot{
		Name:      "expired",
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load("expired"); err == nil {
		t.Error("expected error loading expired session")
	}
}

func TestListReturnsSavedNames(t *testing.T) {
	forceFileBasedStorage(t)

	if err := Save(&Snapshot{Name: "one", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := Save(&Snapshot{Name: "two", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	names, err := List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["one"] || !seen["two"] {
		t.Errorf("expected both names in %v", names)
	}
}

func TestSaveRejectsEmptyName(t *testing.T) {
	forceFileBasedStorage(t)

	if err := Save(&Snapshot{Name: ""}); err == nil {
		t.Error("expected error for empty session name")
	}
}
