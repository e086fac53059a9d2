package secret

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"tsquare/auth"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	if _, err := s.Load(); !errors.Is(err, ErrNotSet) {
		t.Fatalf("first Load() err = %v, want ErrNotSet", err)
	}
	want := auth.Credentials{Username: "gburdell3", Password: "hunter2"}
	if err := s.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil || got != want {
		t.Fatalf("Load() = %+v, %v", got, err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNoValue) {
		t.Fatalf("Load() after Clear err = %v, want ErrNoValue", err)
	}
}

func TestMemory(t *testing.T) {
	testStore(t, &Memory{})
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	testStore(t, NewFile(path))

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode %v", info.Mode().Perm())
	}
}

func TestFileRejectsIncomplete(t *testing.T) {
	s := NewFile(filepath.Join(t.TempDir(), "c.json"))
	if err := s.Save(auth.Credentials{Username: "only"}); err == nil {
		t.Error("saved credentials without a password")
	}
}
