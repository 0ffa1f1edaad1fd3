// Package identity persists the local participant: a generated id that
// survives restarts and the display name last used.
package identity

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/lox/bingoroom/internal/fileutil"
	"github.com/lox/bingoroom/internal/session"
)

var (
	// ErrInvalidIdentity is returned when the identity file holds an id
	// that is not a UUID.
	ErrInvalidIdentity = errors.New("invalid identity file")

	// ErrNameRequired is returned when setting a blank display name.
	ErrNameRequired = errors.New("name is required")
)

// MaxNameLength bounds display names in runes.
const MaxNameLength = 32

type file struct {
	ID   string `toml:"id"`
	Name string `toml:"name,omitempty"`
}

// DefaultPath is identity.toml under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bingoroom", "identity.toml"), nil
}

// Load reads the identity at path, creating and saving a fresh one if the
// file does not exist yet.
func Load(path string) (session.Identity, error) {
	var f file
	_, err := toml.DecodeFile(path, &f)
	switch {
	case errors.Is(err, os.ErrNotExist):
		id := session.Identity{ID: uuid.NewString()}
		if err := Save(path, id); err != nil {
			return session.Identity{}, err
		}
		return id, nil
	case err != nil:
		return session.Identity{}, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
	}

	if _, err := uuid.Parse(f.ID); err != nil {
		return session.Identity{}, fmt.Errorf("%w: id %q", ErrInvalidIdentity, f.ID)
	}
	return session.Identity{ID: f.ID, Name: f.Name}, nil
}

// Save writes id to path atomically.
func Save(path string, id session.Identity) error {
	return fileutil.EncodeFileAtomic(path, 0o600, func(w io.Writer) error {
		return toml.NewEncoder(w).Encode(file{ID: id.ID, Name: id.Name})
	})
}

// NormalizeName trims name and checks it is usable as a display name.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if r := []rune(name); len(r) > MaxNameLength {
		name = string(r[:MaxNameLength])
	}
	return name, nil
}

// SetName loads the identity at path, replaces its display name and saves
// it. The id is kept.
func SetName(path, name string) (session.Identity, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return session.Identity{}, err
	}
	id, err := Load(path)
	if err != nil {
		return session.Identity{}, err
	}
	if id.Name == name {
		return id, nil
	}
	id.Name = name
	if err := Save(path, id); err != nil {
		return session.Identity{}, err
	}
	return id, nil
}
