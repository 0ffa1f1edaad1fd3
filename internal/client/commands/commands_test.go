package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingoroom/internal/identity"
)

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bingoroom.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
client {
  url  = "http://example.com:9000"
  name = "Ann"
}
`), 0o644))

	cfg, err := LoadConfig(&GlobalFlags{Config: cfgPath, Name: "Bob", LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "http://example.com:9000", cfg.Client.URL)
	assert.Equal(t, "Bob", cfg.Client.Name)
	assert.Equal(t, "debug", cfg.Client.LogLevel)

	_, err = LoadConfig(&GlobalFlags{Config: cfgPath, LogLevel: "chatty"})
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestResolveIdentityPrompts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	cfg, err := LoadConfig(&GlobalFlags{Config: filepath.Join(t.TempDir(), "none.hcl"), Identity: path})
	require.NoError(t, err)

	var out bytes.Buffer
	id, err := resolveIdentity(cfg, strings.NewReader("  Ann \n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "Ann", id.Name)
	assert.Contains(t, out.String(), "Enter your name")

	// The saved name is reused without prompting.
	out.Reset()
	again, err := resolveIdentity(cfg, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Empty(t, out.String())

	// A configured name replaces the saved one but keeps the id.
	cfg.Client.Name = "Annie"
	renamed, err := resolveIdentity(cfg, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, id.ID, renamed.ID)
	assert.Equal(t, "Annie", renamed.Name)
}

func TestResolveIdentityRequiresName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	cfg, err := LoadConfig(&GlobalFlags{Config: filepath.Join(t.TempDir(), "none.hcl"), Identity: path})
	require.NoError(t, err)

	_, err = resolveIdentity(cfg, strings.NewReader("\n"), &bytes.Buffer{})
	assert.ErrorIs(t, err, identity.ErrNameRequired)
}

func TestNameCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	flags := &GlobalFlags{Config: filepath.Join(t.TempDir(), "none.hcl"), Identity: path}

	require.NoError(t, (&NameCommand{Name: "Cleo"}).Run(flags))
	id, err := identity.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Cleo", id.Name)

	assert.ErrorIs(t, (&NameCommand{Name: "  "}).Run(flags), identity.ErrNameRequired)
}
