package seeder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/resources"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/store"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/persistence"
)

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func header(name, version string) string {
	return "// ==UserScript==\n// @name " + name + "\n// @namespace seed\n// @version " + version + "\n// ==/UserScript==\n"
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.user.js", header("a", "1.0"))
	write(t, dir, "nested/deeper/b.user.js", header("b", "1.0"))
	write(t, dir, "broken.user.js", "no metadata here")
	write(t, dir, "notes.js", header("ignored", "1.0"))

	st := store.New(nil)
	inst := installer.New(st, resources.NewCache(persistence.NewMemory()), nil)
	s := New(inst, dir, nil)

	report, err := s.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Inserted: 2, Failed: 1}, report)

	e, ok := st.Find("b", "seed")
	require.True(t, ok)
	assert.Contains(t, e.Script.SourceURL, "file://")

	// A second pass finds everything already installed.
	report, err = s.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Unchanged: 2, Failed: 1}, report)
	assert.Equal(t, 2, st.Len())
}

func TestSeedMissingDir(t *testing.T) {
	inst := installer.New(store.New(nil), resources.NewCache(persistence.NewMemory()), nil)
	report, err := New(inst, filepath.Join(t.TempDir(), "nope"), nil).Seed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report)
}
