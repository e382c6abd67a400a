// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flowconfig

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flerr "github.com/ashoksr/vrflow/internal/errors"
)

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate_RejectsBadPrimaryEntries(t *testing.T) {
	cfg := Default()
	cfg.PrimaryEntries = 10 // not a multiple of 4
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, flerr.KindValidation, flerr.GetKind(err))
}

func TestValidate_RejectsZeroOverflow(t *testing.T) {
	cfg := Default()
	cfg.OverflowEntries = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroMaxHold(t *testing.T) {
	cfg := Default()
	cfg.MaxHold = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroNumCPU(t *testing.T) {
	cfg := Default()
	cfg.NumCPU = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_OverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("primary_entries: 1024\nmax_hold: 16\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.PrimaryEntries)
	assert.Equal(t, uint32(16), cfg.MaxHold)
	assert.Equal(t, DefaultOverflowEntries, cfg.OverflowEntries)
}

func TestLoad_RejectsInvalidOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("primary_entries: 13\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, flerr.KindNotFound, flerr.GetKind(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
