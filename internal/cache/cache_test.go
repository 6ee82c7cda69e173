package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/redact"
	"github.com/redactyl/cfnsanitizer/internal/types"
)

func sampleFinding() types.Finding {
	loc := document.Path{{Key: "Resources", Index: 0}, {Key: "DB", Index: 1}, {Key: "MasterUserPassword", Index: 2}}
	return types.Finding{
		Document:    "t.yaml",
		RuleID:      "rds_master_password",
		Path:        loc.String(),
		Key:         "MasterUserPassword",
		Placeholder: types.Placeholder("rds_master_password"),
		Severity:    types.SevHigh,
		Location:    loc,
		RuleOrder:   6,
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	db, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, db.Entries)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.yaml")
	content := []byte("Resources: {}\n")
	require.NoError(t, os.WriteFile(out, content, 0o644))

	db := New()
	db.Put("t.yaml", NewEntry("abc", out, content, []types.Finding{sampleFinding()}, redact.Stats{Redacted: 1}))
	require.NoError(t, db.Save(dir))
	_, err := os.Stat(filepath.Join(dir, "."+FileName))
	require.NoError(t, err)

	got, err := Load(dir)
	require.NoError(t, err)
	e, ok := got.Lookup("t.yaml", "abc")
	require.True(t, ok)
	assert.Equal(t, redact.Stats{Redacted: 1}, e.Stats)
	assert.Equal(t, []types.Finding{sampleFinding()}, e.Restore())
}

func TestLookupMisses(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.yaml")
	content := []byte("a: b\n")
	require.NoError(t, os.WriteFile(out, content, 0o644))

	db := New()
	db.Put("t.yaml", NewEntry("abc", out, content, nil, redact.Stats{}))

	_, ok := db.Lookup("t.yaml", "other")
	assert.False(t, ok, "hash changed")
	_, ok = db.Lookup("u.yaml", "abc")
	assert.False(t, ok, "unknown name")

	require.NoError(t, os.WriteFile(out, []byte("a: edited\n"), 0o644))
	_, ok = db.Lookup("t.yaml", "abc")
	assert.False(t, ok, "output modified")

	require.NoError(t, os.Remove(out))
	_, ok = db.Lookup("t.yaml", "abc")
	assert.False(t, ok, "output removed")
}

func TestCacheUnderGitDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	assert.Equal(t, filepath.Join(dir, ".git", FileName), Path(dir))
}

func TestCorruptCacheIsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("{not json"), 0o600))
	db, err := Load(dir)
	assert.Error(t, err)
	assert.Empty(t, db.Entries)
}

func TestOlderCacheVersionIsEmpty(t *testing.T) {
	dir := t.TempDir()
	old := `{"version":1,"entries":{"t.yaml":{"hash":"abc","output":"out/t.yaml"}}}`
	require.NoError(t, os.WriteFile(Path(dir), []byte(old), 0o600))
	db, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, version, db.Version)
	assert.Empty(t, db.Entries)
}

func TestKeyDependsOnSalt(t *testing.T) {
	assert.Len(t, Key([]byte("x"), ""), 16)
	assert.NotEqual(t, Key([]byte("x"), "a"), Key([]byte("x"), "b"))
	assert.Equal(t, Key([]byte("x"), "a"), Key([]byte("x"), "a"))
}
