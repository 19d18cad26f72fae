package storage_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"budgetflow/internal/apperrors"
	"budgetflow/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*storage.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.New(root)
	require.NoError(t, err)
	return store, root
}

func TestSaveAndRead(t *testing.T) {
	store, root := newStore(t)

	ref, err := store.Save(storage.AreaDocuments, "invoice.pdf", strings.NewReader("pdf bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ref, storage.AreaDocuments+"/"))
	assert.True(t, strings.HasSuffix(ref, "_invoice.pdf"))
	assert.True(t, store.Exists(ref))

	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(ref)))
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(content))
}

func TestSaveTraversalStaysInsideRoot(t *testing.T) {
	store, root := newStore(t)

	for _, name := range []string{
		"../../etc/passwd",
		"..\\..\\windows\\system32\\cfg.pdf",
		"/etc/shadow",
		"a/b/../c.pdf",
	} {
		ref, err := store.Save(storage.AreaDocuments, name, strings.NewReader("x"))
		require.NoError(t, err, "name %q", name)

		assert.NotContains(t, ref, "..")
		full, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(ref)))
		require.NoError(t, err)
		rootAbs, err := filepath.Abs(root)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(full, rootAbs+string(filepath.Separator)),
			"ref %q resolved outside the root", ref)
		assert.True(t, store.Exists(ref))
	}
}

func TestSaveRejectsUnusableNames(t *testing.T) {
	store, _ := newStore(t)

	for _, name := range []string{"", ".", "..", "///", "...."} {
		_, err := store.Save(storage.AreaDocuments, name, strings.NewReader("x"))
		assert.ErrorIs(t, err, apperrors.ErrValidation, "name %q", name)
	}
}

func TestSaveDuplicateNamesNeverCollide(t *testing.T) {
	store, _ := newStore(t)

	first, err := store.Save(storage.AreaTransferProofs, "proof.pdf", strings.NewReader("first"))
	require.NoError(t, err)
	second, err := store.Save(storage.AreaTransferProofs, "proof.pdf", strings.NewReader("second"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, store.Exists(first))
	assert.True(t, store.Exists(second))
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, _ := newStore(t)

	ref, err := store.Save(storage.AreaDocuments, "doc.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(ref))
	assert.False(t, store.Exists(ref))
	// Absence is not an error
	assert.NoError(t, store.Remove(ref))
	assert.NoError(t, store.Remove("documents/never-existed.pdf"))
}

func TestRemoveRejectsEscapingRefs(t *testing.T) {
	store, _ := newStore(t)

	for _, ref := range []string{"../outside.txt", "/etc/passwd", "..", "documents/../../x"} {
		assert.ErrorIs(t, store.Remove(ref), apperrors.ErrValidation, "ref %q", ref)
	}
}
