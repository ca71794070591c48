package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		a, err := New(Config{Dir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, a)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "archive")
		_, err := New(Config{Dir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingDir", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("DirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := New(Config{Dir: file})
		assert.Error(t, err)
	})
}

func TestArchiveListing(t *testing.T) {
	dir := t.TempDir()
	a, err := New(Config{Dir: dir})
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC) }

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><article class="item_def_loop">فیلم Test</article></body></html>`))
	require.NoError(t, err)

	path, err := a.ArchiveListing(context.Background(), 412, doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-03-09", "page-412.html"), path)

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<article class="item_def_loop">فیلم Test</article>`)
}

func TestArchiveListingErrors(t *testing.T) {
	a, err := New(Config{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = a.ArchiveListing(context.Background(), 1, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
	require.NoError(t, err)
	_, err = a.ArchiveListing(ctx, 1, doc)
	assert.ErrorIs(t, err, context.Canceled)
}
