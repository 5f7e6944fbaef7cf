package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wp-debug-viewer/backend/internal/models"
	"github.com/wp-debug-viewer/backend/internal/storage"
	"github.com/wp-debug-viewer/backend/internal/testutil"
)

var backupName = regexp.MustCompile(`^wp-config-backup-\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}\.php$`)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start.Add(-time.Second)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func writeSource(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "wp-config.php")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newStore(t *testing.T, fsys storage.FS, dir string, max int, protect bool) *storage.BackupStore {
	t.Helper()
	store, err := storage.NewBackupStore(fsys, storage.BackupOptions{
		Dir:        dir,
		Prefix:     "wp-config-backup",
		Extension:  "php",
		MaxBackups: max,
		Protect:    protect,
		Now:        stepClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}, nil)
	require.NoError(t, err)
	return store
}

func TestNewBackupStore(t *testing.T) {
	t.Run("rejects invalid options", func(t *testing.T) {
		_, err := storage.NewBackupStore(nil, storage.BackupOptions{Prefix: "p", MaxBackups: 1}, nil)
		assert.Error(t, err)

		_, err = storage.NewBackupStore(nil, storage.BackupOptions{Dir: "d", MaxBackups: 1}, nil)
		assert.Error(t, err)

		_, err = storage.NewBackupStore(nil, storage.BackupOptions{Dir: "d", Prefix: "p"}, nil)
		assert.Error(t, err)
	})

	t.Run("does not create directory eagerly", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "backups")
		newStore(t, storage.OSFS{}, dir, 5, true)

		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})
}

func TestBackupStore_Backup(t *testing.T) {
	t.Run("copies source byte for byte", func(t *testing.T) {
		root := t.TempDir()
		content := "<?php\r\ndefine('WP_DEBUG', false);\n\x00tail"
		src := writeSource(t, root, content)
		store := newStore(t, storage.OSFS{}, filepath.Join(root, "backups"), 5, false)

		info, err := store.Backup(src)
		require.NoError(t, err)

		assert.Regexp(t, backupName, info.Name)
		assert.Equal(t, "wp-config-backup-2024-03-01-12-00-00.php", info.Name)
		assert.Equal(t, int64(len(content)), info.Size)

		data, err := os.ReadFile(info.Path)
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	})

	t.Run("protects a newly created directory", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		dir := filepath.Join(root, "nested", "backups")
		store := newStore(t, storage.OSFS{}, dir, 5, true)

		_, err := store.Backup(src)
		require.NoError(t, err)

		htaccess, err := os.ReadFile(filepath.Join(dir, ".htaccess"))
		require.NoError(t, err)
		assert.Equal(t, "deny from all", string(htaccess))

		index, err := os.ReadFile(filepath.Join(dir, "index.php"))
		require.NoError(t, err)
		assert.Equal(t, "<?php // Silence is golden", string(index))
	})

	t.Run("placeholder failures are not fatal", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		dir := filepath.Join(root, "backups")
		fsys := testutil.NewMockFS()
		fsys.FailWrite(filepath.Join(dir, ".htaccess"), errors.New("read-only"))
		store := newStore(t, fsys, dir, 5, true)

		_, err := store.Backup(src)
		assert.NoError(t, err)
	})

	t.Run("rotates oldest backups out", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		store := newStore(t, storage.OSFS{}, filepath.Join(root, "backups"), 5, true)

		var names []string
		for i := 0; i < 8; i++ {
			info, err := store.Backup(src)
			require.NoError(t, err)
			names = append(names, info.Name)
		}

		backups, err := store.List()
		require.NoError(t, err)
		require.Len(t, backups, 5)

		// Newest first, and only the last five survive.
		for i, b := range backups {
			assert.Equal(t, names[len(names)-1-i], b.Name)
		}
	})

	t.Run("ignores unrelated files", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		dir := filepath.Join(root, "backups")
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "wp-config-backup-latest.php"), []byte("keep"), 0644))
		store := newStore(t, storage.OSFS{}, dir, 1, false)

		for i := 0; i < 3; i++ {
			_, err := store.Backup(src)
			require.NoError(t, err)
		}

		assert.FileExists(t, filepath.Join(dir, "notes.txt"))
		assert.FileExists(t, filepath.Join(dir, "wp-config-backup-latest.php"))
		backups, err := store.List()
		require.NoError(t, err)
		assert.Len(t, backups, 1)
	})
}

func TestBackupStore_Failures(t *testing.T) {
	t.Run("directory cannot be created", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		fsys := testutil.NewMockFS()
		fsys.FailMkdir(os.ErrPermission)
		store := newStore(t, fsys, filepath.Join(root, "backups"), 5, false)

		_, err := store.Backup(src)
		assert.ErrorIs(t, err, models.ErrBackup)
		assert.ErrorIs(t, err, os.ErrPermission)
	})

	t.Run("backup path is a file", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		dir := filepath.Join(root, "backups")
		require.NoError(t, os.WriteFile(dir, []byte("x"), 0644))
		store := newStore(t, storage.OSFS{}, dir, 5, false)

		_, err := store.Backup(src)
		assert.ErrorIs(t, err, models.ErrBackup)
	})

	t.Run("source cannot be read", func(t *testing.T) {
		root := t.TempDir()
		store := newStore(t, storage.OSFS{}, filepath.Join(root, "backups"), 5, false)

		_, err := store.Backup(filepath.Join(root, "missing.php"))
		assert.ErrorIs(t, err, models.ErrBackup)
	})

	t.Run("write failure leaves no backup", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		dir := filepath.Join(root, "backups")
		fsys := testutil.NewMockFS()
		fsys.FailWrite(dir, errors.New("disk full"))
		store := newStore(t, fsys, dir, 5, false)

		_, err := store.Backup(src)
		assert.ErrorIs(t, err, models.ErrBackup)

		backups, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, backups)
	})

	t.Run("short write is removed", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php define('WP_DEBUG', true);")
		dir := filepath.Join(root, "backups")
		fsys := testutil.NewMockFS()
		fsys.ShortWrite(dir)
		store := newStore(t, fsys, dir, 5, false)

		_, err := store.Backup(src)
		assert.ErrorIs(t, err, models.ErrBackup)

		backups, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, backups)
	})

	t.Run("unverifiable backup is rejected", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		dir := filepath.Join(root, "backups")
		fsys := testutil.NewMockFS()
		fsys.DropWrites(dir)
		store := newStore(t, fsys, dir, 5, false)

		_, err := store.Backup(src)
		assert.ErrorIs(t, err, models.ErrBackup)
		assert.Contains(t, err.Error(), "verification")
	})

	t.Run("eviction failure aborts", func(t *testing.T) {
		root := t.TempDir()
		src := writeSource(t, root, "<?php")
		dir := filepath.Join(root, "backups")
		fsys := testutil.NewMockFS()
		store := newStore(t, fsys, dir, 1, false)

		_, err := store.Backup(src)
		require.NoError(t, err)

		fsys.FailRemove(os.ErrPermission)
		_, err = store.Backup(src)
		assert.ErrorIs(t, err, models.ErrBackup)
	})
}

func TestBackupStore_List(t *testing.T) {
	t.Run("missing directory is empty", func(t *testing.T) {
		store := newStore(t, storage.OSFS{}, filepath.Join(t.TempDir(), "none"), 5, false)

		backups, err := store.List()
		require.NoError(t, err)
		assert.Empty(t, backups)
	})
}

func TestBackupStore_BoundProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("backup count never exceeds max_backups", prop.ForAll(
		func(max, runs int) bool {
			root := t.TempDir()
			src := writeSource(t, root, "<?php")
			store := newStore(t, storage.OSFS{}, filepath.Join(root, "backups"), max, true)

			for i := 0; i < runs; i++ {
				if _, err := store.Backup(src); err != nil {
					return false
				}
				backups, err := store.List()
				if err != nil || len(backups) > max {
					return false
				}
			}
			backups, err := store.List()
			if err != nil {
				return false
			}
			want := runs
			if want > max {
				want = max
			}
			return len(backups) == want
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 12),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
