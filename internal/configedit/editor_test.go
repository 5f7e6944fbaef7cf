package configedit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
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

const sampleConfig = `<?php
define( 'DB_NAME', 'wordpress' );
define( 'DB_USER', 'root' );

$table_prefix = 'wp_';

define( 'WP_DEBUG', false );

/* That's all, stop editing! Happy blogging. */

require_once ABSPATH . 'wp-settings.php';
`

func assign(pairs ...any) []models.ConstantAssignment {
	out := make([]models.ConstantAssignment, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.ConstantAssignment{Name: pairs[i].(string), Value: pairs[i+1].(bool)})
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		desired  []models.ConstantAssignment
		want     string
		updated  int
		inserted int
	}{
		{
			name:    "matching value is left alone",
			input:   sampleConfig,
			desired: assign("WP_DEBUG", false),
			want:    sampleConfig,
		},
		{
			name:    "literal comparison ignores case",
			input:   "<?php\ndefine('WP_DEBUG', FALSE);\n",
			desired: assign("WP_DEBUG", false),
			want:    "<?php\ndefine('WP_DEBUG', FALSE);\n",
		},
		{
			name:    "rewrites value in place keeping spacing",
			input:   sampleConfig,
			desired: assign("WP_DEBUG", true),
			want:    strings.Replace(sampleConfig, "define( 'WP_DEBUG', false );", "define( 'WP_DEBUG', true );", 1),
			updated: 1,
		},
		{
			name:    "double quoted name",
			input:   "<?php\ndefine(\"WP_DEBUG\",false);\n",
			desired: assign("WP_DEBUG", true),
			want:    "<?php\ndefine(\"WP_DEBUG\",true);\n",
			updated: 1,
		},
		{
			name:    "non-boolean expression is replaced",
			input:   "<?php\ndefine('WP_DEBUG', getenv('WP_DEBUG'));\n",
			desired: assign("WP_DEBUG", true),
			want:    "<?php\ndefine('WP_DEBUG', true);\n",
			updated: 1,
		},
		{
			name:    "only the first definition is edited",
			input:   "<?php\ndefine('WP_DEBUG', false);\ndefine('WP_DEBUG', false);\n",
			desired: assign("WP_DEBUG", true),
			want:    "<?php\ndefine('WP_DEBUG', true);\ndefine('WP_DEBUG', false);\n",
			updated: 1,
		},
		{
			name:    "prefix names do not match",
			input:   "<?php\ndefine('WP_DEBUG_LOG', true);\n",
			desired: assign("WP_DEBUG", true),
			want: "<?php\ndefine('WP_DEBUG_LOG', true);\n\n" +
				"/* Added by Debug Log Admin Viewer */\ndefine('WP_DEBUG', true);\n",
			inserted: 1,
		},
		{
			name:    "new section goes directly before the sentinel",
			input:   sampleConfig,
			desired: assign("WP_DEBUG", true, "WP_DEBUG_LOG", true),
			want: `<?php
define( 'DB_NAME', 'wordpress' );
define( 'DB_USER', 'root' );

$table_prefix = 'wp_';

define( 'WP_DEBUG', true );

/* Added by Debug Log Admin Viewer */
define('WP_DEBUG_LOG', true);

/* That's all, stop editing! Happy blogging. */

require_once ABSPATH . 'wp-settings.php';
`,
			updated:  1,
			inserted: 1,
		},
		{
			name: "merges into existing section",
			input: `<?php
define( 'WP_DEBUG', false );

/* Added by Debug Log Admin Viewer */
define('WP_DEBUG_LOG', true);



/* That's all, stop editing! Happy blogging. */
`,
			desired: assign("WP_DEBUG_DISPLAY", false),
			want: `<?php
define( 'WP_DEBUG', false );

/* Added by Debug Log Admin Viewer */
define('WP_DEBUG_LOG', true);
define('WP_DEBUG_DISPLAY', false);

/* That's all, stop editing! Happy blogging. */
`,
			inserted: 1,
		},
		{
			name: "section ends at the next comment",
			input: `<?php
/* Added by Debug Log Admin Viewer */
define('WP_DEBUG', true);

/* Custom settings */
define('FOO', 1);

/* That's all, stop editing! Happy blogging. */
`,
			desired: assign("WP_DEBUG_LOG", true),
			want: `<?php
/* Added by Debug Log Admin Viewer */
define('WP_DEBUG', true);
define('WP_DEBUG_LOG', true);

/* Custom settings */
define('FOO', 1);

/* That's all, stop editing! Happy blogging. */
`,
			inserted: 1,
		},
		{
			name:    "appends at end without sentinel",
			input:   "<?php\ndefine('DB_NAME', 'x');\n",
			desired: assign("WP_DEBUG", true),
			want: "<?php\ndefine('DB_NAME', 'x');\n\n" +
				"/* Added by Debug Log Admin Viewer */\ndefine('WP_DEBUG', true);\n",
			inserted: 1,
		},
		{
			name:    "stays before a closing tag",
			input:   "<?php\ndefine('DB_NAME', 'x');\n?>\n",
			desired: assign("WP_DEBUG", true),
			want: "<?php\ndefine('DB_NAME', 'x');\n\n" +
				"/* Added by Debug Log Admin Viewer */\ndefine('WP_DEBUG', true);\n?>\n",
			inserted: 1,
		},
		{
			name: "section without sentinel ends at its last define",
			input: "<?php\n/* Added by Debug Log Admin Viewer */\ndefine('WP_DEBUG', true);\n\n" +
				"$a = 1;\n\n$b = 2;\n",
			desired: assign("WP_DEBUG_LOG", true),
			want: "<?php\n/* Added by Debug Log Admin Viewer */\ndefine('WP_DEBUG', true);\n" +
				"define('WP_DEBUG_LOG', true);\n\n$a = 1;\n\n$b = 2;\n",
			inserted: 1,
		},
		{
			name:    "nested calls are rewritten whole",
			input:   "<?php\ndefine('WP_DEBUG', filter_var(getenv('WP_DEBUG'), FILTER_VALIDATE_BOOLEAN));\n",
			desired: assign("WP_DEBUG", true),
			want:    "<?php\ndefine('WP_DEBUG', true);\n",
			updated: 1,
		},
		{
			name:    "quoted parentheses do not end the value",
			input:   "<?php\ndefine('WP_DEBUG', getenv('A)') === 'on');\n",
			desired: assign("WP_DEBUG", false),
			want:    "<?php\ndefine('WP_DEBUG', false);\n",
			updated: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edit := Apply(tt.input, tt.desired, DefaultOptions())

			assert.Equal(t, tt.want, edit.Text)
			assert.Len(t, edit.Updated, tt.updated)
			assert.Len(t, edit.Inserted, tt.inserted)
			assert.Equal(t, tt.updated+tt.inserted > 0, edit.Changed())
		})
	}
}

func TestApply_CRLF(t *testing.T) {
	input := strings.ReplaceAll(sampleConfig, "\n", "\r\n")

	edit := Apply(input, assign("WP_DEBUG", true, "WP_DEBUG_LOG", false), DefaultOptions())

	require.True(t, edit.Changed())
	assert.Equal(t, strings.Count(edit.Text, "\n"), strings.Count(edit.Text, "\r\n"))
	assert.Contains(t, edit.Text, "define('WP_DEBUG_LOG', false);\r\n\r\n/* That's all")
}

func TestFindConstant(t *testing.T) {
	d, ok := FindConstant("define ( 'WP_DEBUG' ,  True ) ;", "WP_DEBUG")
	require.True(t, ok)
	assert.True(t, d.Boolean)
	assert.True(t, d.Value)
	assert.Equal(t, "True", d.Literal)

	d, ok = FindConstant("define('WP_DEBUG', 1);", "WP_DEBUG")
	require.True(t, ok)
	assert.False(t, d.Boolean)
	assert.Equal(t, "1", d.Literal)

	_, ok = FindConstant("if (!defined('WP_DEBUG')) {}", "WP_DEBUG")
	assert.False(t, ok)

	_, ok = FindConstant("define('WP.DEBUG', true);", "WP_DEBUG")
	assert.False(t, ok)
}

func TestFindConstant_Nested(t *testing.T) {
	text := "define('WP_DEBUG', filter_var(getenv('WP_DEBUG'), FILTER_VALIDATE_BOOLEAN));"
	d, ok := FindConstant(text, "WP_DEBUG")
	require.True(t, ok)
	assert.False(t, d.Boolean)
	assert.Equal(t, "filter_var(getenv('WP_DEBUG'), FILTER_VALIDATE_BOOLEAN)", d.Literal)

	for _, text := range []string{
		"define('WP_DEBUG', getenv('X');",
		"define('WP_DEBUG', );",
		"define('WP_DEBUG', true, true);",
		"define('WP_DEBUG', 'unterminated);",
	} {
		_, ok, malformed := findConstant(text, "WP_DEBUG")
		assert.False(t, ok, text)
		assert.True(t, malformed, text)
	}
}

func TestApply_UnparsedDefinition(t *testing.T) {
	input := "<?php\ndefine('WP_DEBUG', getenv('X');\n"

	edit := Apply(input, assign("WP_DEBUG", true, "WP_DEBUG_LOG", true), DefaultOptions())

	assert.Equal(t, []string{"WP_DEBUG"}, edit.Unparsed)
	assert.Equal(t, assign("WP_DEBUG_LOG", true), edit.Inserted)
	assert.Equal(t, 1, strings.Count(edit.Text, "'WP_DEBUG'"))
}

func TestReadConstants(t *testing.T) {
	text := "define('WP_DEBUG', true);\ndefine('WP_DEBUG_LOG', 'yes');\n"

	got := ReadConstants(text, []string{"wp_debug", "WP_DEBUG_LOG", "WP_DEBUG_DISPLAY"})

	assert.Equal(t, map[string]bool{"WP_DEBUG": true}, got)
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	fs      storage.FS
	path    string
	backups *storage.BackupStore
	editor  *Editor
}

func newFixture(t *testing.T, fsys storage.FS, content string) *fixture {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "wp-config.php")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	backups, err := storage.NewBackupStore(fsys, storage.BackupOptions{
		Dir:        filepath.Join(root, "backups"),
		Prefix:     "wp-config-backup",
		Extension:  "php",
		MaxBackups: 5,
		Protect:    true,
		Now:        stepClock(),
	}, nil)
	require.NoError(t, err)

	editor, err := NewEditor(fsys, backups, DefaultOptions(), nil)
	require.NoError(t, err)

	return &fixture{fs: fsys, path: path, backups: backups, editor: editor}
}

func (f *fixture) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	return string(data)
}

func TestNewEditor(t *testing.T) {
	_, err := NewEditor(nil, nil, DefaultOptions(), nil)
	assert.Error(t, err)

	backups, err := storage.NewBackupStore(nil, storage.BackupOptions{Dir: t.TempDir(), Prefix: "b", MaxBackups: 1}, nil)
	require.NoError(t, err)
	_, err = NewEditor(nil, backups, Options{}, nil)
	assert.Error(t, err)
}

func TestEditor_UpdateConstants(t *testing.T) {
	t.Run("writes once then reports unchanged", func(t *testing.T) {
		f := newFixture(t, storage.OSFS{}, sampleConfig)
		desired := map[string]bool{"WP_DEBUG": true, "WP_DEBUG_LOG": true, "WP_DEBUG_DISPLAY": false}

		first, err := f.editor.UpdateConstants(f.path, desired)
		require.NoError(t, err)
		assert.True(t, first.Changed)
		require.NotNil(t, first.Backup)
		assert.FileExists(t, first.Backup.Path)
		after := f.read(t)

		second, err := f.editor.UpdateConstants(f.path, desired)
		require.NoError(t, err)
		assert.False(t, second.Changed)
		assert.Nil(t, second.Backup)
		assert.Equal(t, after, f.read(t))

		backups, err := f.backups.List()
		require.NoError(t, err)
		assert.Len(t, backups, 1)
	})

	t.Run("backup holds the previous content", func(t *testing.T) {
		f := newFixture(t, storage.OSFS{}, sampleConfig)

		result, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": true})
		require.NoError(t, err)

		data, err := os.ReadFile(result.Backup.Path)
		require.NoError(t, err)
		assert.Equal(t, sampleConfig, string(data))
	})

	t.Run("absent constants are inserted", func(t *testing.T) {
		f := newFixture(t, storage.OSFS{}, sampleConfig)

		result, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": false, "WP_DEBUG_LOG": false})
		require.NoError(t, err)

		assert.True(t, result.Changed)
		assert.Empty(t, result.Updated)
		assert.Equal(t, assign("WP_DEBUG_LOG", false), result.Inserted)
		assert.Contains(t, f.read(t), "define('WP_DEBUG_LOG', false);")
	})

	t.Run("orders configured constants first then alphabetically", func(t *testing.T) {
		f := newFixture(t, storage.OSFS{}, "<?php\n")

		result, err := f.editor.UpdateConstants(f.path, map[string]bool{
			"zed_flag":         true,
			"WP_DEBUG_DISPLAY": false,
			"WP_DEBUG":         true,
			"ALPHA":            false,
		})
		require.NoError(t, err)

		assert.Equal(t, assign("WP_DEBUG", true, "WP_DEBUG_DISPLAY", false, "ALPHA", false, "ZED_FLAG", true), result.Inserted)
	})

	t.Run("rejects invalid names", func(t *testing.T) {
		f := newFixture(t, storage.OSFS{}, sampleConfig)

		_, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG');": true})
		assert.Error(t, err)
		assert.Equal(t, sampleConfig, f.read(t))
	})

	t.Run("backups stay bounded", func(t *testing.T) {
		f := newFixture(t, storage.OSFS{}, sampleConfig)

		for i := 0; i < 12; i++ {
			result, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": i%2 == 0})
			require.NoError(t, err)
			require.True(t, result.Changed)
		}

		backups, err := f.backups.List()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(backups), 5)
	})
}

func TestEditor_Failures(t *testing.T) {
	t.Run("missing file is a read error", func(t *testing.T) {
		f := newFixture(t, storage.OSFS{}, sampleConfig)

		_, err := f.editor.UpdateConstants(filepath.Join(filepath.Dir(f.path), "nope.php"), map[string]bool{"WP_DEBUG": true})
		assert.ErrorIs(t, err, models.ErrRead)
	})

	t.Run("unparsed definition is refused", func(t *testing.T) {
		content := "<?php\ndefine('WP_DEBUG', getenv('X');\n"
		f := newFixture(t, storage.OSFS{}, content)

		result, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": true})
		assert.Nil(t, result)
		assert.ErrorContains(t, err, "cannot locate the value of WP_DEBUG")
		assert.Equal(t, content, f.read(t))

		backups, err := f.backups.List()
		require.NoError(t, err)
		assert.Empty(t, backups)
	})

	t.Run("backup failure leaves file untouched", func(t *testing.T) {
		fsys := testutil.NewMockFS()
		fsys.FailMkdir(os.ErrPermission)
		f := newFixture(t, fsys, sampleConfig)

		result, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": true})
		assert.Nil(t, result)
		assert.ErrorIs(t, err, models.ErrBackup)
		assert.Equal(t, sampleConfig, f.read(t))
	})

	t.Run("write failure is reported", func(t *testing.T) {
		fsys := testutil.NewMockFS()
		f := newFixture(t, fsys, sampleConfig)
		fsys.FailWrite(f.path, errors.New("read-only file system"))

		_, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": true})
		assert.ErrorIs(t, err, models.ErrWrite)
		assert.Contains(t, err.Error(), "backup at")
		assert.Equal(t, sampleConfig, f.read(t))
	})

	t.Run("short write is reported", func(t *testing.T) {
		fsys := testutil.NewMockFS()
		f := newFixture(t, fsys, sampleConfig)
		fsys.ShortWrite(f.path)

		_, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": true})
		assert.ErrorIs(t, err, models.ErrWrite)
	})

	t.Run("verification mismatch returns result and error", func(t *testing.T) {
		fsys := testutil.NewMockFS()
		f := newFixture(t, fsys, sampleConfig)
		fsys.DropWrites(f.path)

		result, err := f.editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": true})
		assert.ErrorIs(t, err, models.ErrVerification)
		require.NotNil(t, result)
		assert.True(t, result.Changed)
		assert.Contains(t, err.Error(), "WP_DEBUG")
	})

	t.Run("verification can be disabled", func(t *testing.T) {
		fsys := testutil.NewMockFS()
		f := newFixture(t, fsys, sampleConfig)
		opts := DefaultOptions()
		opts.VerifyAfterWrite = false
		editor, err := NewEditor(fsys, f.backups, opts, nil)
		require.NoError(t, err)
		fsys.DropWrites(f.path)

		result, err := editor.UpdateConstants(f.path, map[string]bool{"WP_DEBUG": true})
		assert.NoError(t, err)
		assert.True(t, result.Changed)
	})
}

func TestApply_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	desiredGen := gopter.CombineGens(gen.Bool(), gen.Bool(), gen.Bool()).Map(func(v []any) []models.ConstantAssignment {
		return assign("WP_DEBUG", v[0].(bool), "WP_DEBUG_LOG", v[1].(bool), "WP_DEBUG_DISPLAY", v[2].(bool))
	})
	docGen := gen.OneConstOf(
		sampleConfig,
		"<?php\n",
		"<?php\ndefine(\"WP_DEBUG_LOG\", TRUE);\n/* That's all, stop editing! Happy blogging. */\n",
		"<?php\n/* Added by Debug Log Admin Viewer */\ndefine('WP_DEBUG', false);\n\n\n/* That's all, stop editing! Happy blogging. */\n",
	)

	properties.Property("applied values read back exactly", prop.ForAll(
		func(doc string, desired []models.ConstantAssignment) bool {
			edit := Apply(doc, desired, DefaultOptions())
			got := ReadConstants(edit.Text, DefaultConstants)
			for _, a := range desired {
				if v, ok := got[a.Name]; !ok || v != a.Value {
					return false
				}
			}
			return len(got) == len(desired)
		},
		docGen, desiredGen,
	))

	properties.Property("second application changes nothing", prop.ForAll(
		func(doc string, desired []models.ConstantAssignment) bool {
			first := Apply(doc, desired, DefaultOptions())
			second := Apply(first.Text, desired, DefaultOptions())
			return !second.Changed() && second.Text == first.Text
		},
		docGen, desiredGen,
	))

	properties.Property("at most one managed section", prop.ForAll(
		func(doc string, a, b []models.ConstantAssignment) bool {
			text := Apply(doc, a[:1], DefaultOptions()).Text
			text = Apply(text, b, DefaultOptions()).Text
			return strings.Count(text, DefaultSectionMarker) <= 1
		},
		docGen, desiredGen, desiredGen,
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
