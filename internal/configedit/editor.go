// Package configedit toggles boolean define() constants in wp-config.php.
//
// Edits are minimal: existing definitions have only their value rewritten,
// and missing constants are added to a managed section marked by a comment
// placed before the "stop editing" sentinel. Every write is preceded by a
// verified backup.
package configedit

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/wp-debug-viewer/backend/internal/models"
	"github.com/wp-debug-viewer/backend/internal/storage"
)

const (
	DefaultSectionMarker  = "/* Added by Debug Log Admin Viewer */"
	DefaultSentinelMarker = "/* That's all, stop editing! Happy blogging. */"
)

// DefaultConstants are the debug switches managed out of the box.
var DefaultConstants = []string{"WP_DEBUG", "WP_DEBUG_LOG", "WP_DEBUG_DISPLAY"}

var validName = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// Options controls where and how constants are written.
type Options struct {
	SectionMarker  string
	SentinelMarker string
	// Constants fixes the processing order for these names; any other
	// requested names follow alphabetically.
	Constants        []string
	VerifyAfterWrite bool
}

// DefaultOptions returns the stock markers and constant list.
func DefaultOptions() Options {
	return Options{
		SectionMarker:    DefaultSectionMarker,
		SentinelMarker:   DefaultSentinelMarker,
		Constants:        append([]string(nil), DefaultConstants...),
		VerifyAfterWrite: true,
	}
}

// Backuper snapshots a file before it is modified.
type Backuper interface {
	Backup(srcPath string) (*models.BackupInfo, error)
}

// Editor applies constant changes to a configuration file on disk.
// It is not safe for concurrent use on the same path; callers serialize.
type Editor struct {
	fs      storage.FS
	backups Backuper
	opts    Options
	logger  *slog.Logger
}

// NewEditor creates an Editor. A nil fsys uses the local file system.
func NewEditor(fsys storage.FS, backups Backuper, opts Options, logger *slog.Logger) (*Editor, error) {
	if backups == nil {
		return nil, fmt.Errorf("backup store is required")
	}
	if opts.SectionMarker == "" {
		return nil, fmt.Errorf("section marker is required")
	}
	if fsys == nil {
		fsys = storage.OSFS{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{
		fs:      fsys,
		backups: backups,
		opts:    opts,
		logger:  logger.With("component", "configedit"),
	}, nil
}

// ReadConstants reads path and returns the boolean constants among names
// that are currently defined.
func (e *Editor) ReadConstants(path string, names []string) (map[string]bool, error) {
	raw, err := e.fs.ReadFile(path)
	if err != nil {
		return nil, models.NewReadError(path, err)
	}
	return ReadConstants(string(raw), names), nil
}

// UpdateConstants makes every desired constant hold its value in path.
//
// Nothing is written when the file already matches. Otherwise a backup is
// taken first; if it fails the file is left untouched. With
// VerifyAfterWrite, a verification failure is returned alongside the
// non-nil result since the write itself went through.
func (e *Editor) UpdateConstants(path string, desired map[string]bool) (*models.UpdateResult, error) {
	assignments, err := e.order(desired)
	if err != nil {
		return nil, err
	}

	raw, err := e.fs.ReadFile(path)
	if err != nil {
		return nil, models.NewReadError(path, err)
	}

	edit := Apply(string(raw), assignments, e.opts)
	if len(edit.Unparsed) > 0 {
		return nil, fmt.Errorf("%s: cannot locate the value of %s; edit it by hand",
			path, strings.Join(edit.Unparsed, ", "))
	}
	result := &models.UpdateResult{
		Path:     path,
		Changed:  edit.Changed(),
		Updated:  edit.Updated,
		Inserted: edit.Inserted,
	}
	if !result.Changed {
		e.logger.Debug("constants already up to date", "path", path)
		return result, nil
	}

	backup, err := e.backups.Backup(path)
	if err != nil {
		return nil, err
	}
	result.Backup = backup

	n, err := e.fs.WriteFile(path, []byte(edit.Text), 0644)
	if err == nil && n != len(edit.Text) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return nil, models.NewWriteError(path,
			fmt.Sprintf("could not write updated file, backup at %s", backup.Path), err)
	}

	if e.opts.VerifyAfterWrite {
		if err := e.verify(path, assignments); err != nil {
			return result, err
		}
	}

	e.logger.Info("updated constants",
		"path", path,
		"updated", len(result.Updated),
		"inserted", len(result.Inserted),
		"backup", backup.Path)
	return result, nil
}

func (e *Editor) verify(path string, want []models.ConstantAssignment) error {
	raw, err := e.fs.ReadFile(path)
	if err != nil {
		return &models.OpError{
			Kind:    models.ErrVerification,
			Path:    path,
			Message: "could not re-read file",
			Cause:   err,
		}
	}

	var mismatched []string
	text := string(raw)
	for _, a := range want {
		d, ok := FindConstant(text, a.Name)
		if !ok || !d.Boolean || d.Value != a.Value {
			mismatched = append(mismatched, a.Name)
		}
	}
	if len(mismatched) > 0 {
		return models.NewVerificationError(path, mismatched)
	}
	return nil
}

// order normalizes names and returns assignments with configured constants
// first, in configured order, then the rest alphabetically.
func (e *Editor) order(desired map[string]bool) ([]models.ConstantAssignment, error) {
	pending := make(map[string]bool, len(desired))
	for name, v := range desired {
		n := NormalizeName(name)
		if !validName.MatchString(n) {
			return nil, fmt.Errorf("invalid constant name %q", name)
		}
		pending[n] = v
	}

	out := make([]models.ConstantAssignment, 0, len(pending))
	for _, name := range e.opts.Constants {
		n := NormalizeName(name)
		if v, ok := pending[n]; ok {
			out = append(out, models.ConstantAssignment{Name: n, Value: v})
			delete(pending, n)
		}
	}

	rest := make([]string, 0, len(pending))
	for n := range pending {
		rest = append(rest, n)
	}
	sort.Strings(rest)
	for _, n := range rest {
		out = append(out, models.ConstantAssignment{Name: n, Value: pending[n]})
	}
	return out, nil
}

// Edit is the result of applying assignments to a document in memory.
type Edit struct {
	Text     string
	Updated  []models.ConstantAssignment
	Inserted []models.ConstantAssignment
	// Unparsed names constants whose define() value could not be delimited.
	// They are neither rewritten nor inserted.
	Unparsed []string
}

// Changed reports whether the document needs to be written.
func (e Edit) Changed() bool {
	return len(e.Updated) > 0 || len(e.Inserted) > 0
}

// Apply computes the new document text. It performs no I/O. When nothing
// needs to change the input is returned unmodified, without normalization.
func Apply(text string, assignments []models.ConstantAssignment, opts Options) Edit {
	original := text
	crlf := isCRLF(text)
	if crlf {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}

	var edit Edit
	var staged []models.ConstantAssignment
	for _, a := range assignments {
		d, ok, malformed := findConstant(text, a.Name)
		if malformed {
			edit.Unparsed = append(edit.Unparsed, a.Name)
			continue
		}
		if !ok {
			staged = append(staged, a)
			continue
		}
		if d.Boolean && d.Value == a.Value {
			continue
		}
		text = text[:d.ValueStart] + literal(a.Value) + text[d.ValueEnd:]
		edit.Updated = append(edit.Updated, a)
	}

	if len(staged) > 0 {
		text = insert(text, staged, opts)
		edit.Inserted = staged
	}

	if !edit.Changed() {
		edit.Text = original
		return edit
	}

	text = normalize(text, opts.SentinelMarker)
	if crlf {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	edit.Text = text
	return edit
}

// isCRLF reports whether every line break in text is CRLF.
func isCRLF(text string) bool {
	n := strings.Count(text, "\r\n")
	return n > 0 && n == strings.Count(text, "\n")
}
