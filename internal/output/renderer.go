// Package output renders log pages, entries and settings for the terminal
// or for machine consumption.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wp-debug-viewer/backend/internal/models"
	"github.com/wp-debug-viewer/backend/internal/parser"
)

// Output formats accepted by New.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Renderer writes toolkit results to an output stream.
type Renderer interface {
	RenderPage(page *models.LogPage) error
	RenderEntry(entry models.LogEntry) error
	RenderSettings(settings []models.ConstantAssignment) error
	RenderBackups(backups []models.BackupInfo) error
	RenderUpdate(result *models.UpdateResult) error
}

// New returns the renderer for format.
func New(format string, w io.Writer) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return NewTextRenderer(w), nil
	case FormatJSON:
		return NewJSONRenderer(w), nil
	case FormatMsgpack:
		return NewMsgpackRenderer(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or msgpack)", format)
	}
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

// TextRenderer prints human readable output with per-category colors.
// Colors are dropped automatically when w is not a terminal.
type TextRenderer struct {
	w      io.Writer
	styles map[models.Category]lipgloss.Style
	faint  lipgloss.Style
	header lipgloss.Style
	on     lipgloss.Style
	off    lipgloss.Style
}

// NewTextRenderer returns a TextRenderer writing to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	r := lipgloss.NewRenderer(w)
	color := func(c string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(c))
	}
	return &TextRenderer{
		w: w,
		styles: map[models.Category]lipgloss.Style{
			models.CategoryFatal: r.NewStyle().
				Foreground(lipgloss.Color("255")).
				Background(lipgloss.Color("196")).
				Bold(true),
			models.CategoryParse:      color("196").Bold(true),
			models.CategoryDatabase:   color("201"),
			models.CategoryWarning:    color("220"),
			models.CategoryDeprecated: color("135"),
			models.CategoryStrict:     color("39"),
			models.CategoryNotice:     color("245"),
			models.CategoryUnknown:    color("245").Faint(true),
		},
		faint:  r.NewStyle().Faint(true),
		header: r.NewStyle().Bold(true),
		on:     color("42").Bold(true),
		off:    color("245"),
	}
}

func (r *TextRenderer) RenderPage(page *models.LogPage) error {
	if page.TotalEntries == 0 {
		if _, err := fmt.Fprintln(r.w, r.faint.Render("No log entries.")); err != nil {
			return err
		}
		return r.renderCounts(page.Counts)
	}

	for _, e := range page.Entries {
		if err := r.RenderEntry(e); err != nil {
			return err
		}
	}

	summary := fmt.Sprintf("Page %d of %d (%d entries)", page.Page, page.TotalPages, page.TotalEntries)
	if _, err := fmt.Fprintln(r.w, "\n"+r.header.Render(summary)); err != nil {
		return err
	}
	return r.renderCounts(page.Counts)
}

func (r *TextRenderer) renderCounts(counts map[models.Category]int) error {
	if len(counts) == 0 {
		return nil
	}
	parts := make([]string, 0, len(counts))
	for _, c := range models.AllCategories {
		if n := counts[c]; n > 0 {
			parts = append(parts, r.styles[c].Render(fmt.Sprintf("%s (%d)", c.Label(), n)))
		}
	}
	_, err := fmt.Fprintln(r.w, strings.Join(parts, "  "))
	return err
}

func (r *TextRenderer) RenderEntry(entry models.LogEntry) error {
	errText, trace := parser.SplitMessage(entry.Message)

	tag := r.styles[entry.Category].Render(string(entry.Category))
	if pad := 10 - len(entry.Category); pad > 0 {
		tag += strings.Repeat(" ", pad)
	}
	line := tag + " " + strings.TrimRight(errText, "\n")
	if entry.Timestamp != "" {
		line = r.faint.Render("["+entry.Timestamp+"]") + " " + line
	}
	if _, err := fmt.Fprintln(r.w, line); err != nil {
		return err
	}

	if trace == "" {
		return nil
	}
	for _, l := range strings.Split(trace, "\n") {
		if _, err := fmt.Fprintln(r.w, "    "+r.faint.Render(l)); err != nil {
			return err
		}
	}
	return nil
}

func (r *TextRenderer) RenderSettings(settings []models.ConstantAssignment) error {
	for _, s := range settings {
		if _, err := fmt.Fprintf(r.w, "%-20s %s\n", s.Name, r.onOff(s.Value)); err != nil {
			return err
		}
	}
	return nil
}

func (r *TextRenderer) RenderBackups(backups []models.BackupInfo) error {
	if len(backups) == 0 {
		_, err := fmt.Fprintln(r.w, r.faint.Render("No backups."))
		return err
	}
	for _, b := range backups {
		_, err := fmt.Fprintf(r.w, "%s  %8d  %s\n",
			b.CreatedAt.UTC().Format("2006-01-02 15:04:05"), b.Size, b.Path)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *TextRenderer) RenderUpdate(result *models.UpdateResult) error {
	if !result.Changed {
		_, err := fmt.Fprintln(r.w, "Settings already up to date; nothing written.")
		return err
	}

	for _, a := range result.Updated {
		if _, err := fmt.Fprintf(r.w, "%-20s %s (updated)\n", a.Name, r.onOff(a.Value)); err != nil {
			return err
		}
	}
	for _, a := range result.Inserted {
		if _, err := fmt.Fprintf(r.w, "%-20s %s (added)\n", a.Name, r.onOff(a.Value)); err != nil {
			return err
		}
	}
	if result.Backup != nil {
		if _, err := fmt.Fprintln(r.w, r.faint.Render("Backup: "+result.Backup.Path)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(r.w, r.header.Render("Settings saved."))
	return err
}

func (r *TextRenderer) onOff(v bool) string {
	if v {
		return r.on.Render("true")
	}
	return r.off.Render("false")
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each value as one JSON document per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a JSONRenderer writing to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) RenderPage(page *models.LogPage) error { return r.enc.Encode(page) }

func (r *JSONRenderer) RenderEntry(entry models.LogEntry) error { return r.enc.Encode(entry) }

func (r *JSONRenderer) RenderSettings(settings []models.ConstantAssignment) error {
	return r.enc.Encode(settings)
}

func (r *JSONRenderer) RenderBackups(backups []models.BackupInfo) error {
	return r.enc.Encode(backups)
}

func (r *JSONRenderer) RenderUpdate(result *models.UpdateResult) error { return r.enc.Encode(result) }

// ---------------------------------------------------------------------------
// MessagePack Renderer (compact binary stream)
// ---------------------------------------------------------------------------

// MsgpackRenderer writes a stream of MessagePack values. Struct fields use
// their msgpack tags, falling back to the json names.
type MsgpackRenderer struct {
	enc *msgpack.Encoder
}

// NewMsgpackRenderer returns a MsgpackRenderer writing to w.
func NewMsgpackRenderer(w io.Writer) *MsgpackRenderer {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return &MsgpackRenderer{enc: enc}
}

func (r *MsgpackRenderer) RenderPage(page *models.LogPage) error { return r.enc.Encode(page) }

func (r *MsgpackRenderer) RenderEntry(entry models.LogEntry) error { return r.enc.Encode(entry) }

func (r *MsgpackRenderer) RenderSettings(settings []models.ConstantAssignment) error {
	return r.enc.Encode(settings)
}

func (r *MsgpackRenderer) RenderBackups(backups []models.BackupInfo) error {
	return r.enc.Encode(backups)
}

func (r *MsgpackRenderer) RenderUpdate(result *models.UpdateResult) error {
	return r.enc.Encode(result)
}
