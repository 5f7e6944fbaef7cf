package configedit

import (
	"regexp"
	"strings"

	"github.com/wp-debug-viewer/backend/internal/models"
)

var (
	blankRuns  = regexp.MustCompile(`\n{2,}`)
	excessRuns = regexp.MustCompile(`\n{3,}`)
	defineStmt = regexp.MustCompile(`^define\s*\(.*\)\s*;$`)
)

// insert adds define() lines for staged constants to the managed section,
// creating the section when it does not exist yet.
func insert(text string, staged []models.ConstantAssignment, opts Options) string {
	var lines strings.Builder
	for _, a := range staged {
		lines.WriteString(defineLine(a.Name, a.Value))
		lines.WriteByte('\n')
	}

	sentinelPos := -1
	if opts.SentinelMarker != "" {
		sentinelPos = strings.Index(text, opts.SentinelMarker)
	}

	markerPos := strings.Index(text, opts.SectionMarker)
	if markerPos >= 0 && (sentinelPos < 0 || markerPos < sentinelPos) {
		return mergeSection(text, markerPos, sentinelPos, lines.String(), opts.SectionMarker)
	}

	section := "\n" + opts.SectionMarker + "\n" + lines.String()
	switch {
	case sentinelPos >= 0:
		return text[:sentinelPos] + section + text[sentinelPos:]
	default:
		// Anything after a closing PHP tag is sent as output, so keep the
		// section inside the code block.
		if i := closingTag(text); i >= 0 {
			return text[:i] + section + text[i:]
		}
		return text + section
	}
}

// mergeSection appends lines to the end of an existing managed section. The
// section runs from the marker to the next comment opener or the sentinel,
// whichever comes first. Without either it ends after the last define()
// line that follows the marker. Blank lines inside it are dropped.
func mergeSection(text string, markerPos, sentinelPos int, lines, marker string) string {
	bodyStart := markerPos + len(marker)
	end := len(text)
	if i := strings.Index(text[bodyStart:], "/*"); i >= 0 {
		end = bodyStart + i
	}
	if sentinelPos >= 0 && sentinelPos < end {
		end = sentinelPos
	}
	if end == len(text) {
		end = definesEnd(text, bodyStart)
	}

	section := text[markerPos:end]
	spaced := end < len(text) && end != sentinelPos && strings.HasSuffix(section, "\n\n")

	section = blankRuns.ReplaceAllString(section, "\n")
	if !strings.HasSuffix(section, "\n") {
		section += "\n"
	}
	section += lines
	if spaced {
		section += "\n"
	}
	return text[:markerPos] + section + text[end:]
}

// definesEnd returns the offset just past the last line of the run of
// define() and blank lines that follows the marker line.
func definesEnd(text string, bodyStart int) int {
	nl := strings.IndexByte(text[bodyStart:], '\n')
	if nl < 0 {
		return len(text)
	}
	end := bodyStart + nl + 1
	for pos := end; pos < len(text); {
		next := len(text)
		if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
			next = pos + i + 1
		}
		line := strings.TrimSpace(text[pos:next])
		switch {
		case line == "":
		case defineStmt.MatchString(line):
			end = next
		default:
			return end
		}
		pos = next
	}
	return end
}

// normalize collapses runs of blank lines and leaves exactly one blank line
// before the sentinel.
func normalize(text, sentinel string) string {
	if sentinel != "" {
		if i := strings.Index(text, sentinel); i > 0 && text[i-1] == '\n' {
			text = strings.TrimRight(text[:i], "\n") + "\n\n" + text[i:]
		}
	}
	return excessRuns.ReplaceAllString(text, "\n\n")
}

// closingTag returns the offset of a trailing "?>" or -1.
func closingTag(text string) int {
	trimmed := strings.TrimRight(text, " \t\n")
	if !strings.HasSuffix(trimmed, "?>") {
		return -1
	}
	return len(trimmed) - 2
}
