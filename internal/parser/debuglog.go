// Package parser turns WordPress debug.log text into classified entries and
// provides the filtering and paging used by every viewer.
package parser

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/wp-debug-viewer/backend/internal/models"
)

// ProgressCallback is called periodically while reading a log stream.
type ProgressCallback func(linesProcessed int, bytesProcessed int64)

const (
	maxScannerBuffer = 1024 * 1024
	progressInterval = 10000
)

var headerRegex = regexp.MustCompile(`^\[(.+?)\]\s(.+)$`)

// Parser groups debug.log lines into entries. A Parser holds no state
// between calls and is safe for concurrent use.
type Parser struct {
	classifier *Classifier
}

// NewParser creates a Parser. A nil classifier uses DefaultClassifier.
func NewParser(classifier *Classifier) *Parser {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Parser{classifier: classifier}
}

// Parse parses raw with the default classification rules.
func Parse(raw string) []models.LogEntry {
	return NewParser(nil).Parse(raw)
}

// Parse splits raw into entries in file order.
func (p *Parser) Parse(raw string) []models.LogEntry {
	b := p.newBuilder()
	lineNum := 0
	for len(raw) > 0 {
		lineNum++
		line := raw
		if i := strings.IndexByte(raw, '\n'); i >= 0 {
			line, raw = raw[:i], raw[i+1:]
		} else {
			raw = ""
		}
		b.add(line, lineNum)
	}
	return b.finish()
}

// ParseReader parses a log stream. Lines longer than 1MB fail with
// bufio.ErrTooLong.
func (p *Parser) ParseReader(r io.Reader, onProgress ProgressCallback) ([]models.LogEntry, error) {
	b := p.newBuilder()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)
	lineNum := 0
	var bytesRead int64
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		bytesRead += int64(len(line)) + 1
		b.add(line, lineNum)

		if onProgress != nil && lineNum%progressInterval == 0 {
			onProgress(lineNum, bytesRead)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if onProgress != nil {
		onProgress(lineNum, bytesRead)
	}
	return b.finish(), nil
}

// builder accumulates entries line by line.
type builder struct {
	classifier *Classifier
	intern     *StringIntern
	entries    []models.LogEntry
	current    *models.LogEntry
	message    strings.Builder
	raw        strings.Builder
}

func (p *Parser) newBuilder() *builder {
	return &builder{
		classifier: p.classifier,
		intern:     NewStringIntern(),
		entries:    make([]models.LogEntry, 0, 256),
	}
}

func (b *builder) add(line string, lineNum int) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}

	if m := headerRegex.FindStringSubmatch(line); m != nil {
		b.flush()
		b.start(models.LogEntry{
			Line:      lineNum,
			Timestamp: b.intern.Intern(m[1]),
			Category:  b.classifier.Classify(m[2]),
		}, m[2], line)
		return
	}

	if b.current != nil && isContinuation(line) {
		b.message.WriteByte('\n')
		b.message.WriteString(line)
		b.raw.WriteByte('\n')
		b.raw.WriteString(line)
		return
	}

	b.flush()
	b.start(models.LogEntry{
		Line:     lineNum,
		Category: models.CategoryUnknown,
	}, line, line)
}

func (b *builder) start(e models.LogEntry, message, raw string) {
	b.current = &e
	b.message.Reset()
	b.message.WriteString(message)
	b.raw.Reset()
	b.raw.WriteString(raw)
}

func (b *builder) flush() {
	if b.current == nil {
		return
	}
	e := *b.current
	e.Message = b.message.String()
	e.Raw = b.raw.String()
	b.entries = append(b.entries, e)
	b.current = nil
}

func (b *builder) finish() []models.LogEntry {
	b.flush()
	return b.entries
}

// isContinuation reports whether line belongs to the previous entry's stack
// trace.
func isContinuation(line string) bool {
	return strings.HasPrefix(line, "Stack trace:") ||
		strings.HasPrefix(line, "#") ||
		strings.Contains(line, "thrown in")
}
