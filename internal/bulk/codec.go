// Package bulk reads and writes the line-oriented text format used to edit
// every record at once.
//
//	# comment
//	key -> https://example.com
//	key [password] -> https://example.com
//	key [********] -> https://example.com
//	key ---
//	markdown content
//	---
//
// Parsing is error tolerant: a bad line is reported and skipped. Serializing
// never emits plaintext passwords, only the placeholder.
package bulk

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"linknote-server/internal/domain"
)

const fence = "---"

// Header is written at the top of every serialized document.
const Header = `# Bulk editor. Blank lines and lines starting with # are ignored.
#
#   key -> https://example.com           redirect
#   key [secret] -> https://example.com  redirect with a password
#   key ---                              note, ends at a line with only ---
#   markdown content
#   ---
#
# [********] keeps an existing password. Removing the brackets removes it.
# A note line that must read --- is written as \---.
`

var (
	noteOpen = regexp.MustCompile(`^([A-Za-z0-9_-]+)(?:\s+\[([^\]]+)\])?\s+---$`)
	redirect = regexp.MustCompile(`^([A-Za-z0-9_-]+)(?:\s+\[([^\]]+)\])?\s*->\s*(.+)$`)
)

type ParseError struct {
	Line    int
	Key     string
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Parse reads a bulk document. Entries come back in document order; duplicate
// keys are not collapsed here.
func Parse(text string) ([]domain.ParsedEntry, []ParseError) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		entries []domain.ParsedEntry
		errs    []ParseError
		open    *domain.ParsedEntry
		body    []string
	)

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if open != nil {
			if trimmed == fence {
				open.Record.Content = strings.Join(body, "\n")
				entries = append(entries, *open)
				open, body = nil, nil
				continue
			}
			body = append(body, unescapeFence(line))
			continue
		}

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if m := noteOpen.FindStringSubmatch(trimmed); m != nil {
			entry := newEntry(m[1], domain.RecordTypeNote, m[2], lineNo)
			open = &entry
			continue
		}

		if m := redirect.FindStringSubmatch(trimmed); m != nil {
			entry := newEntry(m[1], domain.RecordTypeURI, m[2], lineNo)
			entry.Record.Content = strings.TrimSpace(m[3])
			entries = append(entries, entry)
			continue
		}

		errs = append(errs, ParseError{
			Line:    lineNo,
			Message: fmt.Sprintf("unrecognized format at line %d", lineNo),
		})
	}

	if open != nil {
		errs = append(errs, ParseError{
			Line:    open.Line,
			Key:     open.Key,
			Message: fmt.Sprintf("unterminated note block for key %q starting at line %d", open.Key, open.Line),
		})
	}

	return entries, errs
}

func newEntry(key string, typ domain.RecordType, password string, line int) domain.ParsedEntry {
	entry := domain.ParsedEntry{
		Key:    key,
		Record: domain.Record{Type: typ},
		Line:   line,
	}
	switch password {
	case "":
	case domain.PasswordPlaceholder:
		entry.KeepPassword = true
	default:
		entry.RawPassword = password
	}
	return entry
}

// Serialize writes records sorted by key. Protected records carry the
// placeholder in place of their password.
func Serialize(records map[string]*domain.Record) string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n")

	for _, key := range keys {
		r := records[key]
		b.WriteString(key)
		if r.IsProtected() {
			b.WriteString(" [" + domain.PasswordPlaceholder + "]")
		}

		switch r.Type {
		case domain.RecordTypeNote:
			b.WriteString(" " + fence + "\n")
			if r.Content != "" {
				for _, line := range strings.Split(r.Content, "\n") {
					b.WriteString(escapeFence(line))
					b.WriteString("\n")
				}
			}
			b.WriteString(fence + "\n\n")
		default:
			b.WriteString(" -> " + r.Content + "\n")
		}
	}

	return b.String()
}

// isEscapedFence matches zero or more backslashes followed by ---.
func isEscapedFence(trimmed string) bool {
	return strings.TrimLeft(trimmed, `\`) == fence
}

func leadingSpace(line string) int {
	return len(line) - len(strings.TrimLeftFunc(line, unicode.IsSpace))
}

func escapeFence(line string) string {
	if !isEscapedFence(strings.TrimSpace(line)) {
		return line
	}
	n := leadingSpace(line)
	return line[:n] + `\` + line[n:]
}

func unescapeFence(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == fence || !isEscapedFence(trimmed) {
		return line
	}
	n := leadingSpace(line)
	return line[:n] + line[n+1:]
}
