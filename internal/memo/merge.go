// Package memo holds the memo buffer and the section merge used when a drafted
// section is inserted.
package memo

import "strings"

const headingPrefix = "##"

// HeadingKey returns the first line of suggestion when it is a "##" heading, and
// "" otherwise.
func HeadingKey(suggestion string) string {
	first, _, _ := strings.Cut(suggestion, "\n")
	first = strings.TrimRight(first, "\r")
	if !strings.HasPrefix(first, headingPrefix) {
		return ""
	}
	return first
}

// Merge splices suggestion into buffer. A suggestion whose heading line already
// exists in buffer replaces that section (up to the next "##" line or the end);
// anything else is appended after a blank line.
//
// Sections are matched on exact heading text, so a heading edited by hand makes
// the next regeneration append a second copy.
func Merge(buffer, suggestion string) string {
	key := HeadingKey(suggestion)
	if key != "" {
		if merged, ok := replaceSection(buffer, key, body(suggestion)); ok {
			return merged
		}
	}
	return strings.TrimSpace(buffer + "\n\n" + suggestion)
}

func body(suggestion string) string {
	_, rest, found := strings.Cut(suggestion, "\n")
	if !found {
		return ""
	}
	return strings.TrimRight(rest, "\r\n")
}

func replaceSection(buffer, key, sectionBody string) (string, bool) {
	lines := strings.Split(buffer, "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimRight(line, "\r") == key {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], headingPrefix) {
			end = i
			break
		}
	}

	var b strings.Builder
	for _, line := range lines[:start] {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(key)
	if sectionBody != "" {
		b.WriteByte('\n')
		b.WriteString(sectionBody)
	}
	for _, line := range lines[end:] {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String(), true
}
