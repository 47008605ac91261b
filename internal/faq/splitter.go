// Package faq answers questions about the training centre from a markdown knowledge base.
package faq

import (
	"strings"
)

// maxHeaderDepth is the deepest markdown header that starts a new section.
const maxHeaderDepth = 3

// Section is one markdown section together with the headers above it.
type Section struct {
	Headers []string
	Content string
}

// Text renders the section with its header path, which is what gets embedded.
func (s Section) Text() string {
	if len(s.Headers) == 0 {
		return s.Content
	}
	return strings.Join(s.Headers, " > ") + "\n" + s.Content
}

// SplitMarkdown splits a document on #, ## and ### headers. Sections with no body
// are dropped.
func SplitMarkdown(doc string) []Section {
	var (
		sections []Section
		headers  []string
		body     []string
	)
	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if content == "" {
			return
		}
		sections = append(sections, Section{Headers: append([]string(nil), headers...), Content: content})
	}

	for _, line := range strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n") {
		depth, title := headerLevel(line)
		if depth == 0 {
			body = append(body, line)
			continue
		}
		flush()
		if depth-1 < len(headers) {
			headers = headers[:depth-1]
		}
		for len(headers) < depth-1 {
			headers = append(headers, "")
		}
		headers = append(headers, title)
	}
	flush()
	return sections
}

func headerLevel(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	depth := 0
	for depth < len(trimmed) && trimmed[depth] == '#' {
		depth++
	}
	if depth == 0 || depth > maxHeaderDepth || depth == len(trimmed) || trimmed[depth] != ' ' {
		return 0, ""
	}
	return depth, strings.TrimSpace(trimmed[depth:])
}
