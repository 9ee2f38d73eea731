// Package export encodes generated books into their deliverable formats.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aaj441/aaronos-core/internal/domain"
)

// Supported output formats.
const (
	FormatPDF      = "pdf"
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// ValidFormat reports whether f names a supported output format.
func ValidFormat(f string) bool {
	switch f {
	case FormatPDF, FormatHTML, FormatMarkdown:
		return true
	}
	return false
}

// Book writes the assembled book to dir and returns the file path.
func Book(dir, id, title, author string, chapters []domain.GeneratedChapter, format string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	switch format {
	case FormatPDF:
		path := filepath.Join(dir, id+".pdf")
		if err := writePDF(path, title, author, chapters); err != nil {
			return "", err
		}
		return path, nil
	case FormatHTML:
		path := filepath.Join(dir, id+".html")
		if err := os.WriteFile(path, renderHTML(title, author, chapters), 0o644); err != nil {
			return "", fmt.Errorf("write html export: %w", err)
		}
		return path, nil
	case FormatMarkdown:
		path := filepath.Join(dir, id+".md")
		if err := os.WriteFile(path, renderMarkdown(title, author, chapters), 0o644); err != nil {
			return "", fmt.Errorf("write markdown export: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("unsupported export format %q", format)
}

func renderMarkdown(title, author string, chapters []domain.GeneratedChapter) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n*by %s*\n", title, author)
	for _, ch := range chapters {
		fmt.Fprintf(&b, "\n## Chapter %d: %s\n\n%s\n", ch.Number, ch.Title, ch.Content)
	}
	return []byte(b.String())
}
