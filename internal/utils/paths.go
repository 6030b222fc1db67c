package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RelPath returns p relative to root for display, or p itself when it is
// not below root
func RelPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}

	return rel
}

// Summarize joins the first n items with ", " and appends "+K more" for the rest
func Summarize(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}

	return fmt.Sprintf("%s +%d more", strings.Join(items[:n], ", "), len(items)-n)
}

// Plural returns word with an "s" unless count is one
func Plural(count int, word string) string {
	if count == 1 {
		return word
	}

	return word + "s"
}
