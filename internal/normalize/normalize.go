// Package normalize turns raw markup fragments into plain dataset text.
package normalize

import (
	"regexp"
	"strings"
)

// Each stage runs on the output of the previous one. The order is part of the
// contract: brace removal relies on command names already being gone, and the
// comment stage must not see escaped percent signs.
var stages = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\\[a-zA-Z]+`), ""},
	{regexp.MustCompile(`\\[^a-zA-Z]`), ""},
	{regexp.MustCompile(`\{[^}]*\}`), ""},
	{regexp.MustCompile(`\$.*?\$`), ""},
	{regexp.MustCompile(`%.*`), ""},

	// Sizing and crop directives left behind by graphics options.
	{regexp.MustCompile(`width=[\d.]+`), ""},
	{regexp.MustCompile(`[\d.]+pt`), ""},
	{regexp.MustCompile(`[\d.]+in`), ""},
	{regexp.MustCompile(`[\d.]+em`), ""},
	{regexp.MustCompile(`,\s*trim=[\d\s]+,\s*clip\s+figures/[\w.]+`), ""},
	{regexp.MustCompile(`,\s*trim=[\d\s]+\s+figures/[\w.]+`), ""},
	{regexp.MustCompile(`trim=[\d\s.]+_?`), ""},

	{regexp.MustCompile(`(?i)[\w./]+\.(pdf|png|jpg|jpeg|gif|bmp|tiff|svg)`), ""},
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	listMarkerRe = regexp.MustCompile(`^\s*-\s+`)
)

// Normalize strips markup commands, inline math, comments, sizing tokens and
// image filenames, then collapses whitespace. It never fails; input that is
// nothing but markup yields "".
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	for _, s := range stages {
		text = s.re.ReplaceAllString(text, s.repl)
	}
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	text = listMarkerRe.ReplaceAllString(text, "")
	return text
}
