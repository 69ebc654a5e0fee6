package livediff

import (
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

var (
	minifier *minify.M
	once     sync.Once
)

// getMinifier returns a configured HTML minifier (singleton)
func getMinifier() *minify.M {
	once.Do(func() {
		minifier = minify.New()
		minifier.AddFunc("text/html", html.Minify)
	})
	return minifier
}

// minifyHTML removes unnecessary whitespace from HTML while preserving content
func minifyHTML(content string) string {
	if strings.Contains(content, "<") {
		minified, err := getMinifier().String("text/html", content)
		if err != nil {
			// If minification fails, fall back to original content
			return content
		}
		return minified
	}

	// For text-only segments, normalize whitespace
	return normalizeWhitespace(content)
}

// normalizeWhitespace collapses runs of whitespace into single spaces,
// keeping one boundary space so adjacent segments do not fuse.
func normalizeWhitespace(text string) string {
	if strings.TrimSpace(text) == "" {
		if text == "" {
			return ""
		}
		return " "
	}

	leading := text[0] == ' ' || text[0] == '\t' || text[0] == '\n' || text[0] == '\r'
	trailing := text[len(text)-1] == ' ' || text[len(text)-1] == '\t' || text[len(text)-1] == '\n' || text[len(text)-1] == '\r'

	out := strings.Join(strings.Fields(text), " ")
	if leading {
		out = " " + out
	}
	if trailing {
		out = out + " "
	}
	return out
}

// minifyStatics applies minification to a static segment list.
func minifyStatics(statics []string) []string {
	minified := make([]string, len(statics))
	for i, s := range statics {
		if strings.ContainsAny(s, "<>") || strings.ContainsAny(s, "\n\t") {
			minified[i] = minifyHTML(s)
		} else {
			// Attribute values and short text stay as-is
			minified[i] = s
		}
	}
	return minified
}

// MinifyTree returns a copy of t with every static segment minified,
// nested trees and comprehension item templates included. Dynamic values
// are never touched. Both sides of a diff must use the same minification
// setting or statics identity breaks.
func MinifyTree(t *Tree) *Tree {
	if t == nil {
		return nil
	}
	dynamics := make([]Dynamic, len(t.dynamics))
	for i, d := range t.dynamics {
		dynamics[i] = minifyDynamic(d)
	}
	return &Tree{statics: minifyStatics(t.statics), dynamics: dynamics}
}

func minifyDynamic(d Dynamic) Dynamic {
	switch v := d.(type) {
	case *Tree:
		return MinifyTree(v)
	case *Comprehension:
		entries := make([][]Dynamic, len(v.entries))
		for i, row := range v.entries {
			entries[i] = make([]Dynamic, len(row))
			for j, val := range row {
				entries[i][j] = minifyDynamic(val)
			}
		}
		return &Comprehension{statics: minifyStatics(v.statics), entries: entries}
	default:
		return d
	}
}
