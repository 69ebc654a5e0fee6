package livediff

import "strings"

// Flatten produces the final output string for a rendered tree by
// concatenating statics and rendered dynamics in slot order. Nested trees
// flatten recursively; a comprehension flattens its item statics once per
// entry, in entry order. Pure function: the same tree always flattens to the
// same string. Used for the first full paint and for snapshot testing.
func Flatten(t *Tree) string {
	var b strings.Builder
	writeTree(&b, t)
	return b.String()
}

func writeTree(b *strings.Builder, t *Tree) {
	for i, d := range t.dynamics {
		b.WriteString(t.statics[i])
		writeDynamic(b, d)
	}
	b.WriteString(t.statics[len(t.statics)-1])
}

func writeDynamic(b *strings.Builder, d Dynamic) {
	switch v := d.(type) {
	case Scalar:
		b.WriteString(string(v))
	case *Tree:
		writeTree(b, v)
	case *Comprehension:
		for _, row := range v.entries {
			for i, d := range row {
				b.WriteString(v.statics[i])
				writeDynamic(b, d)
			}
			b.WriteString(v.statics[len(v.statics)-1])
		}
	}
}
