// Package present turns raw script filenames into display labels.
package present

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultExtension is the script extension stripped by Prettify.
const DefaultExtension = ".jsx"

// Registry maps raw filenames to explicit labels. A nil Registry is empty.
type Registry map[string]string

// Lookup finds a label for filename, trying an exact key first and then a
// case-insensitive match.
func (r Registry) Lookup(filename string) (string, bool) {
	if label, ok := r[filename]; ok && label != "" {
		return label, true
	}
	for k, label := range r {
		if label != "" && strings.EqualFold(k, filename) {
			return label, true
		}
	}
	return "", false
}

// Presenter labels filenames for one script extension.
type Presenter struct {
	Extension string
}

// New returns a Presenter for ext; an empty ext means DefaultExtension.
func New(ext string) Presenter {
	if ext == "" {
		ext = DefaultExtension
	}
	return Presenter{Extension: ext}
}

// Label returns the registry label for filename or, failing that, its
// prettified form.
func (p Presenter) Label(filename string, registry Registry) string {
	if label, ok := registry.Lookup(filename); ok {
		return label
	}
	return p.Prettify(filename)
}

// Prettify strips the extension, turns '-' and '_' into spaces and upper-cases
// the first letter of every word: "my-script_v2.jsx" becomes "My Script V2".
// A word starts after any rune that is not a letter or digit, so
// "resize.v2.jsx" becomes "Resize.V2". Letters after the first keep their
// case.
func (p Presenter) Prettify(filename string) string {
	name := filename
	if ext := p.Extension; ext != "" && len(name) > len(ext) &&
		strings.EqualFold(name[len(name)-len(ext):], ext) {
		name = name[:len(name)-len(ext)]
	}

	var b strings.Builder
	b.Grow(len(name))
	inWord := false
	for len(name) > 0 {
		r, size := utf8.DecodeRuneInString(name)
		name = name[size:]
		if r == '-' || r == '_' {
			r = ' '
		}
		word := unicode.IsLetter(r) || unicode.IsDigit(r)
		if word && !inWord {
			r = unicode.ToUpper(r)
		}
		inWord = word
		b.WriteRune(r)
	}
	return b.String()
}

// Label is Presenter.Label for the default extension.
func Label(filename string, registry Registry) string {
	return New("").Label(filename, registry)
}
