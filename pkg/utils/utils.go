package utils

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/fatih/color"
	"github.com/go-errors/errors"
)

// SplitLines takes a multiline string and splits it on newlines, removing
// blank lines at the end and carriage returns along the way.
func SplitLines(multilineString string) []string {
	multilineString = strings.ReplaceAll(multilineString, "\r", "")
	if multilineString == "" || multilineString == "\n" {
		return make([]string, 0)
	}
	lines := strings.Split(multilineString, "\n")
	if lines[len(lines)-1] == "" {
		return lines[:len(lines)-1]
	}
	return lines
}

// WithPadding pads a string to the given length with spaces.
func WithPadding(str string, padding int) string {
	if padding < len(str) {
		return str
	}
	return str + strings.Repeat(" ", padding-len(str))
}

// ColoredString takes a string and a color attribute and returns the string
// wrapped in that color's escape codes.
func ColoredString(str string, colorAttribute color.Attribute) string {
	colour := color.New(colorAttribute)
	return ColoredStringDirect(str, colour)
}

// ColoredStringDirect used for aggregating colors
func ColoredStringDirect(str string, colour *color.Color) string {
	return colour.SprintFunc()(fmt.Sprint(str))
}

// ApplyTemplate executes the given template against the object, panicking on
// a malformed template since these come from our own config defaults.
func ApplyTemplate(str string, object interface{}) string {
	var buf bytes.Buffer
	if err := template.Must(template.New("").Parse(str)).Execute(&buf, object); err != nil {
		panic(err)
	}
	return buf.String()
}

// CloseMany closes each closer, returning the first error encountered.
func CloseMany(closers []io.Closer) error {
	var firstErr error
	for _, closer := range closers {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, 0)
		}
	}
	return firstErr
}
