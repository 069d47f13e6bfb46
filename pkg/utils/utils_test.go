package utils

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLines(t *testing.T) {
	type scenario struct {
		multilineString string
		expected        []string
	}

	scenarios := []scenario{
		{"", []string{}},
		{"\n", []string{}},
		{"hello world !\nhello universe !\n", []string{"hello world !", "hello universe !"}},
		{"hello\r\nworld\r\n", []string{"hello", "world"}},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, SplitLines(s.multilineString))
	}
}

func TestWithPadding(t *testing.T) {
	type scenario struct {
		str      string
		padding  int
		expected string
	}

	scenarios := []scenario{
		{"hello world !", 1, "hello world !"},
		{"hello world !", 14, "hello world ! "},
	}

	for _, s := range scenarios {
		assert.EqualValues(t, s.expected, WithPadding(s.str, s.padding))
	}
}

func TestApplyTemplate(t *testing.T) {
	object := struct{ Name string }{"tuti"}
	assert.Equal(t, "hello tuti", ApplyTemplate("hello {{.Name}}", object))
}

func TestCloseMany(t *testing.T) {
	assert.NoError(t, CloseMany(nil))
	assert.NoError(t, CloseMany([]io.Closer{nil}))
}
