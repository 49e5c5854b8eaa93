package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteBox(t *testing.T) {
	var buf bytes.Buffer
	writeBox(&buf, "outline", "Act I\nAct II")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 6)
	assert.Equal(t, "│ outline │", lines[1])
	assert.Equal(t, "│ Act I   │", lines[3])
}

func TestWrapAndTruncate(t *testing.T) {
	assert.Equal(t, []string{"abc", "de"}, wrapContentForBox("abcde", 3))
	assert.Equal(t, "ab…", truncateForCLI("abcdef", 2))
	assert.Equal(t, "abc", truncateForCLI("abc", 5))
	assert.Equal(t, "1. a\n2. b", numbered([]string{"a", "b"}))
}
