package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_PlainForNonTTY(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("indexed %d documents", 3)
	w.Error("engine unavailable")

	// No ANSI escapes when writing to a buffer
	assert.NotContains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "indexed 3 documents")
	assert.Contains(t, buf.String(), "engine unavailable")
}

func TestWriter_Field(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Field("status", "running")

	assert.Contains(t, buf.String(), "status:")
	assert.Contains(t, buf.String(), "running")
}

func TestWriter_Table(t *testing.T) {
	var buf bytes.Buffer
	w := NewPlain(&buf)

	w.Table(
		[]string{"ID", "STATUS"},
		[][]string{
			{"job-1", "completed"},
			{"job-20", "running"},
		},
	)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "job-20  running")
}
