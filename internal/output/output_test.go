package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterStatusPrintsIconAndMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("🔍", "Checking embedder...")

	output := buf.String()
	assert.Contains(t, output, "🔍")
	assert.Contains(t, output, "Checking embedder...")
}

func TestWriterSuccessPrintsCheckmark(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("Index complete!")

	output := buf.String()
	assert.Contains(t, output, "✅")
	assert.Contains(t, output, "Index complete!")
}

func TestWriterWarningPrintsWarningIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Warning("Embedder not available")

	output := buf.String()
	assert.Contains(t, output, "⚠️")
	assert.Contains(t, output, "Embedder not available")
}

func TestWriterErrorPrintsErrorIcon(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Error("Failed to connect")

	output := buf.String()
	assert.Contains(t, output, "❌")
	assert.Contains(t, output, "Failed to connect")
}

func TestWriterCodePrintsCodeBlock(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	code := `{"key": "value"}`
	w.Code(code)

	assert.Contains(t, buf.String(), `{"key": "value"}`)
}

func TestWriterProgressNonTTYPrintsPlainLine(t *testing.T) {
	// *bytes.Buffer is never a TTY, so Progress falls back to one plain
	// line per call regardless of the bubbles bar.
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Progress(50, 100, "Indexing files")

	output := buf.String()
	assert.Contains(t, output, "50/100")
	assert.Contains(t, output, "Indexing files")
}

func TestWriterProgressZeroTotalNoOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	assert.NotPanics(t, func() {
		w.Progress(0, 0, "Processing")
	})
	assert.Empty(t, buf.String())
}

func TestWriterStatusfFormatsMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Statusf("📂", "Found %d files in %s", 42, "/path/to/project")

	output := buf.String()
	assert.Contains(t, output, "📂")
	assert.Contains(t, output, "Found 42 files in /path/to/project")
}

func TestWriterNewlinePrintsEmptyLine(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Newline()

	assert.Equal(t, "\n", buf.String())
}

func TestNewDetectsNonTTY(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	assert.NotNil(t, w)
	assert.False(t, w.tty)
	assert.False(t, IsTTY(buf))
}

func TestWriterJSONEncodesValue(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	require := assert.New(t)
	require.NoError(w.JSON(map[string]int{"hits": 3}))

	var decoded map[string]int
	require.NoError(json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(3, decoded["hits"])
}
