package checksum

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBytesIsDeterministic(t *testing.T) {
	a := ComputeBytes([]byte("inspection_id,site\nINS-001,Plant A\n"))
	b := ComputeBytes([]byte("inspection_id,site\nINS-001,Plant A\n"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestComputeBytesDiffersOnContent(t *testing.T) {
	a := ComputeBytes([]byte("INS-001"))
	b := ComputeBytes([]byte("INS-002"))
	assert.NotEqual(t, a, b)
	assert.True(t, HasChanged(a, b))
	assert.False(t, HasChanged(a, a))
}

func TestComputeReaderMatchesBytes(t *testing.T) {
	data := []byte("ncr_id,severity\nNCR-9,HIGH\n")

	fromReader, err := Compute(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, ComputeBytes(data), fromReader)
}

func TestComputeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inspections.csv")
	data := []byte("inspection_id,result\nINS-100,PASS\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	sum, err := ComputeFile(path)
	require.NoError(t, err)
	assert.Equal(t, ComputeBytes(data), sum)
}

func TestComputeFileMissing(t *testing.T) {
	_, err := ComputeFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
