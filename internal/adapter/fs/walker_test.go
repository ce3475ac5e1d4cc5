package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWalker_IncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "mastitis.json"), "{}")
	writeFile(t, filepath.Join(root, "bvd", "chunks.jsonl"), "")
	writeFile(t, filepath.Join(root, "notes.txt"), "")
	writeFile(t, filepath.Join(root, ".rag", "state.json"), "{}")

	w := NewWalker(nil, []string{"**/.rag/**"})
	files, err := w.Walk(root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f.Path)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"bvd/chunks.jsonl", "mastitis.json"}, rel)
}

func TestWalker_SingleFileRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.txt")
	writeFile(t, path, "")

	files, err := NewWalker(nil, nil).Walk(path)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, path, files[0].Path)
}

func TestWalker_MissingRoot(t *testing.T) {
	_, err := NewWalker(nil, nil).Walk(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestReadRecords(t *testing.T) {
	dir := t.TempDir()

	arrayPath := filepath.Join(dir, "a.json")
	writeFile(t, arrayPath, `[
  {"chunk_id": "m1", "disease_name": "Mastitis", "page_number": "12", "section_text": "Udder inflammation"},
  {"chunk_id": "m2", "disease_name": "Mastitis", "chunk_index": 1}
]`)
	recs, err := ReadRecords(arrayPath)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 12, recs[0].Chunk().PageNumber)
	assert.Equal(t, 1, recs[1].Chunk().ChunkIndex)

	objectPath := filepath.Join(dir, "b.json")
	writeFile(t, objectPath, `{"chunk_id": "b1"}`)
	recs, err = ReadRecords(objectPath)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	linesPath := filepath.Join(dir, "c.jsonl")
	writeFile(t, linesPath, "{\"chunk_id\":\"l1\"}\n\n{\"chunk_id\":\"l2\"}\n")
	recs, err = ReadRecords(linesPath)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "l2", recs[1].ChunkID)

	badPath := filepath.Join(dir, "d.jsonl")
	writeFile(t, badPath, "{\"chunk_id\":\"ok\"}\n{not json}\n")
	_, err = ReadRecords(badPath)
	assert.ErrorContains(t, err, "line 2")
}
