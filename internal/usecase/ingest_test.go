package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetrag/internal/adapter/fs"
	"vetrag/internal/domain"
	"vetrag/internal/platform/logger"
	"vetrag/internal/port"
)

type recordingInserter struct {
	batches [][]domain.Chunk
	failAt  int
	err     error
}

func (r *recordingInserter) Insert(_ context.Context, chunks []domain.Chunk) (port.InsertResult, error) {
	r.batches = append(r.batches, chunks)
	if r.err != nil && len(r.batches)-1 == r.failAt {
		return port.InsertResult{}, r.err
	}

	res := port.InsertResult{}
	for i, c := range chunks {
		if c.ChunkID == "" {
			res.Skipped = append(res.Skipped, port.SkippedRecord{Index: i, Reason: "empty chunk_id"})
			continue
		}
		res.Written++
	}
	return res, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func jsonlRecords(prefix string, n int) string {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, `{"chunk_id":"%s-%d","disease_name":"Mastitis","section_type":"treatment","page_number":"%d","section_text":"text %d"}`+"\n", prefix, i, i+1, i)
	}
	return b.String()
}

func newIngest(ins Inserter, batchSize int) *IngestUseCase {
	return NewIngestUseCase(ins, fs.NewWalker(nil, []string{"**/skip/**"}), batchSize, logger.Discard())
}

func TestIngest_BatchesAndProgress(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", jsonlRecords("a", 3))
	writeFile(t, dir, "nested/b.json", `[{"chunk_id":"b-0","section_text":"x"},{"chunk_id":"b-1","section_text":"y"}]`)
	writeFile(t, dir, "skip/c.jsonl", jsonlRecords("c", 4))
	writeFile(t, dir, "notes.txt", "ignored")

	ins := &recordingInserter{}
	var ticks [][2]int
	res, err := newIngest(ins, 2).Ingest(context.Background(), dir, func(done, total int) {
		ticks = append(ticks, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.FilesRead)
	assert.Equal(t, 5, res.Records)
	assert.Equal(t, 5, res.Written)
	assert.Empty(t, res.Skipped)

	require.Len(t, ins.batches, 3)
	assert.Len(t, ins.batches[0], 2)
	assert.Len(t, ins.batches[2], 1)
	assert.Equal(t, "a-0", ins.batches[0][0].ChunkID)
	assert.Equal(t, 1, ins.batches[0][0].PageNumber, "string page numbers are decoded")

	assert.Equal(t, [][2]int{{0, 5}, {2, 5}, {4, 5}, {5, 5}}, ticks)
}

func TestIngest_SkippedIndicesAreGlobal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "records.json", `[
		{"chunk_id":"r-0"},{"chunk_id":"r-1"},{"chunk_id":"r-2"},
		{"chunk_id":""},{"chunk_id":"r-4"}
	]`)

	res, err := newIngest(&recordingInserter{}, 2).Ingest(context.Background(), dir, nil)
	require.NoError(t, err)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 3, res.Skipped[0].Index)
	assert.Equal(t, 4, res.Written)
}

func TestIngest_UnreadableFileIsReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.jsonl", jsonlRecords("g", 2))
	writeFile(t, dir, "bad.json", `{"chunk_id": `)

	res, err := newIngest(&recordingInserter{}, 10).Ingest(context.Background(), dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesRead)
	assert.Equal(t, 1, res.FilesFailed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "bad.json")
	assert.Equal(t, 2, res.Written)
}

func TestIngest_InsertionErrorContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", jsonlRecords("a", 4))

	ins := &recordingInserter{failAt: 0, err: fmt.Errorf("%w: no valid records", domain.ErrInsertion)}
	res, err := newIngest(ins, 2).Ingest(context.Background(), dir, nil)
	require.NoError(t, err)

	assert.Len(t, ins.batches, 2)
	assert.Equal(t, 2, res.Written)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "records 0-1")
}

func TestIngest_StoreFailureAborts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", jsonlRecords("a", 6))

	ins := &recordingInserter{failAt: 1, err: domain.ErrStoreUnavailable}
	res, err := newIngest(ins, 2).Ingest(context.Background(), dir, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	assert.Len(t, ins.batches, 2)
	assert.Equal(t, 2, res.Written)
}

func TestIngest_SingleFileRoot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "skip/export.jsonl", jsonlRecords("x", 3))

	// a file root bypasses include and exclude patterns
	res, err := newIngest(&recordingInserter{}, 10).Ingest(context.Background(), filepath.Join(dir, "skip", "export.jsonl"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesRead)
	assert.Equal(t, 3, res.Written)
}

func TestIngest_MissingRoot(t *testing.T) {
	res, err := newIngest(&recordingInserter{}, 10).Ingest(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.Nil(t, res)
}
