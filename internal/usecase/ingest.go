package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vetrag/internal/adapter/fs"
	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// Inserter stores already-chunked records. AskUseCase implements it.
type Inserter interface {
	Insert(ctx context.Context, chunks []domain.Chunk) (port.InsertResult, error)
}

// ProgressFunc is told how many records have been handed to the store.
type ProgressFunc func(done, total int)

// IngestUseCase loads chunk record files from disk into the vector store.
type IngestUseCase struct {
	inserter  Inserter
	walker    *fs.Walker
	batchSize int
	logger    *slog.Logger
}

func NewIngestUseCase(inserter Inserter, walker *fs.Walker, batchSize int, logger *slog.Logger) *IngestUseCase {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		inserter:  inserter,
		walker:    walker,
		batchSize: batchSize,
		logger:    logger,
	}
}

// IngestResult contains the results of an ingest run.
type IngestResult struct {
	FilesRead   int                  `json:"files_read"`
	FilesFailed int                  `json:"files_failed"`
	Records     int                  `json:"records"`
	Written     int                  `json:"written"`
	Skipped     []port.SkippedRecord `json:"skipped,omitempty"`
	Errors      []string             `json:"errors,omitempty"`
}

// Ingest reads every record file under root and inserts the records in
// batches. Unreadable files and rejected records are reported in the
// result; a store failure aborts the run.
func (u *IngestUseCase) Ingest(ctx context.Context, root string, progress ProgressFunc) (*IngestResult, error) {
	result := &IngestResult{}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	var records []domain.ChunkRecord
	for _, file := range files {
		recs, err := fs.ReadRecords(file.Path)
		if err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to read %s: %v", file.Path, err))
			u.logger.Warn("skipping record file", "path", file.Path, "error", err)
			continue
		}
		result.FilesRead++
		records = append(records, recs...)
	}
	result.Records = len(records)
	u.logger.Info("records loaded", "files", result.FilesRead, "records", result.Records)

	if progress != nil {
		progress(0, len(records))
	}

	for start := 0; start < len(records); start += u.batchSize {
		end := min(start+u.batchSize, len(records))
		batch := domain.ToChunks(records[start:end])

		res, err := u.inserter.Insert(ctx, batch)
		for _, s := range res.Skipped {
			s.Index += start
			result.Skipped = append(result.Skipped, s)
		}
		result.Written += res.Written

		if err != nil {
			if !errors.Is(err, domain.ErrInsertion) {
				return result, fmt.Errorf("insert records %d-%d: %w", start, end-1, err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("records %d-%d: %v", start, end-1, err))
		}

		if progress != nil {
			progress(end, len(records))
		}
	}

	u.logger.Info("ingest finished",
		"written", result.Written,
		"skipped", len(result.Skipped),
		"errors", len(result.Errors),
	)
	return result, nil
}
