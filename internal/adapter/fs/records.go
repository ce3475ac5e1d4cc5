package fs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vetrag/internal/domain"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 4 << 20

// ReadRecords loads chunk records from a .json file (one object or an array
// of objects) or a .jsonl file (one object per line).
func ReadRecords(path string) ([]domain.ChunkRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return parseJSONL(data)
	}
	return parseJSON(data)
}

func parseJSON(data []byte) ([]domain.ChunkRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []domain.ChunkRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse record array: %w", err)
		}
		return records, nil
	}

	var rec domain.ChunkRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return []domain.ChunkRecord{rec}, nil
}

func parseJSONL(data []byte) ([]domain.ChunkRecord, error) {
	var records []domain.ChunkRecord

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec domain.ChunkRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
