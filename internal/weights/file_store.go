package weights

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"signal-engine/internal/signal"
)

// File names of the persisted records
const (
	WeightsFile   = "weights.v1.json"
	JournalFile   = "journal.v1.jsonl"
	ProposalsFile = "proposals.v1.jsonl"
)

// FileStore persists to a data directory: the weights document is replaced
// atomically via a temp file and rename; the journal and proposals are
// append-only JSON lines
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the data directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (fs *FileStore) path(name string) string {
	return filepath.Join(fs.dir, name)
}

// LoadWeights implements Store
func (fs *FileStore) LoadWeights(ctx context.Context) (*Document, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path(WeightsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse weights: %w", err)
	}
	return &doc, nil
}

// SaveWeights implements Store
func (fs *FileStore) SaveWeights(ctx context.Context, doc *Document) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}

	tmp, err := os.CreateTemp(fs.dir, WeightsFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write weights: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync weights: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close weights: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path(WeightsFile)); err != nil {
		return fmt.Errorf("failed to replace weights: %w", err)
	}
	return nil
}

// DeleteWeights implements Store
func (fs *FileStore) DeleteWeights(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	err := os.Remove(fs.path(WeightsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// AppendOutcome implements Store
func (fs *FileStore) AppendOutcome(ctx context.Context, o signal.Outcome) error {
	return fs.appendLine(JournalFile, o)
}

// ReadJournal implements Store
func (fs *FileStore) ReadJournal(ctx context.Context) ([]signal.Outcome, error) {
	var out []signal.Outcome
	err := fs.scanLines(JournalFile, func(line []byte) error {
		var o signal.Outcome
		if err := json.Unmarshal(line, &o); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

// SaveProposal implements Store
func (fs *FileStore) SaveProposal(ctx context.Context, rec signal.ProposalRecord) error {
	return fs.appendLine(ProposalsFile, rec)
}

// LoadProposal implements Store. The last record for an id wins.
func (fs *FileStore) LoadProposal(ctx context.Context, id string) (*signal.ProposalRecord, error) {
	var found *signal.ProposalRecord
	err := fs.scanLines(ProposalsFile, func(line []byte) error {
		var rec signal.ProposalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if rec.ID == id {
			found = &rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (fs *FileStore) appendLine(name string, v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", name, err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", name, err)
	}
	return f.Sync()
}

// scanLines calls fn for every non-empty line. A malformed final line is a
// torn append and is skipped; a malformed line elsewhere is an error.
func (fs *FileStore) scanLines(name string, fn func([]byte) error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	lineNo := 0
	for {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("failed to read %s: %w", name, readErr)
		}
		complete := readErr == nil
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			lineNo++
			if err := fn(line); err != nil {
				if !complete {
					return nil
				}
				return fmt.Errorf("%s line %d: %w", name, lineNo, err)
			}
		}
		if !complete {
			return nil
		}
	}
}
