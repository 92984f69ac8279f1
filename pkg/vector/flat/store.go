// Package flat provides a file-backed flat (exhaustive) L2 vector store.
//
// Every search scans all stored vectors, which keeps results exact and the
// implementation free of index tuning. The whole index is persisted to a
// single gob blob after every mutation, so a process restart recovers the
// full state from disk.
package flat

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/recallkit/recallkit-go/pkg/vector"
)

// overfetchFactor is how many times k candidates a scoped search collects
// before filtering by conversation.
const overfetchFactor = 3

// record is the metadata stored alongside each vector, in parallel slices.
type record struct {
	Text           string
	Timestamp      string
	ConversationID int64
}

// snapshot is the gob-serialized on-disk form of the index.
type snapshot struct {
	Dimensions int
	Vectors    [][]float32
	Records    []record
}

// Store is a flat L2 vector store persisted to a single blob file.
type Store struct {
	mu         sync.RWMutex
	path       string
	dimensions int
	vectors    [][]float32
	records    []record
	logger     *log.Logger
}

// Config contains configuration for creating a flat vector store.
type Config struct {
	// IndexPath is the blob file location (required).
	IndexPath string

	// Dimensions is the vector dimension of the index (required).
	Dimensions int

	// Logger is the logger to use (a default is created if nil).
	Logger *log.Logger
}

// NewStore creates a flat vector store, loading any existing index from
// IndexPath. A missing or unreadable blob starts an empty index rather than
// failing, so a corrupt file never blocks startup.
func NewStore(cfg *Config) (*Store, error) {
	if cfg.IndexPath == "" {
		return nil, errors.New("index path is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithPrefix("vector")
	}

	s := &Store{
		path:       cfg.IndexPath,
		dimensions: cfg.Dimensions,
		logger:     logger,
	}

	if err := s.load(); err != nil {
		logger.Warn("index load failed, starting empty", "path", cfg.IndexPath, "error", err)
		s.vectors = nil
		s.records = nil
	}

	return s, nil
}

// Add stores a vector with its text, timestamp and conversation.
//
// Vectors of the wrong dimension are corrected rather than rejected:
// longer vectors are truncated, shorter ones zero-padded.
func (s *Store) Add(ctx context.Context, vec []float32, text, timestamp string, conversationID int64) error {
	if len(vec) == 0 {
		return errors.New("vector is empty")
	}
	if timestamp == "" {
		return errors.New("timestamp is required")
	}

	vec = s.fitDimensions(vec)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = append(s.vectors, vec)
	s.records = append(s.records, record{
		Text:           text,
		Timestamp:      timestamp,
		ConversationID: conversationID,
	})

	return s.persist()
}

// Search returns up to k records most similar to vec, ordered by descending
// similarity. A non-zero conversationID restricts results to that
// conversation; the scan overfetches before filtering so scoped searches
// still fill k when possible.
func (s *Store) Search(ctx context.Context, vec []float32, k int, conversationID int64) ([]*vector.Result, error) {
	if len(vec) == 0 {
		return nil, errors.New("vector is empty")
	}
	if k <= 0 {
		return nil, nil
	}

	vec = s.fitDimensions(vec)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 {
		return nil, nil
	}

	fetch := k
	if conversationID != 0 {
		fetch = k * overfetchFactor
	}
	if fetch > len(s.vectors) {
		fetch = len(s.vectors)
	}

	type scored struct {
		idx        int
		similarity float64
	}
	candidates := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		candidates[i] = scored{idx: i, similarity: similarity(vec, v)}
	}
	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].similarity > candidates[b].similarity
	})

	results := make([]*vector.Result, 0, k)
	for _, c := range candidates[:fetch] {
		rec := s.records[c.idx]
		if conversationID != 0 && rec.ConversationID != conversationID {
			continue
		}
		results = append(results, &vector.Result{
			Text:           rec.Text,
			Timestamp:      rec.Timestamp,
			ConversationID: rec.ConversationID,
			Similarity:     c.similarity,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// GetByTimestamp returns the record stored under timestamp, or an error when
// no such record exists.
func (s *Store) GetByTimestamp(ctx context.Context, timestamp string) (*vector.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Timestamp == timestamp {
			return &vector.Result{
				Text:           rec.Text,
				Timestamp:      rec.Timestamp,
				ConversationID: rec.ConversationID,
			}, nil
		}
	}
	return nil, fmt.Errorf("no vector record for timestamp %s", timestamp)
}

// RemoveByTimestamps deletes the records with the given timestamps.
//
// The flat index does not support in-place deletion, so the surviving
// vectors are rebuilt into a fresh index and persisted.
func (s *Store) RemoveByTimestamps(ctx context.Context, timestamps []string) (int, error) {
	if len(timestamps) == 0 {
		return 0, nil
	}

	drop := make(map[string]struct{}, len(timestamps))
	for _, ts := range timestamps {
		drop[ts] = struct{}{}
	}

	return s.rebuild(func(rec record) bool {
		_, gone := drop[rec.Timestamp]
		return !gone
	})
}

// RemoveConversation deletes all records of a conversation.
func (s *Store) RemoveConversation(ctx context.Context, conversationID int64) (int, error) {
	return s.rebuild(func(rec record) bool {
		return rec.ConversationID != conversationID
	})
}

// Clear deletes all records.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = nil
	s.records = nil
	return s.persist()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Page returns records in insertion order, limit records starting at offset,
// plus the total number of matching records.
func (s *Store) Page(ctx context.Context, offset, limit int, conversationID int64) ([]*vector.Result, int, error) {
	if offset < 0 || limit <= 0 {
		return nil, 0, errors.New("offset must be non-negative and limit positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []*vector.Result
	for _, rec := range s.records {
		if conversationID != 0 && rec.ConversationID != conversationID {
			continue
		}
		matching = append(matching, &vector.Result{
			Text:           rec.Text,
			Timestamp:      rec.Timestamp,
			ConversationID: rec.ConversationID,
		})
	}

	total := len(matching)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matching[offset:end], total, nil
}

// Stats returns store statistics, including the on-disk blob size.
func (s *Store) Stats(ctx context.Context) (*vector.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &vector.Stats{
		Count:      len(s.records),
		Dimensions: s.dimensions,
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeMB = float64(info.Size()) / (1024 * 1024)
	}
	return stats, nil
}

// Close persists the index one final time.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// rebuild keeps only the records accepted by keep, replaces the index with
// the survivors and persists. It returns the number of removed records.
func (s *Store) rebuild(keep func(record) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vectors := make([][]float32, 0, len(s.vectors))
	records := make([]record, 0, len(s.records))
	for i, rec := range s.records {
		if keep(rec) {
			vectors = append(vectors, s.vectors[i])
			records = append(records, rec)
		}
	}

	removed := len(s.records) - len(records)
	if removed == 0 {
		return 0, nil
	}

	s.vectors = vectors
	s.records = records
	return removed, s.persist()
}

// fitDimensions truncates or zero-pads vec to the index dimension.
func (s *Store) fitDimensions(vec []float32) []float32 {
	if len(vec) == s.dimensions {
		return vec
	}
	fitted := make([]float32, s.dimensions)
	copy(fitted, vec)
	return fitted
}

// persist writes the current index to the blob file. Callers must hold the
// write lock.
func (s *Store) persist() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create index directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	snap := snapshot{
		Dimensions: s.dimensions,
		Vectors:    s.vectors,
		Records:    s.records,
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// load reads the blob file into memory.
func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	if len(snap.Vectors) != len(snap.Records) {
		return fmt.Errorf("index blob inconsistent: %d vectors, %d records", len(snap.Vectors), len(snap.Records))
	}

	s.vectors = snap.Vectors
	s.records = snap.Records
	if snap.Dimensions > 0 {
		s.dimensions = snap.Dimensions
	}
	return nil
}

// similarity converts the L2 distance between a and b to a score in (0, 1],
// where identical vectors score 1.0.
func similarity(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return 1.0 / (1.0 + math.Sqrt(sum))
}
