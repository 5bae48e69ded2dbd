// Package store persists the harvested corpus as a single JSON document and
// tracks which identity keys it already holds.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"saleharvest/internal/item"
	"saleharvest/internal/logger"
)

// CorruptSuffix is appended to an unreadable corpus file before it is replaced.
const CorruptSuffix = ".corrupt"

type fileState int

const (
	stateOK fileState = iota
	stateMissing
	stateEmpty
	stateCorrupt
)

// MergeResult reports what a MergeAndSave call changed.
type MergeResult struct {
	AddedProducts int
	AddedBanners  int
	// Added holds the keys appended by this call.
	Added []item.Key
	// AlreadyPresent holds the keys that were filtered out because the
	// persisted corpus, or an earlier record in the same batch, had them.
	AlreadyPresent []item.Key
}

// FileStore is an append-only corpus backed by one JSON file. Writes replace
// the file atomically through a temp file and rename in the same directory.
type FileStore struct {
	path string
	log  logger.Logger
	mu   sync.Mutex
}

// NewFileStore creates a store for path. The file is created on first save.
func NewFileStore(path string, log logger.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the persisted corpus. A missing, empty or unparseable file
// yields an empty corpus; the problem is logged and never returned.
func (s *FileStore) Load() item.Corpus {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, _ := s.read()
	return c
}

func (s *FileStore) read() (item.Corpus, fileState) {
	empty := item.Corpus{Products: []item.Product{}, Banners: []item.Banner{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return empty, stateMissing
	}
	if err != nil {
		s.log.Warn("Corpus file unreadable, treating as empty", logger.String("path", s.path), logger.Error(err))
		return empty, stateCorrupt
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.log.Warn("Corpus file is empty", logger.String("path", s.path))
		return empty, stateEmpty
	}

	var c item.Corpus
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.Warn("Corpus file is malformed, treating as empty", logger.String("path", s.path), logger.Error(err))
		return empty, stateCorrupt
	}
	if c.Products == nil {
		c.Products = []item.Product{}
	}
	if c.Banners == nil {
		c.Banners = []item.Banner{}
	}
	return c, stateOK
}

// MergeAndSave unions products and banners into the persisted corpus by
// identity key. Existing keys are recomputed from the file on every call, so
// the merge stays idempotent even when another process wrote in between.
// Nothing is written when no record survives the filter.
func (s *FileStore) MergeAndSave(products []item.Product, banners []item.Banner) (MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	corpus, state := s.read()
	known := make(map[item.Key]struct{}, corpus.Len())
	for _, k := range corpus.Keys() {
		known[k] = struct{}{}
	}

	var res MergeResult
	admit := func(k item.Key) bool {
		if _, ok := known[k]; ok {
			res.AlreadyPresent = append(res.AlreadyPresent, k)
			return false
		}
		known[k] = struct{}{}
		res.Added = append(res.Added, k)
		return true
	}
	for _, p := range products {
		if admit(p.Key()) {
			corpus.Products = append(corpus.Products, p)
			res.AddedProducts++
		}
	}
	for _, b := range banners {
		if admit(b.Key()) {
			corpus.Banners = append(corpus.Banners, b)
			res.AddedBanners++
		}
	}

	if len(res.Added) == 0 {
		return res, nil
	}

	if state == stateCorrupt {
		aside := s.path + CorruptSuffix
		if err := os.Rename(s.path, aside); err != nil {
			return MergeResult{}, fmt.Errorf("preserve corrupt corpus: %w", err)
		}
		s.log.Warn("Moved corrupt corpus aside", logger.String("path", aside))
	}

	if err := s.write(corpus); err != nil {
		return MergeResult{}, err
	}
	return res, nil
}

func (s *FileStore) write(c item.Corpus) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace corpus: %w", err)
	}
	return nil
}
