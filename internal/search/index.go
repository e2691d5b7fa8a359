package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// SearchIndex wraps a Bleve index of player profiles.
//
// Thread safety: All public methods are safe for concurrent use.
type SearchIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex // Protects index operations during rebuild
}

// Options configures the search index.
type Options struct {
	DataPath string       // Directory for index storage; empty keeps the index in memory
	Logger   *slog.Logger // Logger for operations (uses discard if nil)
}

// mappingVersion is incremented whenever the index mapping changes.
// An on-disk index with another version is dropped and recreated.
const mappingVersion = "1"

// NewSearchIndex creates or opens a search index.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.DataPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		logger.Info("created in-memory player index")
		return &SearchIndex{index: index, logger: logger}, nil
	}

	indexPath := filepath.Join(opts.DataPath, "players.bleve")
	versionPath := filepath.Join(opts.DataPath, "players.version")

	if existing, err := os.ReadFile(versionPath); err == nil && string(existing) == mappingVersion {
		index, err := bleve.Open(indexPath)
		if err == nil {
			logger.Info("opened existing player index", "path", indexPath)
			return &SearchIndex{index: index, path: indexPath, logger: logger}, nil
		}
		logger.Warn("failed to open existing index, will recreate", "path", indexPath, "error", err)
	}

	index, err := createOnDisk(indexPath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
		logger.Warn("failed to write index version file", "error", err)
	}
	logger.Info("created new player index", "path", indexPath, "mapping_version", mappingVersion)

	return &SearchIndex{index: index, path: indexPath, logger: logger}, nil
}

func createOnDisk(path string) (bleve.Index, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove old index: %w", err)
	}
	index, err := bleve.New(path, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return index, nil
}

// Close closes the index and releases resources.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexPlayer indexes or replaces one player.
func (s *SearchIndex) IndexPlayer(doc PlayerDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// Apply indexes docs and removes deleted ids in one batch.
func (s *SearchIndex) Apply(docs []PlayerDocument, deleted []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := s.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}
	for _, id := range deleted {
		batch.Delete(id)
	}
	if batch.Size() == 0 {
		return nil
	}
	return s.index.Batch(batch)
}

// DeletePlayer removes a player from the index.
func (s *SearchIndex) DeletePlayer(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(id)
}

// DocumentCount returns the total number of indexed players.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops every document.
func (s *SearchIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}

	var (
		index bleve.Index
		err   error
	)
	if s.path == "" {
		index, err = bleve.NewMemOnly(buildIndexMapping())
	} else {
		index, err = createOnDisk(s.path)
	}
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	s.index = index
	s.logger.Info("rebuilt player index", "path", s.path)
	return nil
}

// FindByEmail returns the id of the player registered with email.
func (s *SearchIndex) FindByEmail(ctx context.Context, email string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := bleve.NewTermQuery(normalize(email))
	q.SetField("email")
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.SortBy([]string{"_id"})

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return "", false, fmt.Errorf("search email: %w", err)
	}
	if len(res.Hits) == 0 {
		return "", false, nil
	}
	return res.Hits[0].ID, true, nil
}
