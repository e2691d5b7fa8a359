// Package firestoredb implements the document store on Google Cloud Firestore.
//
// Paths map onto Firestore directly: a path with an even number of segments is a
// document, an odd number a collection. Reading a collection yields an object of
// its documents keyed by id. Reading an odd path whose collection is empty falls
// back to the field of that name in the parent document.
package firestoredb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/darkscore/darkscore-server/internal/store"
)

// Options configures the client.
type Options struct {
	ProjectID string
	// CredentialsFile is optional; Application Default Credentials are used when empty.
	CredentialsFile string
}

// Store is a Firestore-backed store.Store.
type Store struct {
	client *firestore.Client
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup
}

var _ store.Store = (*Store)(nil)

// Open creates a Firestore client for the project.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, opts.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	logger.Info("Firestore connected", "project", opts.ProjectID, "credentials_file", opts.CredentialsFile != "")
	return newStore(client, logger), nil
}

func newStore(client *firestore.Client, logger *slog.Logger) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{client: client, logger: logger, ctx: ctx, cancel: cancel}
}

// Close stops listeners and closes the client.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return s.client.Close()
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, path string) (store.Snapshot, error) {
	path, err := store.Clean(path)
	if err != nil {
		return store.Snapshot{}, err
	}

	if isDocument(path) {
		return s.getDocument(ctx, path)
	}

	snap, err := s.getCollection(ctx, path)
	if err != nil || snap.Exists {
		return snap, err
	}
	return s.getField(ctx, path)
}

func (s *Store) getDocument(ctx context.Context, path string) (store.Snapshot, error) {
	ref := s.client.Doc(path)
	doc, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return s.getSubcollections(ctx, path, ref)
	}
	if err != nil {
		return store.Snapshot{Path: path}, fmt.Errorf("get %s: %w", path, err)
	}
	return documentSnapshot(path, doc)
}

// getSubcollections assembles a document that exists only as a parent of collections.
func (s *Store) getSubcollections(ctx context.Context, path string, ref *firestore.DocumentRef) (store.Snapshot, error) {
	snap := store.Snapshot{Path: path}
	cols, err := ref.Collections(ctx).GetAll()
	if err != nil {
		return snap, fmt.Errorf("list collections of %s: %w", path, err)
	}

	obj := make(map[string]any)
	for _, col := range cols {
		docs, err := readCollection(ctx, col.Documents(ctx))
		if err != nil {
			return snap, err
		}
		if len(docs) > 0 {
			obj[col.ID] = docs
		}
	}
	return encodeSnapshot(path, obj, len(obj) > 0)
}

func (s *Store) getCollection(ctx context.Context, path string) (store.Snapshot, error) {
	docs, err := readCollection(ctx, s.client.Collection(path).Documents(ctx))
	if err != nil {
		return store.Snapshot{Path: path}, fmt.Errorf("get %s: %w", path, err)
	}
	return encodeSnapshot(path, docs, len(docs) > 0)
}

func (s *Store) getField(ctx context.Context, path string) (store.Snapshot, error) {
	snap := store.Snapshot{Path: path}
	segs := store.Segments(path)
	if len(segs) < 3 {
		return snap, nil
	}

	parent, err := s.getDocument(ctx, store.Join(segs[:len(segs)-1]...))
	if err != nil || !parent.Exists {
		return snap, err
	}
	value, ok, err := store.Extract(parent.Value, segs[len(segs)-1:])
	if err != nil || !ok {
		return snap, err
	}
	snap.Value, snap.Exists = value, true
	return snap, nil
}

// Set implements store.Store. Setting a collection replaces all of its documents.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}
	data, err := documentData(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	if isDocument(path) {
		if _, err := s.client.Doc(path).Set(ctx, data); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
		return nil
	}

	col := s.client.Collection(path)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(col).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range existing {
			if _, keep := data[doc.Ref.ID]; !keep {
				if err := tx.Delete(doc.Ref); err != nil {
					return err
				}
			}
		}
		for id, child := range data {
			childData, ok := child.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: %s/%s", store.ErrNotDocument, path, id)
			}
			if err := tx.Set(col.Doc(id), childData); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// Merge implements store.Store. Each field is replaced as a whole.
func (s *Store) Merge(ctx context.Context, path string, fields map[string]any) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}
	if !isDocument(path) {
		return fmt.Errorf("merge %s: %w", path, store.ErrNotDocument)
	}

	data, paths, err := mergeData(fields)
	if err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}
	if len(paths) == 0 {
		return nil
	}
	if _, err := s.client.Doc(path).Set(ctx, data, firestore.Merge(paths...)); err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}
	return nil
}

// Delete implements store.Store. Subcollections are removed as well.
func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}

	if isDocument(path) {
		err = deleteDocument(ctx, s.client.Doc(path))
	} else {
		err = deleteCollection(ctx, s.client.Collection(path))
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Subscribe implements store.Store using Firestore realtime listeners.
func (s *Store) Subscribe(ctx context.Context, path string, fn store.Listener) (store.Unsubscribe, error) {
	path, err := store.Clean(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	subCtx, cancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, cancel)

	var next func() (store.Snapshot, error)
	if isDocument(path) {
		it := s.client.Doc(path).Snapshots(subCtx)
		context.AfterFunc(subCtx, it.Stop)
		next = func() (store.Snapshot, error) {
			doc, err := it.Next()
			if err != nil {
				return store.Snapshot{}, err
			}
			if !doc.Exists() {
				return store.Snapshot{Path: path}, nil
			}
			return documentSnapshot(path, doc)
		}
	} else {
		it := s.client.Collection(path).Snapshots(subCtx)
		context.AfterFunc(subCtx, it.Stop)
		next = func() (store.Snapshot, error) {
			qs, err := it.Next()
			if err != nil {
				return store.Snapshot{}, err
			}
			docs, err := readCollection(subCtx, qs.Documents)
			if err != nil {
				return store.Snapshot{}, err
			}
			return encodeSnapshot(path, docs, len(docs) > 0)
		}
	}

	go s.listen(subCtx, path, next, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			cancel()
		})
	}, nil
}

func (s *Store) listen(ctx context.Context, path string, next func() (store.Snapshot, error), fn store.Listener) {
	defer s.wg.Done()

	var (
		last      store.Snapshot
		delivered bool
	)
	for {
		snap, err := next()
		if err != nil {
			if ctx.Err() == nil && status.Code(err) != codes.Canceled && !errors.Is(err, iterator.Done) {
				s.logger.Warn("firestore listener stopped", "path", path, "error", err)
			}
			return
		}
		if delivered && snap.Exists == last.Exists && bytes.Equal(snap.Value, last.Value) {
			continue
		}
		last, delivered = snap, true
		fn(snap)
	}
}

func deleteDocument(ctx context.Context, ref *firestore.DocumentRef) error {
	cols, err := ref.Collections(ctx).GetAll()
	if err != nil {
		return err
	}
	for _, col := range cols {
		if err := deleteCollection(ctx, col); err != nil {
			return err
		}
	}
	_, err = ref.Delete(ctx)
	return err
}

func deleteCollection(ctx context.Context, col *firestore.CollectionRef) error {
	refs, err := col.DocumentRefs(ctx).GetAll()
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := deleteDocument(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

func readCollection(ctx context.Context, it *firestore.DocumentIterator) (map[string]any, error) {
	defer it.Stop()

	docs := make(map[string]any)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs[doc.Ref.ID] = doc.Data()
	}
}

func documentSnapshot(path string, doc *firestore.DocumentSnapshot) (store.Snapshot, error) {
	return encodeSnapshot(path, doc.Data(), true)
}

func encodeSnapshot(path string, value any, exists bool) (store.Snapshot, error) {
	snap := store.Snapshot{Path: path}
	if !exists {
		return snap, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return snap, fmt.Errorf("encode %s: %w", path, err)
	}
	snap.Value, snap.Exists = raw, true
	return snap, nil
}

// documentData converts a value to the map Firestore stores. Only JSON objects are documents.
func documentData(value any) (map[string]any, error) {
	raw, err := store.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return nil, store.ErrNotDocument
	}
	return data, nil
}

// mergeData converts merge fields into document data plus the field paths to overwrite.
// A nil value deletes the field.
func mergeData(fields map[string]any) (map[string]any, []firestore.FieldPath, error) {
	data := make(map[string]any, len(fields))
	paths := make([]firestore.FieldPath, 0, len(fields))
	for key, value := range fields {
		paths = append(paths, firestore.FieldPath{key})
		if value == nil {
			data[key] = firestore.Delete
			continue
		}
		raw, err := store.Encode(value)
		if err != nil {
			return nil, nil, fmt.Errorf("encode field %s: %w", key, err)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, nil, fmt.Errorf("encode field %s: %w", key, err)
		}
		data[key] = decoded
	}
	return data, paths, nil
}

func isDocument(path string) bool {
	return len(store.Segments(path))%2 == 0
}
