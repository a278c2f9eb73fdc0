package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/devJinesh/DocuQuery/internal/apiclient"
	"github.com/devJinesh/DocuQuery/internal/model"
)

// Backend is the slice of the API client the registry depends on.
type Backend interface {
	ListDocuments(ctx context.Context, skip, limit int) (*model.DocumentList, error)
	GetDocument(ctx context.Context, id int64) (*model.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	Reindex(ctx context.Context, docID *int64) (*apiclient.Ack, error)
}

// Registry is the client-side view of the backend's documents plus the
// current selection.
//
// Callers must not issue overlapping Delete calls for the same id; they are
// not deduplicated.
type Registry struct {
	backend Backend
	limit   int

	mu          sync.Mutex
	docs        []model.Document
	selected    *int64
	token       uint64
	loadedToken uint64
	loaded      bool
	onChange    []func([]model.Document)
	onSelect    []func(*model.Document)
}

func New(backend Backend, limit int) *Registry {
	if limit <= 0 {
		limit = 100
	}
	return &Registry{backend: backend, limit: limit}
}

// OnChange registers fn to receive the listing after every change.
func (r *Registry) OnChange(fn func([]model.Document)) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// OnSelect registers fn to receive the selected document, nil when the
// selection is cleared.
func (r *Registry) OnSelect(fn func(*model.Document)) {
	r.mu.Lock()
	r.onSelect = append(r.onSelect, fn)
	r.mu.Unlock()
}

// Bump signals that the backend listing is stale. The next List refetches.
func (r *Registry) Bump() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token++
	return r.token
}

func (r *Registry) Token() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// List returns the cached listing, fetching it first when it was never
// loaded or the refresh token moved since the last fetch.
func (r *Registry) List(ctx context.Context) ([]model.Document, error) {
	r.mu.Lock()
	fresh := r.loaded && r.loadedToken == r.token
	docs := cloneDocs(r.docs)
	r.mu.Unlock()
	if fresh {
		return docs, nil
	}
	return r.Refresh(ctx)
}

// Refresh always refetches. On failure the cached listing is kept.
func (r *Registry) Refresh(ctx context.Context) ([]model.Document, error) {
	r.mu.Lock()
	token := r.token
	r.mu.Unlock()

	docs, err := r.fetchAll(ctx)
	if err != nil {
		logutil.GetLogger(ctx).Warn("refresh documents failed", zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	r.docs = docs
	r.loaded = true
	r.loadedToken = token
	selectionLost := false
	if r.selected != nil && indexOf(r.docs, *r.selected) < 0 {
		r.selected = nil
		selectionLost = true
	}
	out := cloneDocs(r.docs)
	changeFns := append([]func([]model.Document){}, r.onChange...)
	selectFns := append([]func(*model.Document){}, r.onSelect...)
	r.mu.Unlock()

	logutil.GetLogger(ctx).Debug("documents refreshed", zap.Int("count", len(out)))
	notifyChange(changeFns, out)
	if selectionLost {
		notifySelect(selectFns, nil)
	}
	return out, nil
}

// fetchAll pages through the listing until the backend's total is reached
// or a page comes back empty.
func (r *Registry) fetchAll(ctx context.Context) ([]model.Document, error) {
	var all []model.Document
	for skip := 0; ; {
		list, err := r.backend.ListDocuments(ctx, skip, r.limit)
		if err != nil {
			return nil, fmt.Errorf("list documents skip=%d: %w", skip, err)
		}
		all = append(all, list.Documents...)
		skip += len(list.Documents)
		if len(list.Documents) == 0 || skip >= list.Total {
			break
		}
	}
	return dedupe(all), nil
}

// Snapshot returns the cached listing without touching the backend.
func (r *Registry) Snapshot() []model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneDocs(r.docs)
}

// Select makes id the current selection when it is a known document. It
// never touches the backend. Unknown ids leave the selection as it is.
func (r *Registry) Select(id int64) (*model.Document, bool) {
	r.mu.Lock()
	idx := indexOf(r.docs, id)
	if idx < 0 {
		r.mu.Unlock()
		return nil, false
	}
	doc := r.docs[idx]
	changed := r.selected == nil || *r.selected != id
	selected := id
	r.selected = &selected
	selectFns := append([]func(*model.Document){}, r.onSelect...)
	r.mu.Unlock()

	if changed {
		notifySelect(selectFns, &doc)
	}
	return &doc, true
}

func (r *Registry) ClearSelection() {
	r.mu.Lock()
	had := r.selected != nil
	r.selected = nil
	selectFns := append([]func(*model.Document){}, r.onSelect...)
	r.mu.Unlock()
	if had {
		notifySelect(selectFns, nil)
	}
}

func (r *Registry) Selected() (*model.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return nil, false
	}
	idx := indexOf(r.docs, *r.selected)
	if idx < 0 {
		return nil, false
	}
	doc := r.docs[idx]
	return &doc, true
}

// Get fetches one document from the backend and folds it into the cache,
// adding it when the cache does not know it yet.
func (r *Registry) Get(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := r.backend.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	r.mu.Lock()
	changed := false
	switch idx := indexOf(r.docs, doc.ID); {
	case idx < 0:
		r.docs = append(r.docs, *doc)
		changed = true
	case r.docs[idx] != *doc:
		r.docs[idx] = *doc
		changed = true
	}
	out := cloneDocs(r.docs)
	changeFns := append([]func([]model.Document){}, r.onChange...)
	r.mu.Unlock()
	if changed {
		notifyChange(changeFns, out)
	}
	return doc, nil
}

// Delete removes id from the registry once the backend confirms. On failure
// the listing and selection are untouched and the error is returned. When
// id was selected, the selection is cleared as part of the same step.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	logger := logutil.GetLogger(ctx).With(zap.Int64("doc_id", id))
	if err := r.backend.DeleteDocument(ctx, id); err != nil {
		logger.Warn("delete document failed", zap.Error(err))
		return fmt.Errorf("delete document %d: %w", id, err)
	}

	r.mu.Lock()
	if idx := indexOf(r.docs, id); idx >= 0 {
		docs := make([]model.Document, 0, len(r.docs)-1)
		docs = append(docs, r.docs[:idx]...)
		r.docs = append(docs, r.docs[idx+1:]...)
	}
	cleared := r.selected != nil && *r.selected == id
	if cleared {
		r.selected = nil
	}
	out := cloneDocs(r.docs)
	changeFns := append([]func([]model.Document){}, r.onChange...)
	selectFns := append([]func(*model.Document){}, r.onSelect...)
	r.mu.Unlock()

	logger.Info("document deleted", zap.Bool("selection_cleared", cleared))
	notifyChange(changeFns, out)
	if cleared {
		notifySelect(selectFns, nil)
	}
	return nil
}

// Reindex asks the backend to reprocess id and marks the cache stale.
func (r *Registry) Reindex(ctx context.Context, id int64) (string, error) {
	ack, err := r.backend.Reindex(ctx, &id)
	if err != nil {
		return "", fmt.Errorf("reindex document %d: %w", id, err)
	}
	r.Bump()
	return ack.Message, nil
}

// DocumentUploaded records a freshly uploaded document and marks the
// listing stale so the next List picks up the backend's view.
func (r *Registry) DocumentUploaded(ctx context.Context, doc model.Document) {
	r.mu.Lock()
	if indexOf(r.docs, doc.ID) < 0 {
		r.docs = append(r.docs, doc)
	}
	r.token++
	out := cloneDocs(r.docs)
	changeFns := append([]func([]model.Document){}, r.onChange...)
	r.mu.Unlock()

	logutil.GetLogger(ctx).Debug("document registered", zap.Int64("doc_id", doc.ID), zap.String("name", doc.Name))
	notifyChange(changeFns, out)
}

// Pending lists cached documents the backend has not finished processing.
func (r *Registry) Pending() []model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, doc := range r.docs {
		if !doc.Processed {
			out = append(out, doc)
		}
	}
	return out
}

func indexOf(docs []model.Document, id int64) int {
	for i := range docs {
		if docs[i].ID == id {
			return i
		}
	}
	return -1
}

func dedupe(docs []model.Document) []model.Document {
	seen := make(map[int64]struct{}, len(docs))
	out := make([]model.Document, 0, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.ID]; ok {
			continue
		}
		seen[doc.ID] = struct{}{}
		out = append(out, doc)
	}
	return out
}

func cloneDocs(docs []model.Document) []model.Document {
	out := make([]model.Document, len(docs))
	copy(out, docs)
	return out
}

func notifyChange(fns []func([]model.Document), docs []model.Document) {
	for _, fn := range fns {
		fn(cloneDocs(docs))
	}
}

func notifySelect(fns []func(*model.Document), doc *model.Document) {
	for _, fn := range fns {
		if doc == nil {
			fn(nil)
			continue
		}
		copied := *doc
		fn(&copied)
	}
}
