package job

import (
	"context"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/devJinesh/DocuQuery/internal/model"
)

// DocumentLister is satisfied by the registry. Pending lists documents the
// client already knows to be unprocessed, such as fresh uploads that a
// refresh has not seen yet.
type DocumentLister interface {
	Refresh(ctx context.Context) ([]model.Document, error)
	Pending() []model.Document
}

// DocumentStatusJob refreshes the document listing and reports documents
// whose processing finished since the previous run.
type DocumentStatusJob struct {
	docs        DocumentLister
	onProcessed func(model.Document)

	mu      sync.Mutex
	pending map[int64]struct{}
}

func NewDocumentStatusJob(docs DocumentLister, onProcessed func(model.Document)) *DocumentStatusJob {
	return &DocumentStatusJob{docs: docs, onProcessed: onProcessed, pending: make(map[int64]struct{})}
}

func (j *DocumentStatusJob) Name() string {
	return "document_status"
}

func (j *DocumentStatusJob) Run(ctx context.Context) error {
	j.mu.Lock()
	for _, doc := range j.docs.Pending() {
		j.pending[doc.ID] = struct{}{}
	}
	j.mu.Unlock()

	docs, err := j.docs.Refresh(ctx)
	if err != nil {
		return err
	}
	var done []model.Document
	j.mu.Lock()
	next := make(map[int64]struct{}, len(docs))
	for _, doc := range docs {
		if !doc.Processed {
			next[doc.ID] = struct{}{}
			continue
		}
		if _, was := j.pending[doc.ID]; was {
			done = append(done, doc)
		}
	}
	j.pending = next
	j.mu.Unlock()

	logger := logutil.GetLogger(ctx)
	for _, doc := range done {
		logger.Info("document processed", zap.Int64("doc_id", doc.ID), zap.String("name", doc.Name), zap.Int("pages", doc.PageCount))
		if j.onProcessed != nil {
			j.onProcessed(doc)
		}
	}
	if len(next) > 0 {
		logger.Debug("documents still processing", zap.Int("count", len(next)))
	}
	return nil
}
