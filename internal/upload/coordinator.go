package upload

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

type Uploader interface {
	Upload(ctx context.Context, fileName string, r io.Reader) (*model.Document, error)
}

// Reporter receives every successfully uploaded document, in input order.
type Reporter interface {
	DocumentUploaded(ctx context.Context, doc model.Document)
}

type Options struct {
	// ClearDelay drops a finished batch from Tasks after the delay. Zero
	// keeps finished batches visible.
	ClearDelay time.Duration
	// Concurrency above one uploads through a bounded pool; one keeps the
	// strict file-after-file order.
	Concurrency int
	Validators  []Validator
}

type entry struct {
	batch uint64
	task  model.UploadTask
}

// Coordinator uploads batches of files, one file at a time by default, and
// records an independent terminal outcome for each. Failures never escape
// as errors; they become error tasks.
type Coordinator struct {
	uploader Uploader
	reporter Reporter
	opts     Options

	runMu sync.Mutex

	mu         sync.Mutex
	entries    []*entry
	batchSeq   uint64
	onProgress []func([]model.UploadTask)
}

func NewCoordinator(uploader Uploader, reporter Reporter, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Coordinator{uploader: uploader, reporter: reporter, opts: opts}
}

// OnProgress registers fn to receive the live task list after every
// transition.
func (c *Coordinator) OnProgress(fn func([]model.UploadTask)) {
	c.mu.Lock()
	c.onProgress = append(c.onProgress, fn)
	c.mu.Unlock()
}

// Tasks is a snapshot of every visible task, oldest batch first.
func (c *Coordinator) Tasks() []model.UploadTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Enqueue queues files as one batch and blocks until every file in it has
// reached a terminal status. Batches run one after another. The returned
// tasks are this batch's, in input order.
func (c *Coordinator) Enqueue(ctx context.Context, files []Source) []model.UploadTask {
	logger := logutil.GetLogger(ctx)
	if len(files) == 0 {
		logger.Debug("upload batch ignored", zap.Error(appErr.ErrNoFiles))
		return nil
	}

	c.mu.Lock()
	c.batchSeq++
	batch := c.batchSeq
	items := make([]*entry, len(files))
	for i, f := range files {
		items[i] = &entry{batch: batch, task: model.UploadTask{FileName: f.Name(), Status: model.UploadQueued}}
		c.entries = append(c.entries, items[i])
	}
	c.notifyLocked()
	c.mu.Unlock()

	c.runMu.Lock()
	defer c.runMu.Unlock()

	logger = logger.With(zap.Uint64("batch", batch), zap.Int("files", len(files)))
	logger.Info("upload batch started", zap.Int("concurrency", c.opts.Concurrency))
	if c.opts.Concurrency == 1 {
		for i, f := range files {
			if doc := c.run(ctx, items[i], f); doc != nil && c.reporter != nil {
				c.reporter.DocumentUploaded(ctx, *doc)
			}
		}
	} else {
		c.runPool(ctx, items, files)
	}

	c.mu.Lock()
	result := make([]model.UploadTask, len(items))
	failed := 0
	for i, item := range items {
		result[i] = cloneTask(item.task)
		if item.task.Status == model.UploadError {
			failed++
		}
	}
	c.mu.Unlock()
	logger.Info("upload batch finished", zap.Int("succeeded", len(items)-failed), zap.Int("failed", failed))

	if c.opts.ClearDelay > 0 {
		time.AfterFunc(c.opts.ClearDelay, func() { c.clearBatch(batch) })
	}
	return result
}

// runPool uploads with bounded parallelism while reporting successes in
// input order.
func (c *Coordinator) runPool(ctx context.Context, items []*entry, files []Source) {
	var (
		reportMu sync.Mutex
		done     = make([]*model.Document, len(files))
		finished = make([]bool, len(files))
		next     int
	)
	eg := &errgroup.Group{}
	eg.SetLimit(c.opts.Concurrency)
	for i := range files {
		i := i
		eg.Go(func() error {
			doc := c.run(ctx, items[i], files[i])
			reportMu.Lock()
			defer reportMu.Unlock()
			done[i] = doc
			finished[i] = true
			for next < len(files) && finished[next] {
				if done[next] != nil && c.reporter != nil {
					c.reporter.DocumentUploaded(ctx, *done[next])
				}
				next++
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (c *Coordinator) run(ctx context.Context, item *entry, src Source) *model.Document {
	logger := logutil.GetLogger(ctx).With(zap.String("file", src.Name()))
	c.transition(item, model.UploadUploading, nil, "")

	doc, err := c.attempt(ctx, src)
	if err != nil {
		detail := appErr.Detail(err)
		logger.Warn("upload failed", zap.Error(err), zap.String("detail", detail))
		c.transition(item, model.UploadError, nil, detail)
		return nil
	}
	logger.Debug("upload succeeded", zap.Int64("doc_id", doc.ID))
	id := doc.ID
	c.transition(item, model.UploadSuccess, &id, "")
	return doc
}

func (c *Coordinator) attempt(ctx context.Context, src Source) (*model.Document, error) {
	for _, validate := range c.opts.Validators {
		if err := validate(ctx, src); err != nil {
			return nil, err
		}
	}
	rc, err := src.Open()
	if err != nil {
		return nil, &ValidationError{FileName: src.Name(), Reason: "cannot open file: " + err.Error()}
	}
	defer rc.Close()
	doc, err := c.uploader.Upload(ctx, src.Name(), rc)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", src.Name(), err)
	}
	return doc, nil
}

// transition applies a status change unless the task is already terminal.
func (c *Coordinator) transition(item *entry, status model.UploadStatus, docID *int64, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item.task.Status.Terminal() {
		return
	}
	item.task.Status = status
	item.task.ResultDocumentID = docID
	item.task.ErrorDetail = detail
	c.notifyLocked()
}

func (c *Coordinator) clearBatch(batch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0]
	removed := false
	for _, e := range c.entries {
		if e.batch == batch {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
	if removed {
		c.notifyLocked()
	}
}

func (c *Coordinator) snapshotLocked() []model.UploadTask {
	out := make([]model.UploadTask, len(c.entries))
	for i, e := range c.entries {
		out[i] = cloneTask(e.task)
	}
	return out
}

// notifyLocked runs observers under the lock so they see transitions in
// order; observers must not call back into the coordinator.
func (c *Coordinator) notifyLocked() {
	if len(c.onProgress) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, fn := range c.onProgress {
		fn(snap)
	}
}

func cloneTask(t model.UploadTask) model.UploadTask {
	if t.ResultDocumentID != nil {
		id := *t.ResultDocumentID
		t.ResultDocumentID = &id
	}
	return t
}
