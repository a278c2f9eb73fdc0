package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/devJinesh/DocuQuery/internal/filestore"
)

// Exporter renders transcripts and writes them to a file store.
type Exporter struct {
	store    filestore.Store
	renderer *renderer
	now      func() time.Time
}

func New(store filestore.Store) *Exporter {
	return &Exporter{store: store, renderer: newRenderer(), now: time.Now}
}

// FileName is conversation_<id>_<yyyymmdd_hhmmss>.<ext>.
func FileName(id int64, format Format, at time.Time) string {
	return fmt.Sprintf("conversation_%d_%s.%s", id, at.Format("20060102_150405"), format.Ext())
}

func (e *Exporter) Render(t Transcript, format Format) ([]byte, error) {
	return e.renderer.Render(t, format, e.now())
}

// Export writes t in format and returns the stored location.
func (e *Exporter) Export(ctx context.Context, t Transcript, format Format) (string, error) {
	now := e.now()
	data, err := e.renderer.Render(t, format, now)
	if err != nil {
		return "", err
	}
	name := FileName(t.ID, format, now)
	loc, err := e.store.Save(ctx, name, nopCloser{bytes.NewReader(data)}, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("save export %s: %w", name, err)
	}
	logutil.GetLogger(ctx).Info("conversation exported",
		zap.Int64("conversation_id", t.ID),
		zap.String("format", string(format)),
		zap.String("store", e.store.Type()),
		zap.String("location", loc))
	return loc, nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
