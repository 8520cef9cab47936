package convert

import (
	"context"
	"fmt"
	"os"

	"github.com/hazyhaar/mdconv/docmodel"
)

// Recover handles documents left over by a previous run. Call it once at
// boot before accepting uploads. Documents stuck in processing are failed;
// pending documents are re-queued when their upload is still on disk and
// failed otherwise. It returns the number of documents re-queued.
func (c *Converter) Recover(ctx context.Context) (int, error) {
	stuck, err := c.store.ListByStatus(ctx, docmodel.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list processing documents: %w", err)
	}
	for _, doc := range stuck {
		c.logger.Warn("recovery: failing interrupted document", "id", doc.ID, "filename", doc.Filename)
		c.failStale(ctx, doc, msgInterrupted)
	}

	pending, err := c.store.ListByStatus(ctx, docmodel.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("list pending documents: %w", err)
	}
	requeued := 0
	for _, doc := range pending {
		if _, err := os.Stat(doc.SourcePath); err != nil {
			c.logger.Warn("recovery: upload missing", "id", doc.ID, "path", doc.SourcePath)
			if _, err := c.store.Transition(ctx, doc.ID, docmodel.StatusProcessing, nil); err != nil {
				c.logger.Error("recovery: start processing", "id", doc.ID, "error", err)
				continue
			}
			c.failStale(ctx, doc, "uploaded file is missing")
			continue
		}
		c.schedule(doc.ID)
		requeued++
	}
	if len(stuck) > 0 || requeued > 0 {
		c.logger.Info("recovery done", "failed", len(stuck), "requeued", requeued)
	}
	return requeued, nil
}

func (c *Converter) failStale(ctx context.Context, doc *docmodel.Document, msg string) {
	_, err := c.store.Transition(ctx, doc.ID, docmodel.StatusFailed, func(d *docmodel.Document) {
		d.Error = msg
		d.Markdown = ""
	})
	if err != nil {
		c.logger.Error("recovery: record failure", "id", doc.ID, "error", err)
		return
	}
	c.metrics.finished(doc.SourceType, docmodel.StatusFailed, 0)
	c.removeSource(doc)
}
