package worker

import (
	"context"

	"github.com/robinjoseph08/golib/logger"
)

func (w *Worker) processCleanupChapters(ctx context.Context, job *Job) error {
	w.cache.CleanupChapters(ctx, job.IDs)
	return nil
}

func (w *Worker) processCleanupBookmarks(ctx context.Context, job *Job) error {
	w.cache.CleanupBookmarks(ctx, job.IDs)
	return nil
}

func (w *Worker) processClearAll(ctx context.Context, _ *Job) error {
	return w.cache.ClearAll(ctx)
}

func (w *Worker) processSweepStaging(ctx context.Context, _ *Job) error {
	removed, err := w.cache.SweepStaging(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.FromContext(ctx).Info("swept abandoned staging directories", logger.Data{"removed": removed})
	}
	return nil
}
