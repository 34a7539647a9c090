package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/pagecache"
)

const (
	JobTypeCleanupChapters  = "cleanup_chapters"
	JobTypeCleanupBookmarks = "cleanup_bookmarks"
	JobTypeClearAll         = "clear_all"
	JobTypeSweepStaging     = "sweep_staging"

	defaultSweepInterval = 15 * time.Minute
	queueDepth           = 64
)

// Job is a unit of cache maintenance. IDs are chapter ids or series ids
// depending on Type.
type Job struct {
	Type      string
	IDs       []int
	CreatedAt time.Time
}

// Worker runs cache maintenance off the request path. Jobs are fire and
// forget: failures are logged and never reported back to whoever queued
// them.
type Worker struct {
	config *config.Config
	log    logger.Logger
	cache  *pagecache.Cache

	processFuncs  map[string]func(ctx context.Context, job *Job) error
	sweepInterval time.Duration

	mu     sync.RWMutex
	closed bool

	queue          chan *Job
	shutdown       chan struct{}
	doneSweeping   chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, cache *pagecache.Cache) *Worker {
	w := &Worker{
		config:        cfg,
		log:           logger.New(),
		cache:         cache,
		sweepInterval: defaultSweepInterval,

		queue:          make(chan *Job, queueDepth),
		shutdown:       make(chan struct{}),
		doneSweeping:   make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
	}

	w.processFuncs = map[string]func(ctx context.Context, job *Job) error{
		JobTypeCleanupChapters:  w.processCleanupChapters,
		JobTypeCleanupBookmarks: w.processCleanupBookmarks,
		JobTypeClearAll:         w.processClearAll,
		JobTypeSweepStaging:     w.processSweepStaging,
	}

	return w
}

func (w *Worker) Start() {
	go w.sweep()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processJobs()
	}
}

// Enqueue queues a job. It blocks while the queue is full and returns false
// once the worker is shutting down.
func (w *Worker) Enqueue(job *Job) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.log.Warn("dropping job queued after shutdown", logger.Data{"type": job.Type, "ids": job.IDs})
		return false
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	w.queue <- job
	return true
}

// EnqueueChapterCleanup queues the removal of the cached pages of chapters.
func (w *Worker) EnqueueChapterCleanup(_ context.Context, chapterIDs []int) {
	if len(chapterIDs) == 0 {
		return
	}
	w.Enqueue(&Job{Type: JobTypeCleanupChapters, IDs: chapterIDs})
}

// EnqueueBookmarkCleanup queues the removal of staged bookmarks of series.
func (w *Worker) EnqueueBookmarkCleanup(_ context.Context, seriesIDs []int) {
	if len(seriesIDs) == 0 {
		return
	}
	w.Enqueue(&Job{Type: JobTypeCleanupBookmarks, IDs: seriesIDs})
}

// EnqueueClearAll queues the removal of the whole cache.
func (w *Worker) EnqueueClearAll(_ context.Context) {
	w.Enqueue(&Job{Type: JobTypeClearAll})
}

func (w *Worker) sweep() {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			w.doneSweeping <- struct{}{}
			return
		case <-ticker.C:
			w.Enqueue(&Job{Type: JobTypeSweepStaging})
		}
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			w.drain()
			w.doneProcessing <- struct{}{}
			return
		case job := <-w.queue:
			w.process(job)
		}
	}
}

// drain runs whatever is still queued.
func (w *Worker) drain() {
	for {
		select {
		case job := <-w.queue:
			w.process(job)
		default:
			return
		}
	}
}

func (w *Worker) process(job *Job) {
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return
	}
	log := w.log.ID(id.String()).Root(logger.Data{"type": job.Type, "hostname": w.config.Hostname})
	ctx := log.WithContext(context.Background())

	fn, ok := w.processFuncs[job.Type]
	if !ok {
		log.Error("can't find process function for type")
		return
	}

	start := time.Now()
	if err := fn(ctx, job); err != nil {
		log.Err(err).Error("process error")
		return
	}
	log.Debug("processed job", logger.Data{
		"ids":         job.IDs,
		"queued_ms":   start.Sub(job.CreatedAt).Milliseconds(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (w *Worker) Shutdown() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	close(w.shutdown)

	<-w.doneSweeping
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
}
