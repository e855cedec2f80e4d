package pipeline

import (
	"context"
	"log/slog"
)

// Worker runs queued preview jobs.
type Worker struct {
	engine *Engine
	log    *slog.Logger
}

func NewWorker(engine *Engine, log *slog.Logger) *Worker {
	return &Worker{engine: engine, log: log}
}

// Process runs one job's preview pass. Cancelling either ctx or the job
// stops new dispatches; completed items are kept on the job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "document", job.Document)

	if job.ctx.Err() != nil {
		log.Info("job cancelled before start")
		job.Finish(StatusCancelled, nil, nil)
		return
	}
	stop := context.AfterFunc(ctx, job.cancel)
	defer stop()

	job.SetStatus(StatusRunning, "previewing")
	log.Info("preview started")

	res, err := w.engine.preview(job.ctx, job.request, job.SetProgress)
	switch {
	case err != nil:
		log.Error("preview failed", "error", err)
		job.Finish(StatusFailed, nil, err)
	case res.Cancelled:
		log.Info("preview cancelled", "items", res.Count)
		job.Finish(StatusCancelled, res, nil)
	default:
		log.Info("preview complete", "items", res.Count)
		job.Finish(StatusCompleted, res, nil)
	}
}
