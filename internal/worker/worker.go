package worker

import (
	"fmt"

	"go.uber.org/zap"
)

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
	log        *zap.Logger
}

func NewWorker(id int, pool *jobChannelPool, log *zap.Logger) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
		log:        log,
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.execute(job)
		}
	}()
}

// execute runs one job; a panic is reported to the job instead of killing the worker.
func (w *Worker) execute(job Job) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job %s panicked: %v", job.Key, r)
			w.log.Error("worker recovered from panic", zap.Int("worker", w.id), zap.String("key", job.Key), zap.Any("panic", r))
			if job.OnPanic != nil {
				job.OnPanic(err)
			}
		}
	}()
	job.Run()
}
