package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrDispatcherBusy is returned when the submission queue is full.
	ErrDispatcherBusy = errors.New("dispatcher is busy, please retry shortly")
	// ErrDispatcherStopped is returned for work submitted after Stop.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
	// ErrJobCanceled is reported to jobs dropped by CancelKey.
	ErrJobCanceled = errors.New("job canceled")
)

// Job is one unit of work. Jobs sharing a Key run in submission order, and keys
// are served round-robin so one busy key cannot starve the others.
type Job struct {
	Key      string
	Run      func()
	OnPanic  func(error)
	OnCancel func(error)

	stop bool
}

type keyQueue struct {
	jobs     []Job
	enqueued bool
}

type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job // interface for outer jobs get in the dispatcher
	log      *zap.Logger

	mu        sync.Mutex
	queues    map[string]*keyQueue // job queue for each key
	ready     *list.List           // round-robin order of keys with pending jobs
	positions map[string]*list.Element

	quit     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "dispatcher"))
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(minWorkers, maxWorkers, idleTimeout, log),
		jobQueue:  make(chan Job, queueSize),
		log:       log,
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit enqueues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	if job.Run == nil {
		return errors.New("job has no Run func")
	}
	select {
	case <-d.quit:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		d.log.Warn("job rejected, queue full", zap.String("key", job.Key))
		return ErrDispatcherBusy
	}
}

// Do runs fn on a pool worker and waits for its result. A panic inside fn is
// returned as an error.
func Do[T any](ctx context.Context, d *Dispatcher, key string, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	var zero T
	done := make(chan result, 1)
	job := Job{
		Key: key,
		Run: func() {
			if err := ctx.Err(); err != nil {
				done <- result{err: err}
				return
			}
			val, err := fn(ctx)
			done <- result{val: val, err: err}
		},
		OnPanic:  func(err error) { done <- result{err: err} },
		OnCancel: func(err error) { done <- result{err: err} },
	}
	if err := d.Submit(job); err != nil {
		return zero, err
	}
	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-d.quit:
		return zero, ErrDispatcherStopped
	}
}

// Stop stops accepting work. Queued jobs that were not yet assigned are dropped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.close()
	})
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the key in the front of the round-robin queue
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

// CancelKey drops every queued job for key that has not been assigned yet and
// reports ErrJobCanceled to each of them. It returns the number dropped.
func (d *Dispatcher) CancelKey(key string) int {
	d.mu.Lock()
	var dropped []Job
	if q := d.queues[key]; q != nil {
		dropped = q.jobs
	}
	delete(d.queues, key)
	if elem, ok := d.positions[key]; ok {
		d.ready.Remove(elem)
		delete(d.positions, key)
	}
	d.mu.Unlock()

	for _, job := range dropped {
		if job.OnCancel != nil {
			job.OnCancel(ErrJobCanceled)
		}
	}
	if len(dropped) > 0 {
		d.log.Debug("canceled queued jobs", zap.String("key", key), zap.Int("count", len(dropped)))
	}
	return len(dropped)
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Key] = d.ready.PushBack(job.Key)
}

// dispatchOne takes the first key in the ready list and hands its oldest job to a worker
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// last pending job for this key, it leaves the ready list
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	meta := d.pool.acquire()
	if meta == nil {
		return false
	}
	d.log.Debug("assign job", zap.String("key", key), zap.Int("worker", meta.id))
	meta.ch <- job
	return true
}
