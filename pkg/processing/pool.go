package processing

import (
	"errors"
	"sync"
	"time"

	customlog "github.com/open-teleop/rov-bridge/pkg/log"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("processing pool is not running")

// ErrQueueFull is returned by Submit when the job was dropped.
var ErrQueueFull = errors.New("processing pool queue is full")

// Job is one unit of work. Name is used for logs and per-route stats.
type Job struct {
	Name     string
	Run      func() error
	Enqueued time.Time
}

// ResultHandler is called by the worker after each job.
type ResultHandler func(job Job, err error, elapsed time.Duration)

// ProcessingPool runs jobs on a fixed set of workers fed from a bounded
// queue. With one worker, jobs run strictly in submission order.
type ProcessingPool struct {
	name          string
	workerCount   int
	logger        customlog.Logger
	queue         chan Job
	running       bool
	wg            sync.WaitGroup
	mu            sync.Mutex
	resultHandler ResultHandler
	queueSize     int
	metricsMu     sync.Mutex
	metrics       PoolMetrics
}

// PoolMetrics tracks metrics for a processing pool
type PoolMetrics struct {
	ProcessedCount    int64 `json:"processed"`
	ErrorCount        int64 `json:"errors"`
	QueuedCount       int64 `json:"queued"`
	DroppedCount      int64 `json:"dropped"`
	LastProcessedTime int64 `json:"lastProcessedNs"`
	ProcessingTimeAvg int64 `json:"avgProcessingUs"` // in microseconds
	ProcessingTimeMax int64 `json:"maxProcessingUs"` // in microseconds
	QueueWaitMax      int64 `json:"maxQueueWaitUs"`  // in microseconds
}

// NewProcessingPool creates a new processing pool
func NewProcessingPool(
	name string,
	workerCount int,
	queueSize int,
	logger customlog.Logger,
) *ProcessingPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &ProcessingPool{
		name:        name,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      logger,
		queue:       make(chan Job, queueSize),
	}
}

// SetResultHandler sets the result handler function
func (p *ProcessingPool) SetResultHandler(handler ResultHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resultHandler = handler
}

// Submit queues job without blocking. A full queue drops the job.
func (p *ProcessingPool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		p.logger.Warnf("%s pool not running, discarding %s", p.name, job.Name)
		return ErrPoolStopped
	}

	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now()
	}

	select {
	case p.queue <- job:
		p.metricsMu.Lock()
		p.metrics.QueuedCount++
		p.metricsMu.Unlock()
		return nil
	default:
		p.metricsMu.Lock()
		p.metrics.DroppedCount++
		p.metricsMu.Unlock()
		p.logger.Warnf("%s pool queue is full, discarding %s", p.name, job.Name)
		return ErrQueueFull
	}
}

// Start starts the processing pool workers
func (p *ProcessingPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.logger.Infof("Starting %s pool with %d workers", p.name, p.workerCount)

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop drains queued jobs and waits for the workers. A stopped pool cannot
// be restarted.
func (p *ProcessingPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	// Submit holds mu while sending, so no send can race the close.
	close(p.queue)
	p.mu.Unlock()

	p.logger.Infof("Stopping %s pool", p.name)
	p.wg.Wait()
	p.logger.Infof("%s pool stopped", p.name)

	p.logMetrics()
}

func (p *ProcessingPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debugf("%s pool worker %d started", p.name, id)

	for job := range p.queue {
		p.mu.Lock()
		resultHandler := p.resultHandler
		p.mu.Unlock()

		startTime := time.Now()
		err := p.run(job)
		elapsed := time.Since(startTime)

		processingTime := elapsed.Microseconds()
		queueWait := startTime.Sub(job.Enqueued).Microseconds()

		p.metricsMu.Lock()
		p.metrics.ProcessedCount++
		p.metrics.LastProcessedTime = time.Now().UnixNano()
		if p.metrics.ProcessingTimeAvg == 0 {
			p.metrics.ProcessingTimeAvg = processingTime
		} else {
			// Simple moving average
			p.metrics.ProcessingTimeAvg = (p.metrics.ProcessingTimeAvg + processingTime) / 2
		}
		if processingTime > p.metrics.ProcessingTimeMax {
			p.metrics.ProcessingTimeMax = processingTime
		}
		if queueWait > p.metrics.QueueWaitMax {
			p.metrics.QueueWaitMax = queueWait
		}
		if err != nil {
			p.metrics.ErrorCount++
		}
		p.metricsMu.Unlock()

		if err != nil {
			p.logger.Errorf("Error processing %s in %s pool: %v", job.Name, p.name, err)
		}

		if resultHandler != nil {
			resultHandler(job, err, elapsed)
		}
	}

	p.logger.Debugf("%s pool worker %d stopped", p.name, id)
}

// run executes job, turning a panic into an error so one bad event cannot
// kill the worker.
func (p *ProcessingPool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	if job.Run == nil {
		return nil
	}
	return job.Run()
}

// GetMetrics returns a copy of the current metrics
func (p *ProcessingPool) GetMetrics() PoolMetrics {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	return p.metrics
}

func (p *ProcessingPool) logMetrics() {
	metrics := p.GetMetrics()

	p.logger.Infof("%s pool metrics: processed=%d, errors=%d, dropped=%d, avg_time=%dµs, max_time=%dµs",
		p.name, metrics.ProcessedCount, metrics.ErrorCount, metrics.DroppedCount,
		metrics.ProcessingTimeAvg, metrics.ProcessingTimeMax)
}

// GetName returns the pool name
func (p *ProcessingPool) GetName() string {
	return p.name
}

// GetQueueLength returns the current length of the queue
func (p *ProcessingPool) GetQueueLength() int {
	return len(p.queue)
}

// GetQueueCapacity returns the capacity of the queue
func (p *ProcessingPool) GetQueueCapacity() int {
	return p.queueSize
}
