package job

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/doconv/convertd/internal/convert"
)

// PayloadStore supplies the uploaded file bytes staged at submission time and
// releases them once the job is terminal.
type PayloadStore interface {
	Get(jobID string) ([]byte, error)
	Delete(jobID string) error
}

// Dispatcher drains a FIFO queue of job IDs with a fixed pool of workers, so at
// most maxWorkers conversions run at once. Admission is unconditional: Enqueue
// never blocks and never rejects, whatever the queue depth.
type Dispatcher struct {
	store      *Store
	engine     convert.Engine
	payloads   PayloadStore
	maxWorkers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(store *Store, engine convert.Engine, payloads PayloadStore, maxWorkers int) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	d := &Dispatcher{
		store:      store,
		engine:     engine,
		payloads:   payloads,
		maxWorkers: maxWorkers,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *Dispatcher) MaxWorkers() int {
	return d.maxWorkers
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.maxWorkers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Enqueue appends a job ID to the queue. Safe to call from any goroutine.
func (d *Dispatcher) Enqueue(jobID string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Printf("Dispatcher closed, dropping job %s", jobID)
		return
	}
	d.queue = append(d.queue, jobID)
	d.mu.Unlock()
	d.cond.Signal()
}

// QueueLen reports the number of jobs waiting for a worker.
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Stop closes the queue. Workers finish the jobs already queued and exit; use
// Wait to block until they have.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// next blocks until a job is available or the dispatcher is stopped.
func (d *Dispatcher) next() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.closed {
		d.cond.Wait()
	}
	if len(d.queue) == 0 {
		return "", false
	}
	id := d.queue[0]
	d.queue = d.queue[1:]
	return id, true
}

func (d *Dispatcher) worker(workerID int) {
	defer d.wg.Done()
	for {
		jobID, ok := d.next()
		if !ok {
			return
		}
		d.run(workerID, jobID)
	}
}

// run executes a single job against the engine. Every failure path, including
// a panic out of the engine, ends in a terminal failed record; one bad job must
// never take the worker down. The staged upload is released whichever way the
// job ends, so no exit path leaves its bytes behind.
func (d *Dispatcher) run(workerID int, jobID string) {
	defer func() {
		if err := d.payloads.Delete(jobID); err != nil {
			log.Printf("Worker %d: release staged upload for %s: %v", workerID, jobID, err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker %d: panic on job %s: %v", workerID, jobID, r)
			d.store.Fail(jobID, &convert.Result{
				Success: false,
				Message: "Internal server error",
				Error:   fmt.Sprintf("conversion panicked: %v", r),
			})
		}
	}()

	j, err := d.store.Get(jobID)
	if err != nil {
		log.Printf("Worker %d: job %s vanished before dispatch: %v", workerID, jobID, err)
		return
	}

	if err := d.store.MarkProcessing(jobID); err != nil {
		log.Printf("Worker %d: cannot claim job %s: %v", workerID, jobID, err)
		return
	}

	log.Printf("Worker %d: converting %s (%s -> %s)", workerID, jobID, j.Filename, j.OutputFormat)

	data, err := d.payloads.Get(jobID)
	if err != nil {
		d.store.Fail(jobID, &convert.Result{
			Success: false,
			Message: "Internal server error",
			Error:   fmt.Sprintf("read staged upload: %v", err),
		})
		return
	}

	// The engine call is blocking and not time-bounded. An abandoned client
	// does not interrupt it, so the job runs under the background context.
	content, metadata, err := d.engine.Convert(context.Background(), j.Filename, data, j.OutputFormat, j.Options)

	d.store.SetProgress(jobID, 90)

	if err != nil {
		d.store.Fail(jobID, &convert.Result{
			Success: false,
			Message: "Conversion failed",
			Error:   err.Error(),
		})
		log.Printf("Worker %d: job %s failed: %v", workerID, jobID, err)
		return
	}

	d.store.Complete(jobID, &convert.Result{
		Success:  true,
		Message:  "Document converted successfully",
		Content:  content,
		Metadata: metadata,
	})
	log.Printf("Worker %d: job %s completed", workerID, jobID)
}
