package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/doconv/convertd/internal/convert"
)

// BatchFile is one document in a batch submission.
type BatchFile struct {
	Name string
	Data []byte
}

// FileResult is the delivered outcome for one file. Exactly one FileResult is
// produced per input file, keyed by job identifier, never by submission order.
type FileResult struct {
	Filename string
	JobID    string
	Result   *convert.Result
}

// ProgressFunc receives incremental progress for a file while its job runs.
type ProgressFunc func(filename string, progress int)

// ConvertBatch submits every file, then polls each job until it is terminal,
// the batch budget elapses, or ctx is cancelled. Budget expiry and
// cancellation are client-side classifications only: outstanding jobs keep
// running on the server and their results are simply never retrieved.
func (c *Client) ConvertBatch(ctx context.Context, files []BatchFile, format convert.Format, opts convert.Options, onProgress ProgressFunc) []FileResult {
	results := make([]FileResult, len(files))

	budget := c.BatchBudget
	if budget <= 0 {
		budget = DefaultBatchBudget
	}

	// The budget covers the whole batch, submission included.
	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	// Submit everything concurrently. A submission failure is recorded as a
	// failed result immediately; there is no retry. An abort mid-submission
	// counts as cancellation, not a server failure.
	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := files[i]
			results[i].Filename = f.Name

			jobID, err := c.Submit(ctx, f.Name, f.Data, format, opts)
			if err != nil {
				if ctx.Err() != nil {
					results[i].Result = cancelledResult()
				} else {
					results[i].Result = &convert.Result{
						Success: false,
						Message: "Conversion failed",
						Error:   fmt.Sprintf("submission failed: %v", err),
					}
				}
				return
			}
			results[i].JobID = jobID
		}(i)
	}
	wg.Wait()

	// Poll set: everything that was accepted.
	active := make(map[int]string)
	for i := range results {
		if results[i].JobID != "" && results[i].Result == nil {
			active[i] = results[i].JobID
		}
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	giveUp := func(res func() *convert.Result) {
		for i := range active {
			results[i].Result = res()
			delete(active, i)
		}
	}
	timedOut := func() *convert.Result {
		return &convert.Result{
			Success: false,
			Message: "Conversion failed",
			Error:   fmt.Sprintf("timed out after %s waiting for conversion", budget),
		}
	}

	for len(active) > 0 {
		// Abort and budget expiry take priority over a due poll, so an
		// already-elapsed budget never triggers another round of requests.
		select {
		case <-ctx.Done():
			giveUp(cancelledResult)
			continue
		case <-deadline.C:
			giveUp(timedOut)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			// User abort: stop polling. Already-dispatched jobs are not told
			// to stop.
			giveUp(cancelledResult)
		case <-deadline.C:
			giveUp(timedOut)
		case <-ticker.C:
			for i, jobID := range active {
				st, err := c.Status(ctx, jobID)
				if err != nil {
					// Transient poll errors are retried on the next tick;
					// ctx errors surface on the next select pass.
					continue
				}
				if onProgress != nil {
					onProgress(results[i].Filename, st.Progress)
				}
				if st.Status.Terminal() {
					results[i].Result = st.Result
					delete(active, i)
				}
			}
		}
	}

	return results
}

func cancelledResult() *convert.Result {
	return &convert.Result{
		Success: false,
		Message: "Conversion cancelled",
		Error:   "cancelled before completion",
	}
}
