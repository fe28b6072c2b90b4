package detection

import (
	"context"
	"sync"
)

// DetectBatch runs the single-text pipeline over each text independently
// and returns one resolved entity list per input, aligned by index. Texts
// are processed by a bounded worker pool; completion order never affects
// output order. The first failure cancels the remaining work and fails the
// whole batch.
func (o *Orchestrator) DetectBatch(ctx context.Context, texts []string, detectorNames []string, labels []string, threshold *float64) ([][]Entity, error) {
	// Fail on bad parameters before starting any worker.
	if _, _, err := o.resolveRequest(detectorNames, threshold); err != nil {
		return nil, err
	}

	results := make([][]Entity, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := o.batchWorkers
	if workers > len(texts) {
		workers = len(texts)
	}

	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				entities, err := o.Detect(ctx, texts[idx], detectorNames, labels, threshold)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
					continue
				}
				results[idx] = entities
			}
		}()
	}

	for idx := range texts {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
