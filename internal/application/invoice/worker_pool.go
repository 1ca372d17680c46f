package invoice

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/3tcapital/facturador/internal/core/invoice"
)

// authorizeJob is one invoice queued for authorization.
type authorizeJob struct {
	ID    uuid.UUID
	Index int
}

// BatchItem is the outcome of authorizing one invoice of a batch.
type BatchItem struct {
	ID      uuid.UUID        `json:"id"`
	State   invoice.State    `json:"state,omitempty"`
	Number  *int64           `json:"number,omitempty"`
	Invoice *invoice.Invoice `json:"-"`
	Error   string           `json:"error,omitempty"`
	Err     error            `json:"-"`
	Index   int              `json:"-"`
}

// Failed reports whether the invoice could not be processed.
func (b BatchItem) Failed() bool {
	return b.Err != nil
}

// authorizePool runs Authorize over a set of invoices with a fixed number of
// workers.
type authorizePool struct {
	workerCount int
	jobChan     chan authorizeJob
	resultChan  chan BatchItem
	authorize   func(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

func newAuthorizePool(ctx context.Context, workerCount int, authorize func(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)) *authorizePool {
	poolCtx, cancel := context.WithCancel(ctx)
	return &authorizePool{
		workerCount: workerCount,
		jobChan:     make(chan authorizeJob, workerCount*2),
		resultChan:  make(chan BatchItem, workerCount*2),
		authorize:   authorize,
		ctx:         poolCtx,
		cancel:      cancel,
	}
}

func (p *authorizePool) start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stop waits for in-flight jobs and closes the results channel.
func (p *authorizePool) stop() {
	close(p.jobChan)
	p.wg.Wait()
	p.cancel()
	close(p.resultChan)
}

func (p *authorizePool) submit(job authorizeJob) error {
	select {
	case p.jobChan <- job:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *authorizePool) results() <-chan BatchItem {
	return p.resultChan
}

func (p *authorizePool) worker() {
	defer p.wg.Done()

	for job := range p.jobChan {
		item := BatchItem{ID: job.ID, Index: job.Index}
		if err := p.ctx.Err(); err != nil {
			item.Err = err
		} else {
			inv, err := p.authorize(p.ctx, job.ID)
			item.Invoice, item.Err = inv, err
		}
		if item.Err != nil {
			item.Error = item.Err.Error()
		} else {
			item.State = item.Invoice.State
			item.Number = item.Invoice.Number
		}
		p.resultChan <- item
	}
}

// AuthorizeMany authorizes several invoices concurrently. Each invoice is
// still submitted as a single document; failures are reported per item.
// Repeated ids are processed once. Results come back in the order of first
// appearance.
func (l *Lifecycle) AuthorizeMany(ctx context.Context, ids []uuid.UUID, workers int) BatchResult {
	ids = lo.Uniq(ids)
	if workers <= 0 {
		workers = 4
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	agg := newResultAggregator(len(ids))
	if len(ids) == 0 {
		return agg.result()
	}

	pool := newAuthorizePool(ctx, workers, l.Authorize)
	pool.start()

	go func() {
		for i, id := range ids {
			if err := pool.submit(authorizeJob{ID: id, Index: i}); err != nil {
				agg.add(BatchItem{ID: id, Index: i, Err: err, Error: err.Error()})
			}
		}
		pool.stop()
	}()

	for item := range pool.results() {
		agg.add(item)
	}

	res := agg.result()
	l.log.Info("Batch authorization finished",
		"total", res.Stats.Total,
		"authorized", res.Stats.Authorized,
		"rejected", res.Stats.Rejected,
		"failed", res.Stats.Failed,
		"duration_ms", res.Stats.DurationMs)
	return res
}
