package services

import (
	"context"
	"log"
	"time"

	"github.com/kramwallet/backend/internal/provider"
)

// Reconciler is the single background loop bridging out-of-band
// provider confirmations into the ledger. One per process, started only
// when a live provider is configured.
type Reconciler struct {
	deposits  *DepositService
	provider  provider.PaymentProvider
	interval  time.Duration
	batchSize int
	done      chan struct{}
}

func NewReconciler(deposits *DepositService, p provider.PaymentProvider, interval time.Duration, batchSize int) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Reconciler{
		deposits:  deposits,
		provider:  p,
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
}

// Run polls pending deposits until ctx is cancelled. Cancellation is
// observed between deposits and between cycles, never inside an atomic
// unit. Each deposit reconciles independently: a provider or credit
// failure is logged and retried next cycle, the loop itself never
// stops.
func (r *Reconciler) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) runCycle(ctx context.Context) {
	pending, err := r.deposits.ListPending(ctx, r.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[reconciler] list pending deposits: %v", err)
		}
		return
	}

	for _, dep := range pending {
		if ctx.Err() != nil {
			return
		}

		paid, err := r.provider.FindSuccessfulOperation(ctx, dep.Label)
		if err != nil {
			log.Printf("[reconciler] provider query label=%s: %v", dep.Label, err)
			continue
		}
		if !paid {
			continue
		}

		if err := r.deposits.ConfirmDeposit(ctx, dep); err != nil {
			log.Printf("[reconciler] credit deposit id=%d label=%s: %v", dep.ID, dep.Label, err)
		}
	}
}

// Done is closed once Run has observed cancellation and returned. The
// owner waits on it before closing the database handle.
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}
