/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tracksync

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bisturi/tracksync/internal/limiter"
	"github.com/bisturi/tracksync/model"
)

const progressEvery = 10

// OrderReconciler processes one order to a terminal outcome.
type OrderReconciler interface {
	Reconcile(ctx context.Context, ref model.OrderReference) model.Outcome
}

// RunnerOptions tunes a Runner.
type RunnerOptions struct {
	Concurrency int
	// Delay staggers task starts: task i waits Delay * (i mod Concurrency) once admitted.
	Delay time.Duration
	// Out receives progress lines. Defaults to io.Discard.
	Out   io.Writer
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Runner drives a batch of orders through a Reconciler with bounded concurrency.
type Runner struct {
	reconciler OrderReconciler
	limiter    *limiter.Limiter
	opts       RunnerOptions
}

func NewRunner(reconciler OrderReconciler, opts RunnerOptions) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{reconciler: reconciler, limiter: limiter.New(opts.Concurrency), opts: opts}
}

// Run reconciles every order and returns the report once all of them have finished.
// Outcomes are recorded in completion order. A cancelled ctx stops queued orders from
// starting; they are reported as exceptions.
func (r *Runner) Run(ctx context.Context, refs []model.OrderReference) *model.BatchReport {
	report := &model.BatchReport{
		Total:     len(refs),
		StartedAt: r.opts.Now(),
		Rows:      [][]string{},
		ErrorRows: [][]string{},
	}

	outcomes := make(chan model.Outcome)
	var wg sync.WaitGroup
	for idx, ref := range refs {
		idx, ref := idx, ref
		stagger := r.opts.Delay * time.Duration(idx%r.opts.Concurrency)

		result := limiter.Submit(ctx, r.limiter, func(ctx context.Context) (model.Outcome, error) {
			if err := r.opts.Sleep(ctx, stagger); err != nil {
				return model.Outcome{}, err
			}
			return r.reconciler.Reconcile(ctx, ref), nil
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			res := <-result
			if res.Err != nil {
				logrus.WithFields(logrus.Fields{"order_id": ref.OrderID, "error": res.Err.Error()}).Error("[ERR] Order not processed")
				outcomes <- model.Failed(ref.OrderID, ref.InvoiceNumber, model.ReasonException, res.Err.Error())
				return
			}
			outcomes <- res.Value
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for outcome := range outcomes {
		report.Add(outcome)
		if report.Processed%progressEvery == 0 || report.Processed == report.Total {
			r.printProgress(report)
		}
	}

	report.FinishedAt = r.opts.Now()
	return report
}

func (r *Runner) printProgress(report *model.BatchReport) {
	fmt.Fprintf(r.opts.Out, "Progress: %d/%d | ok %d | skipped %d | errors %d\n",
		report.Processed, report.Total, report.OK, report.Skipped, report.Errors)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
