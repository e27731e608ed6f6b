package acceptance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/pciedma/datarecording"
	"github.com/sarchlab/pciedma/dma/pciewrite"
	"github.com/sarchlab/pciedma/monitoring"
	"github.com/sarchlab/pciedma/sim"
	"github.com/sarchlab/pciedma/tracing"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CaseTable is the name of the table that holds one row per case.
const CaseTable = "cases"

// CaseRow is the recorded outcome of one case.
type CaseRow struct {
	CaseID     int
	Worker     int
	Len        int64
	PCIeOffset int64
	RAMOffset  int64
	Pause      bool
	PauseRAM   bool
	Tag        int64
	Passed     bool
	Cycles     int64
	TLPs       int64
	Error      string
}

// Summary aggregates the results of a sweep.
type Summary struct {
	Total       int
	Passed      int
	Failed      []CaseResult
	AvgLatency  float64
	MaxLatency  float64
	TotalTLPs   uint64
	WallTime    time.Duration
	Descriptors uint64
	BusyTime    float64
	SimTime     float64
}

// Utilization is the share of simulated time during which the DMA engine had
// a descriptor in flight.
func (s Summary) Utilization() float64 {
	if s.SimTime == 0 {
		return 0
	}

	return s.BusyTime / s.SimTime
}

// Runner runs a matrix of cases over several independent platforms.
type Runner struct {
	Config   Config
	Workers  int
	Logger   logrus.FieldLogger
	Recorder datarecording.DataRecorder
	Progress *monitoring.ProgressBar

	// OnPlatform is called with every platform right after it is built.
	OnPlatform func(worker int, p *Platform)

	// FailFast stops the sweep at the first failing case.
	FailFast bool

	lock    sync.Mutex
	summary Summary
	latency float64
}

// Run runs every case. Each worker owns one platform and takes every
// Workers-th case. The error is non-nil if the sweep was cancelled or, with
// FailFast, if a case failed.
func (r *Runner) Run(ctx context.Context, cases Matrix) (Summary, error) {
	workers := max(1, r.Workers)
	logger := r.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if r.Recorder != nil {
		r.Recorder.CreateTable(CaseTable, CaseRow{})
	}

	start := time.Now()
	r.summary = Summary{}
	r.latency = 0

	g, ctx := errgroup.WithContext(ctx)

	for i, part := range cases.Partition(workers) {
		g.Go(func() error {
			return r.runPartition(ctx, i, part,
				logger.WithField("worker", i))
		})
	}

	err := g.Wait()

	r.summary.WallTime = time.Since(start)
	if r.summary.Descriptors > 0 {
		r.summary.AvgLatency = r.latency / float64(r.summary.Descriptors)
	}

	if r.Recorder != nil {
		if ferr := r.Recorder.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("flush results: %w", ferr)
		}
	}

	return r.summary, err
}

type platformTracers struct {
	engine  sim.TimeTeller
	latency *tracing.AverageTimeTracer
	busy    *tracing.BusyTimeTracer
}

func (r *Runner) newPlatform(worker int) (*Platform, platformTracers) {
	p := MakePlatformBuilder().
		WithConfig(r.Config).
		Build(fmt.Sprintf("W%d", worker))

	tr := platformTracers{
		engine: p.Engine,
		latency: tracing.NewAverageTimeTracer(p.Engine,
			tracing.KindIs(pciewrite.TaskKind)),
		busy: tracing.NewBusyTimeTracer(p.Engine,
			tracing.KindIs(pciewrite.TaskKind)),
	}
	tracing.CollectTrace(p.DMA, tr.latency)
	tracing.CollectTrace(p.DMA, tr.busy)

	if r.OnPlatform != nil {
		r.OnPlatform(worker, p)
	}

	return p, tr
}

func (r *Runner) runPartition(
	ctx context.Context,
	worker int,
	cases Matrix,
	logger logrus.FieldLogger,
) error {
	p, tr := r.newPlatform(worker)
	defer func() { r.addTrace(tr) }()

	tag := uint64(1)

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.Progress != nil {
			r.Progress.IncrementInProgress(1)
		}

		res, crashed := runCase(p, c, tag)
		tag = r.Config.NextTag(tag)

		r.record(worker, res, logger)

		if r.Progress != nil {
			r.Progress.MoveInProgressToFinished(1)
		}

		if !res.Passed() && r.FailFast {
			return fmt.Errorf("case %d (%s): %w", c.ID, c, res.Err)
		}

		switch {
		case crashed:
			r.addTrace(tr)
			p, tr = r.newPlatform(worker)
		case !res.Passed():
			p.Reset()
		}
	}

	return nil
}

// runCase turns a broken protocol assertion into a failed case. The platform
// must not be used again after a crash.
func runCase(p *Platform, c Case, tag uint64) (res CaseResult, crashed bool) {
	defer func() {
		if v := recover(); v != nil {
			res = CaseResult{Case: c, Tag: tag, Err: fmt.Errorf("panic: %v", v)}
			crashed = true
		}
	}()

	return p.RunCase(c, tag), false
}

func (r *Runner) addTrace(tr platformTracers) {
	tr.busy.TerminateAllTasks()

	r.lock.Lock()
	defer r.lock.Unlock()

	n := tr.latency.TotalCount()
	r.summary.Descriptors += n
	r.latency += float64(tr.latency.AverageTime()) * float64(n)
	r.summary.MaxLatency = max(r.summary.MaxLatency,
		float64(tr.latency.MaxTime()))
	r.summary.BusyTime += float64(tr.busy.BusyTime())
	r.summary.SimTime += float64(tr.engine.CurrentTime())
}

func (r *Runner) record(worker int, res CaseResult, logger logrus.FieldLogger) {
	c := res.Case
	entry := logger.WithFields(logrus.Fields{
		"case":        c.ID,
		"len":         c.Len,
		"pcie_offset": c.PCIeOffset,
		"ram_offset":  c.RAMOffset,
		"pause":       c.Pause,
		"tag":         res.Tag,
		"cycles":      res.Cycles,
	})

	row := CaseRow{
		CaseID:     c.ID,
		Worker:     worker,
		Len:        int64(c.Len),
		PCIeOffset: int64(c.PCIeOffset),
		RAMOffset:  int64(c.RAMOffset),
		Pause:      c.Pause,
		PauseRAM:   c.PauseRAM,
		Tag:        int64(res.Tag),
		Passed:     res.Passed(),
		Cycles:     int64(res.Cycles),
		TLPs:       int64(res.TLPs),
	}

	if res.Passed() {
		entry.Debug("case passed")
	} else {
		row.Error = res.Err.Error()
		entry.WithError(res.Err).Error("case failed")
	}

	if r.Recorder != nil {
		r.Recorder.InsertData(CaseTable, row)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.summary.Total++
	r.summary.TotalTLPs += res.TLPs

	if res.Passed() {
		r.summary.Passed++
	} else {
		r.summary.Failed = append(r.summary.Failed, res)
	}
}
