package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"time"

	"github.com/sarchlab/pciedma/datarecording"
	"github.com/sarchlab/pciedma/dma/acceptance"
	"github.com/sarchlab/pciedma/sim"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var (
	sweepWorkers  int
	sweepStride   int
	sweepRecord   string
	sweepFailFast bool
	sweepLen      uint64
	sweepPause    string
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the case matrix.",
	Long: "Runs every combination of length, host offset, RAM offset and " +
		"pause pattern. Workers default to PCIEDMA_WORKERS and the record " +
		"path to PCIEDMA_RECORD.",
	RunE: func(c *cobra.Command, _ []string) error {
		return runSweep(c.Context())
	},
}

func init() {
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0,
		"Number of platforms that run in parallel. 0 uses every CPU.")
	sweepCmd.Flags().IntVar(&sweepStride, "stride", 1,
		"Run only every n-th case.")
	sweepCmd.Flags().StringVar(&sweepRecord, "record", "",
		"Record every case into <path>.sqlite3 or a clickhouse:// URL.")
	sweepCmd.Flags().BoolVar(&sweepFailFast, "fail-fast", false,
		"Stop at the first failing case.")
	sweepCmd.Flags().Uint64Var(&sweepLen, "len", 0,
		"Run only the cases of this length.")
	sweepCmd.Flags().StringVar(&sweepPause, "pause", "both",
		"Pause pattern to run: on, off or both.")
	addMonitorFlags(sweepCmd)

	rootCmd.AddCommand(sweepCmd)
}

func sweepCases() (acceptance.Matrix, error) {
	cases := acceptance.NewMatrix()

	if sweepLen != 0 {
		cases = cases.Filter(func(c acceptance.Case) bool {
			return c.Len == sweepLen
		})
	}

	switch sweepPause {
	case "both":
	case "on", "off":
		want := sweepPause == "on"
		cases = cases.Filter(func(c acceptance.Case) bool {
			return c.Pause == want
		})
	default:
		return nil, fmt.Errorf("unknown pause pattern %q", sweepPause)
	}

	if sweepStride < 1 {
		return nil, fmt.Errorf("stride must be positive, got %d", sweepStride)
	}

	return cases.Stride(sweepStride), nil
}

func runSweep(ctx context.Context) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	cases, err := sweepCases()
	if err != nil {
		return err
	}

	workers, err := envInt("PCIEDMA_WORKERS", runtime.NumCPU())
	if err != nil {
		return err
	}

	if sweepWorkers > 0 {
		workers = sweepWorkers
	}

	// Workers share the ID generator. xid IDs avoid contention on a single
	// counter.
	if workers > 1 {
		sim.UseParallelIDGenerator()
	}

	logger := logrus.WithField("bus_width", config.BusWidthBits)

	runner := &acceptance.Runner{
		Config:   config,
		Workers:  workers,
		Logger:   logger,
		FailFast: sweepFailFast,
	}

	record := sweepRecord
	if record == "" {
		record = os.Getenv("PCIEDMA_RECORD")
	}

	if record != "" {
		recorder, err := datarecording.Open(record)
		if err != nil {
			return err
		}

		atexit.Register(func() {
			if err := recorder.Close(); err != nil {
				logger.WithError(err).Error("close recording")
			}
		})
		runner.Recorder = recorder

		exec := datarecording.StartExecRecorder(recorder)
		exec.Set("Bus Width", strconv.Itoa(config.BusWidthBits))
		exec.Set("Workers", strconv.Itoa(workers))
		exec.Set("Cases", strconv.Itoa(len(cases)))
		defer func() {
			if err := exec.End(); err != nil {
				logger.WithError(err).Error("record exec info")
			}
		}()
	}

	mon, err := startMonitor(logger)
	if err != nil {
		return err
	}

	if mon != nil {
		bar := mon.CreateProgressBar("sweep", uint64(len(cases)))
		defer mon.CompleteProgressBar(bar)

		runner.Progress = bar
		runner.OnPlatform = func(_ int, p *acceptance.Platform) {
			mon.AttachMetrics(p.RC)
			mon.AttachMetrics(p.DMA)
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	logger.WithFields(logrus.Fields{
		"cases":   len(cases),
		"workers": workers,
	}).Info("sweep started")

	summary, err := runner.Run(ctx, cases)

	logger.WithFields(logrus.Fields{
		"total":             summary.Total,
		"passed":            summary.Passed,
		"failed":            len(summary.Failed),
		"tlps":              summary.TotalTLPs,
		"avg_latency_ns":    summary.AvgLatency * 1e9,
		"max_latency_ns":    summary.MaxLatency * 1e9,
		"utilization":       summary.Utilization(),
		"wall_time_seconds": summary.WallTime.Round(time.Millisecond).Seconds(),
	}).Info("sweep finished")

	if err != nil {
		return err
	}

	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d of %d cases failed",
			len(summary.Failed), summary.Total)
	}

	return nil
}
