package cmd

import (
	"fmt"

	"github.com/sarchlab/pciedma/datarecording"
	"github.com/sarchlab/pciedma/dma/acceptance"
	"github.com/sarchlab/pciedma/sim"
	"github.com/sarchlab/pciedma/tracing"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var (
	singleCase  acceptance.Case
	singleTag   uint64
	traceEvents bool
	traceMsgs   bool
	traceDB     string
)

var singleCmd = &cobra.Command{
	Use:   "single",
	Short: "Run one transfer and print every request it produced.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runSingle()
	},
}

func init() {
	f := singleCmd.Flags()
	f.Uint64Var(&singleCase.Len, "len", 16, "Bytes to move.")
	f.Uint64Var(&singleCase.PCIeOffset, "pcie-offset", 8,
		"Host address relative to the host memory base.")
	f.Uint64Var(&singleCase.RAMSel, "ram-sel", 0, "RAM region to read.")
	f.Uint64Var(&singleCase.RAMOffset, "ram-offset", 8,
		"Address inside the RAM region.")
	f.BoolVar(&singleCase.Pause, "pause", false,
		"Pause the root complex three cycles out of four.")
	f.BoolVar(&singleCase.PauseRAM, "pause-ram", false,
		"Pause the RAM three cycles out of four.")
	f.Uint64Var(&singleTag, "tag", 1, "Descriptor tag.")
	f.BoolVar(&traceEvents, "trace-events", false,
		"Log every event at debug level.")
	f.BoolVar(&traceMsgs, "trace-msgs", false,
		"Log every message that crosses a port at debug level.")
	f.StringVar(&traceDB, "trace-db", "",
		"Record the descriptor task into <path>.sqlite3.")
	addMonitorFlags(singleCmd)

	rootCmd.AddCommand(singleCmd)
}

func runSingle() error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logrus.WithField("bus_width", config.BusWidthBits)

	p := acceptance.MakePlatformBuilder().
		WithConfig(config).
		WithTLPLog().
		Build("Single")

	if traceEvents {
		p.Engine.AcceptHook(sim.NewEventLogger(logger))
	}

	if traceMsgs {
		msgLogger := sim.NewPortMsgLogger(logger, p.Engine)
		for _, c := range p.Components() {
			for _, port := range c.Ports() {
				port.AcceptHook(msgLogger)
			}
		}
	}

	if traceDB != "" {
		recorder, err := datarecording.New(traceDB)
		if err != nil {
			return err
		}

		atexit.Register(func() {
			if err := recorder.Close(); err != nil {
				logger.WithError(err).Error("close trace")
			}
		})
		tracing.CollectTrace(p.DMA, tracing.NewDBTracer(p.Engine, recorder))
	}

	mon, err := startMonitor(logger)
	if err != nil {
		return err
	}

	if mon != nil {
		mon.RegisterEngine(p.Engine)
		for _, c := range p.Components() {
			mon.RegisterComponent(c)
		}
	}

	res := p.RunCase(singleCase, singleTag)

	for _, rec := range p.RC.TLPLog() {
		logger.WithFields(logrus.Fields{
			"cycle":   rec.Cycle,
			"address": fmt.Sprintf("0x%x", rec.Address),
			"bytes":   rec.ByteCount,
			"beats":   rec.NumBeats,
			"tag":     rec.Tag,
			"header":  rec.Header,
		}).Info("write request")
	}

	entry := logger.WithFields(logrus.Fields{
		"case":   singleCase.String(),
		"cycles": res.Cycles,
		"tlps":   res.TLPs,
	})

	if !res.Passed() {
		entry.WithError(res.Err).Error("transfer failed")
		return res.Err
	}

	entry.Info("transfer passed")

	return nil
}
