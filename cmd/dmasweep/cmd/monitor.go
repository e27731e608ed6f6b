package cmd

import (
	"github.com/sarchlab/pciedma/monitoring"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	monitorEnabled bool
	monitorPort    int
	openBrowser    bool
)

func addMonitorFlags(c *cobra.Command) {
	c.Flags().BoolVar(&monitorEnabled, "monitor", false,
		"Serve the monitoring API while running.")
	c.Flags().IntVar(&monitorPort, "monitor-port", 0,
		"Port of the monitoring API. 0 picks a free port. "+
			"Defaults to PCIEDMA_MONITOR_PORT.")
	c.Flags().BoolVar(&openBrowser, "open-browser", false,
		"Open the monitoring API in a browser.")
}

// startMonitor returns nil when monitoring is off.
func startMonitor(logger logrus.FieldLogger) (*monitoring.Monitor, error) {
	if !monitorEnabled {
		return nil, nil
	}

	port, err := envInt("PCIEDMA_MONITOR_PORT", 0)
	if err != nil {
		return nil, err
	}

	if monitorPort != 0 {
		port = monitorPort
	}

	m := monitoring.NewMonitor().
		WithLogger(logger).
		WithBrowser(openBrowser)
	if port != 0 {
		m.WithPortNumber(port)
	}

	if _, err := m.StartServer(); err != nil {
		return nil, err
	}

	return m, nil
}
