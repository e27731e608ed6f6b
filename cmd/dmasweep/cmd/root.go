// Package cmd provides the command-line interface of dmasweep.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sarchlab/pciedma/dma/acceptance"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var (
	logLevel   string
	logFormat  string
	configPath string
	busWidth   int
)

var rootCmd = &cobra.Command{
	Use:   "dmasweep",
	Short: "Runs the PCIe DMA write engine against its acceptance cases.",
	Long: `dmasweep builds a simulated platform around the DMA write engine, ` +
		`submits descriptors to it, and checks host memory after every ` +
		`transfer. Settings can also come from a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		return setupLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn or error.")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"Log format: text or json.")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML file that describes the platform.")
	rootCmd.PersistentFlags().IntVar(&busWidth, "bus-width", 128,
		"Data bus width in bits when no config file is given.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	switch logFormat {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}

	return nil
}

func loadConfig() (acceptance.Config, error) {
	if configPath == "" {
		c := acceptance.DefaultConfig(busWidth)
		return c, c.Validate()
	}

	return acceptance.LoadConfig(configPath)
}

// envInt reads an integer from the environment, falling back to def when the
// variable is not set.
func envInt(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	return n, nil
}
