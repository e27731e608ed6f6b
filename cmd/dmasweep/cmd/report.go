package cmd

import (
	"fmt"

	"github.com/sarchlab/pciedma/datarecording"
	"github.com/sarchlab/pciedma/dma/acceptance"
	"github.com/spf13/cobra"
)

var reportFailedOnly bool

var reportCmd = &cobra.Command{
	Use:   "report <recording.sqlite3>",
	Short: "Summarize a recorded sweep.",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		rows, err := acceptance.LoadResults(c.Context(), reader, reportFailedOnly)
		if err != nil {
			return err
		}

		passed := 0
		out := c.OutOrStdout()

		for _, r := range rows {
			if r.Passed {
				passed++
				continue
			}

			fmt.Fprintf(out,
				"case %d: len %d, pcie_offset %d, ram_offset %d, pause %t: %s\n",
				r.CaseID, r.Len, r.PCIeOffset, r.RAMOffset, r.Pause, r.Error)
		}

		fmt.Fprintf(out, "%d cases, %d passed, %d failed\n",
			len(rows), passed, len(rows)-passed)

		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportFailedOnly, "failed", false,
		"Load only the failed cases.")

	rootCmd.AddCommand(reportCmd)
}
