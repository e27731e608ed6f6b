// Command dmasweep drives the PCIe DMA write engine through its acceptance
// sweep and inspects recorded results.
package main

import "github.com/sarchlab/pciedma/cmd/dmasweep/cmd"

func main() {
	cmd.Execute()
}
