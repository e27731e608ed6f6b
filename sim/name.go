package sim

import (
	"log"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\[\d+\])*(\.[A-Za-z_][A-Za-z0-9_]*(\[\d+\])*)*$`)

// NameMustBeValid panics if the name is not a dot-separated list of
// identifiers, each optionally followed by indices, e.g. "DMA.RAM.Seg[1]".
func NameMustBeValid(name string) {
	if !namePattern.MatchString(name) {
		log.Panicf("name %q is not valid", name)
	}
}
