package main

import (
	"github.com/sluicedata/sluice/go/extract"
	"github.com/sluicedata/sluice/go/sluicectl"
)

func main() {
	// Source adapters built on this module register their extractors here
	// before handing control to the CLI.
	sluicectl.Main(extract.NewRegistry())
}
