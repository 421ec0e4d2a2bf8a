package main

import (
	"fmt"
	"os"

	"github.com/flightwatch-io/flightloader/pkg/importer"
)

func main() {
	if err := importer.Command().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
