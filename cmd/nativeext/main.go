package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"

	"github.com/contriboss/native-extension-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(mg.ExitStatus(err))
	}
}
