package main

import (
	"os"

	"github.com/kiva-corp/localrun/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
