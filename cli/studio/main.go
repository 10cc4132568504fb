package main

import (
	"os"

	studiocmder "github.com/papercomputeco/studio/cmd/studio"
)

func main() {
	cmd := studiocmder.NewStudioCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
