package main

import (
	"fmt"
	"os"
)

// main hands off to the cobra root command. Wiring lives in app.go; business
// logic lives in internal packages.
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
