// cmd/main.go is the application entry point.
// Subcommands wire the layers together: serve, worker and migrate.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
