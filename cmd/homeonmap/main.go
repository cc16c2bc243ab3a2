package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/homeonmap/backend/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.RootCmd(cli.FromEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
