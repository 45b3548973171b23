// Command fikactl generates, evaluates and inspects schedules from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/makenakalei/fika-scheduling/internal/cli"
)

func main() {
	_ = godotenv.Load()

	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
