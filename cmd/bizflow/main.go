package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/cli"
)

func main() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the CLI with args and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := cli.NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		code := cli.GetExitCode(err)
		if code != cli.ExitSuccess {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return code
	}
	return cli.ExitSuccess
}
