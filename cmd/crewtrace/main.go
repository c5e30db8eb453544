// Command crewtrace reports which models actually serve a crew's completion
// requests when they go through an OpenAI-compatible routing proxy.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usageText = `Usage: crewtrace [flags]
       crewtrace track [flags] [topic]
       crewtrace check [flags]
       crewtrace init [flags] [path]

Commands:
  (none)  Print the model usage report
  track   Run the crew once and report usage for that run (topic defaults to %q)
  check   Send one test request and print the model that served it
  init    Write a crew configuration template to path (default crew.yaml)

Flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a command line and returns the process exit code. Once a
// report has been printed the exit code is 0 even if parts of it failed.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := "report"
	if len(args) > 0 {
		switch args[0] {
		case "track", "check", "init", "report":
			cmd, args = args[0], args[1:]
		}
	}

	fs := flag.NewFlagSet("crewtrace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, usageText, defaultTopic)
		fs.PrintDefaults()
	}

	opts := options{}
	fs.StringVar(&opts.envFile, "env", ".env", "path to .env file (ignored if missing)")
	fs.StringVar(&opts.configPath, "config", "", "path to crew configuration (.yaml or .toml; default: embedded blog crew)")
	fs.StringVar(&opts.template, "template", "", "embedded crew template to use instead of -config")
	fs.BoolVar(&opts.jsonOut, "json", false, "also print the report as JSON")
	fs.BoolVar(&opts.plain, "plain", false, "print the run result without markdown rendering")
	fs.BoolVar(&opts.force, "force", false, "init: overwrite an existing file")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts.args = fs.Args()

	var err error

	switch cmd {
	case "track":
		err = runTrack(ctx, stdout, stderr, opts)
	case "check":
		err = runCheck(ctx, stdout, stderr, opts)
	case "init":
		err = runInit(stdout, opts)
	default:
		err = runReport(ctx, stdout, stderr, opts)
	}

	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	return 0
}
