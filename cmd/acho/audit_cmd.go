package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/acho-dev/acho/pkg/audit"
	"github.com/acho-dev/acho/pkg/config"
)

// runAuditCmd verifies the audit log's hash chain.
//
// Exit codes:
//
//	0 = chain intact
//	1 = chain broken
//	2 = runtime error
func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var path string
	cmd.StringVar(&path, "file", "", "Audit log path (default: the state dir's log)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() < 1 || cmd.Arg(0) != "verify" {
		fmt.Fprintln(stderr, "Usage: acho audit verify [--file <path>]")
		return 2
	}

	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		path = cfg.AuditPath()
	}

	if err := audit.VerifyFile(path); err != nil {
		fmt.Fprintf(stderr, "❌ audit chain broken: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "✅ audit chain intact: %s\n", path)
	return 0
}
