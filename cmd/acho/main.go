package main

import (
	"fmt"
	"io"
	"os"
)

const version = "1.2.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "commit":
		return runCommitCmd(args[2:], stdout, stderr)
	case "pr":
		return runPrCmd(args[2:], stdout, stderr)
	case "acho":
		return runAchoCmd(args[2:], stdout, stderr)
	case "hook":
		return runHookCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "standards":
		return runStandardsCmd(args[2:], stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "acho %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sacho %s%s\n", ColorBold+ColorBlue, "v"+version, ColorReset)
	fmt.Fprintf(w, "%sGates decide. Commands comply.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  acho <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "GOVERNED COMMANDS")
	printCommand(w, "commit", "Commit and push (-m, --only to skip the push)")
	printCommand(w, "pr", "Push and create a PR (--title, --body, --only)")
	printCommand(w, "acho", "Commit, push, and create a PR (-m, --title, --only)")

	printSection(w, "ENFORCEMENT")
	printCommand(w, "hook", "Evaluate one lifecycle stage (for git hooks)")
	printCommand(w, "audit", "Verify the audit log hash chain (audit verify)")
	printCommand(w, "standards", "Resolve a policy key across layers (--all, --dedupe)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}
