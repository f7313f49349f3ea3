package main

import (
	"fmt"
	"os"
)

// ANSI codes for the few styles the CLI uses. Human-facing output goes to
// stderr so stdout stays free for machine-readable data.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

func colorize(code, text string) string {
	if noColor {
		return text
	}
	return code + text + ansiReset
}

func printLine(code, prefix, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(code, prefix+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printLine(ansiGreen, "✓ ", format, args...) }

func printError(format string, args ...any) { printLine(ansiRed, "✗ ", format, args...) }

func printWarning(format string, args ...any) { printLine(ansiYellow, "⚠ ", format, args...) }

func printStep(format string, args ...any) { printLine(ansiCyan, "→ ", format, args...) }

// printStatus renders one "Label: value" line of the status report.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(ansiBold, label+":"), fmt.Sprintf(format, args...))
}
