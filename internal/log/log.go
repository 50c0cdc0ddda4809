// Package log provides colored terminal output for the bfrun build driver.
// All output uses ANSI escape codes; no external dependencies are required.
//
// Verbosity is a package-level setting: Verbose messages appear only at
// level >= 1, Trace messages only at level >= 2. Verbosity never changes
// control flow, only what is printed.
package log

import (
	"fmt"
	"os"
)

// ANSI escape codes for terminal colors.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorCyan   = "\033[0;36m"
	colorWhite  = "\033[1;37m"
)

// sectionLine is the unicode box-draw separator used between build stages.
const sectionLine = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// OsExit is the function called by Fatal to terminate the process.
// It is a package-level variable so tests can replace it without subprocess overhead.
var OsExit = os.Exit

// verbosity is the current output level: 0 = normal, 1 = verbose, 2 = trace.
var verbosity = 0

// SetVerbosity sets the output level for Verbose and Trace.
func SetVerbosity(level int) {
	verbosity = level
}

// Info prints a white [INFO] message to stdout.
func Info(msg string) {
	fmt.Printf("%s[INFO]%s %s\n", colorWhite, colorReset, msg)
}

// Success prints a green [SUCCESS] message to stdout.
func Success(msg string) {
	fmt.Printf("%s[SUCCESS]%s %s\n", colorGreen, colorReset, msg)
}

// Warning prints a yellow [WARNING] message to stdout.
func Warning(msg string) {
	fmt.Printf("%s[WARNING]%s %s\n", colorYellow, colorReset, msg)
}

// Error prints a red [ERROR] message to stdout.
func Error(msg string) {
	fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg)
}

// Fatal prints a red [ERROR] message then exits with status 1.
func Fatal(msg string) {
	Error(msg)
	OsExit(1)
}

// Verbose prints an [INFO] message only when verbosity >= 1.
func Verbose(msg string) {
	if verbosity >= 1 {
		Info(msg)
	}
}

// Trace prints an [INFO] message only when verbosity >= 2.
func Trace(msg string) {
	if verbosity >= 2 {
		Info(msg)
	}
}

// Section prints a cyan unicode box-draw separator with a title, marking
// the start of a build stage in the run transcript.
func Section(title string) {
	fmt.Printf("\n%s%s%s\n", colorCyan, sectionLine, colorReset)
	fmt.Printf("%s%s%s\n", colorCyan, title, colorReset)
	fmt.Printf("%s%s%s\n\n", colorCyan, sectionLine, colorReset)
}
