// Package logs reads flowpool's log files for the CLI: the last lines of a
// file, follow mode that polls for appended lines, and lookup of the capture
// files written for a chain.
package logs
