// Package daemon turns flowpool into a detached, signal-controlled service.
//
// It owns the PID file contract, the flock-based single-instance lock, the
// double re-exec detach sequence, and the serve loop that drives a Program:
// Initialize once, then Run every Interval until a shutdown signal arrives or
// the PID file disappears. SIGHUP is delivered to the program as an update,
// SIGTERM and SIGINT as a shutdown.
//
// Controller is the other half of the contract. It runs in a separate CLI
// process and talks to the daemon only through the PID file and signals.
package daemon
