// Package retention decides which artifacts of a finished workflow chain
// survive cleanup.
//
// A Policy carries one Mode per artifact category (logs, workflow documents,
// output directories). Classify maps a subprocess exit status onto an
// Outcome; Policy.Retain combines the two. Killed chains count as failures
// for retention purposes.
package retention
