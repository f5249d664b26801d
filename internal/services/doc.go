// Package services runs the long-lived processes a workflow pool depends on:
// the catalog server that lets workers find engine masters, and the worker
// factory that provisions workers for queued tasks.
//
// Both run in their own process groups with output captured under
// log_dir/services. Manager.Check polls them without blocking; the pool
// treats any exit as fatal and never respawns.
package services
