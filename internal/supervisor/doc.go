// Package supervisor drains the workflow queue into a bounded pool of engine
// subprocesses.
//
// Supervisor implements daemon.Program. Each Run pass checks the dependent
// services, reaps finished slots, claims enough ready chains to refill the
// pool, copies each chain's DAG document into the workspace, and spawns the
// workflow engine in its own process group with captured output. Finished
// slots pass through the retention policy, which decides whether the chain's
// logs, documents, and outputs survive and whether its queue record is
// deleted or kept for inspection or retry.
//
// All pool state is owned by the goroutine that drives the Program hooks, so
// no locking is needed around the slot list.
package supervisor
