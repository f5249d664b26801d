// Command flowpool controls the workflow pool daemon and its queue.
//
// start, stop, restart, status, and update talk to the daemon through its PID
// file and signals. The hidden daemon command is the daemon itself; it also
// performs the detach re-executions started by start. queue and config
// operate on the queue backend and the configuration file directly.
package main
