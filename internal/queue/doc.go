// Package queue persists workflow chains and exposes the claim/complete
// protocol the pool supervisor drives.
//
// Two backends implement the same Store interface: SQLite for single-host
// deployments and PostgreSQL for shared queues. New selects one from the
// configured backend name. FindReady claims chains atomically, so a chain
// is never handed out twice while it is running.
//
// Schema changes bump schemaVersion in schema.go; SQLite users clear the
// database to adopt the new schema.
package queue
