// Package jobs keeps a SQLite ledger of upload jobs and their status
// transitions.
//
// The ledger implements pipeline.JobStore for writes and backs the job lookup
// endpoints and the job count metrics. It is a record of what happened, not a
// work queue: jobs interrupted by a restart are marked failed on startup.
//
// The database uses WAL mode and creates its schema on open.
package jobs
