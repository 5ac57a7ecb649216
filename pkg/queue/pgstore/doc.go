// Package pgstore keeps queue jobs in PostgreSQL.
//
// All queues share the queuekit_jobs table keyed by (queue, id). The job
// document lives in a JSONB column; state, priority and lock columns are
// kept alongside for the claim query and its partial indexes.
//
// Dequeue runs in one transaction: due delayed jobs are promoted, jobs whose
// lock expired return to waiting, and the best waiting job is claimed with
// FOR UPDATE SKIP LOCKED so concurrent workers never block on each other.
// Completion, failure and lock renewal lock the job row and verify the
// caller's lock token.
//
// The schema ships as embedded goose migrations; run Migrate at startup or
// use Connector, which does it for you.
package pgstore
