// Package persistence stores the panel's local audit trail, operator
// actions, manual run triggers and backend health events. Backed by
// SQLite with WAL mode for better concurrency. The backend service owns
// jobs and their logs, nothing of those is mirrored here.
package persistence
