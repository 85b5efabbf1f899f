// Package store declares the job-run repository the API and progress sinks
// depend on. Drivers live in internal/storage/postgres.
package store
