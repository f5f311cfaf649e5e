// Package core provides the business logic for staged sales imports.
//
// This package contains all domain logic independent of any transport or
// storage layer. It can be used by web handlers, the CLI, or tests without
// modification; storage is supplied through the interfaces in store.go.
//
// # Architecture
//
// An import runs in two independently triggered steps:
//
//  1. Stage: [Service.AcceptUpload] saves the file and creates a [Job].
//     The file is decoded into [RawRow]s, each row is validated by the
//     [Normalizer], receipts are checked by the [DuplicateDetector], and the
//     rows are written to the [Staging] store under a new upload ID. The job
//     moves to validated.
//  2. Process: [Service.ProcessJob] claims the job, reloads the staged rows,
//     re-checks duplicates, maps names to IDs with the [Resolver] and inserts
//     everything with the [Committer] in a single transaction.
//
// Between the steps the process may restart: jobs, sessions and the status
// snapshot live in a durable [StateStore] managed by the [Tracker].
//
// # Job Lifecycle
//
//	uploaded -> validated -> processing -> processed
//	    |            |             |
//	    +------------+-------------+------> error
//
// processed and error are terminal. Every exit after the processing claim
// clears the staged rows and removes the session and its file.
//
// # Error Handling
//
// Pipeline failures are [ImportError]s classified by [ErrorKind]. They are
// reported in operation results rather than returned as Go errors. Technical
// errors are mapped to user-friendly messages using [MapError]:
//
//   - VAL001-VAL003: Row validation
//   - IMP001-IMP008: Import pipeline (duplicates, references, sessions)
//   - DB001-DB007: Database errors
//   - FILE001-FILE007: File errors
//   - JOB001-JOB004: Capacity, cancellation and timeouts
//
// # Concurrency
//
// Process calls for one job are serialized by an in-process lock and by the
// atomic validated -> processing transition. Different jobs run in parallel,
// bounded by the [ProcessLimiter].
package core
