// Package task manages per-user task lists.
//
// A Service owns the business rules: ids and timestamps are assigned here,
// and every mutation of an existing task is preceded by a lookup scoped to
// the owner, so a caller can never reach another user's task and a missing
// task never produces a write. Persistence is behind Store; the
// dynamostore and pgstore subpackages provide the production backends.
package task
