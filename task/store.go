package task

import "context"

// Store persists tasks.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: Get, Update and Delete return ErrNotFound for a missing
//     (userID, todoID). Update must not create a task.
//   - Ordering: List returns tasks in createdAt order.
type Store interface {
	Get(ctx context.Context, userID, todoID string) (*Task, error)
	Put(ctx context.Context, t *Task) error
	Update(ctx context.Context, userID, todoID string, u Update) error
	Delete(ctx context.Context, userID, todoID string) error
	List(ctx context.Context, userID string) ([]Task, error)
}

// AttachmentSigner issues attachment locations for tasks.
type AttachmentSigner interface {
	// AttachmentURL is the permanent location of a task's attachment.
	AttachmentURL(todoID string) string

	// UploadURL returns a time-limited URL that accepts a PUT of the
	// attachment.
	UploadURL(ctx context.Context, todoID string) (string, error)
}
