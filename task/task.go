package task

import (
	"fmt"
	"strings"
	"time"
)

// Task is one item on a user's list. UserID is the partition key and TodoID
// the sort key in every store.
type Task struct {
	UserID        string `json:"userId" dynamodbav:"userId"`
	TodoID        string `json:"todoId" dynamodbav:"todoId"`
	CreatedAt     string `json:"createdAt" dynamodbav:"createdAt"`
	Name          string `json:"name" dynamodbav:"name"`
	DueDate       string `json:"dueDate" dynamodbav:"dueDate"`
	Done          bool   `json:"done" dynamodbav:"done"`
	AttachmentURL string `json:"attachmentUrl,omitempty" dynamodbav:"attachmentUrl,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
}

// CreateRequest is the input to Service.Create.
type CreateRequest struct {
	Name    string `json:"name"`
	DueDate string `json:"dueDate"`
}

// UpdateRequest is the input to Service.Update. All fields are replaced.
type UpdateRequest struct {
	Name    string `json:"name"`
	DueDate string `json:"dueDate"`
	Done    bool   `json:"done"`
}

// Update is what a Store writes for an update.
type Update struct {
	Name      string
	DueDate   string
	Done      bool
	UpdatedAt string
}

// Validate checks a create request.
func (r CreateRequest) Validate() error {
	return validateFields(r.Name, r.DueDate)
}

// Validate checks an update request.
func (r UpdateRequest) Validate() error {
	return validateFields(r.Name, r.DueDate)
}

const maxNameLength = 256

func validateFields(name, dueDate string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRequest, maxNameLength)
	}
	if dueDate != "" && !validDate(dueDate) {
		return fmt.Errorf("%w: dueDate %q is not a date", ErrInvalidRequest, dueDate)
	}
	return nil
}

// validDate accepts a calendar date or an RFC3339 timestamp.
func validDate(s string) bool {
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}
