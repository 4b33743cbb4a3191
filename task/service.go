package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/todos/observe"
	"github.com/jonwraymond/todos/resilience"
)

// TimeLayout is RFC3339 in UTC with millisecond precision, so stored
// timestamps sort lexically in creation order.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultStoreTimeout bounds each store or signer call.
const DefaultStoreTimeout = 5 * time.Second

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Store  Store
	Signer AttachmentSigner

	// Timeout bounds each store or signer call. Default: 5s.
	Timeout time.Duration

	// MaxConcurrent caps in-flight store and signer calls; zero leaves them
	// uncapped. A call waits up to MaxWait for a slot, then fails with
	// resilience.ErrBulkheadFull.
	MaxConcurrent int
	MaxWait       time.Duration

	// Middleware instruments every operation. Default: no-op.
	Middleware *observe.Middleware
}

// Service implements the task operations for an authenticated user.
type Service struct {
	store  Store
	signer AttachmentSigner
	exec   *resilience.Executor
	mw     *observe.Middleware
	now    func() time.Time
	newID  func() string
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStoreTimeout
	}
	if cfg.Middleware == nil {
		cfg.Middleware = observe.NopMiddleware()
	}
	opts := []resilience.ExecutorOption{resilience.WithTimeout(cfg.Timeout)}
	if cfg.MaxConcurrent > 0 {
		opts = append(opts, resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.MaxWait,
		})))
	}
	return &Service{
		store:  cfg.Store,
		signer: cfg.Signer,
		exec:   resilience.NewExecutor(opts...),
		mw:     cfg.Middleware.WithClassifier(classify).WithClientKinds("not_found", "invalid_request"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, resilience.ErrTimeout):
		return "timeout"
	case resilience.IsRejection(err):
		return "rejected"
	default:
		return "internal"
	}
}

func (s *Service) run(ctx context.Context, op string, fn observe.Op) error {
	return s.mw.Run(ctx, observe.OpMeta{Component: "task", Operation: op}, fn)
}

// call runs one store or signer call under the per-call timeout.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	return s.exec.Execute(ctx, fn)
}

// Create adds a task for userID.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Task, error) {
	var created *Task
	err := s.run(ctx, "create", func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		todoID := s.newID()
		t := &Task{
			UserID:        userID,
			TodoID:        todoID,
			CreatedAt:     s.now().UTC().Format(TimeLayout),
			Name:          req.Name,
			DueDate:       req.DueDate,
			Done:          false,
			AttachmentURL: s.signer.AttachmentURL(todoID),
		}
		if err := s.call(ctx, func(ctx context.Context) error { return s.store.Put(ctx, t) }); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// List returns userID's tasks in creation order.
func (s *Service) List(ctx context.Context, userID string) ([]Task, error) {
	var tasks []Task
	err := s.run(ctx, "list", func(ctx context.Context) error {
		return s.call(ctx, func(ctx context.Context) error {
			var err error
			tasks, err = s.store.List(ctx, userID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// Update replaces the name, due date and done flag of a task.
func (s *Service) Update(ctx context.Context, userID, todoID string, req UpdateRequest) error {
	return s.run(ctx, "update", func(ctx context.Context) error {
		if err := req.Validate(); err != nil {
			return err
		}
		if err := s.ensureExists(ctx, userID, todoID); err != nil {
			return err
		}
		u := Update{
			Name:      req.Name,
			DueDate:   req.DueDate,
			Done:      req.Done,
			UpdatedAt: s.now().UTC().Format(TimeLayout),
		}
		return s.call(ctx, func(ctx context.Context) error {
			return s.store.Update(ctx, userID, todoID, u)
		})
	})
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, userID, todoID string) error {
	return s.run(ctx, "delete", func(ctx context.Context) error {
		if err := s.ensureExists(ctx, userID, todoID); err != nil {
			return err
		}
		return s.call(ctx, func(ctx context.Context) error {
			return s.store.Delete(ctx, userID, todoID)
		})
	})
}

// UploadURL returns a presigned upload location for a task's attachment.
func (s *Service) UploadURL(ctx context.Context, userID, todoID string) (string, error) {
	var url string
	err := s.run(ctx, "upload_url", func(ctx context.Context) error {
		if err := s.ensureExists(ctx, userID, todoID); err != nil {
			return err
		}
		return s.call(ctx, func(ctx context.Context) error {
			var err error
			url, err = s.signer.UploadURL(ctx, todoID)
			return err
		})
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *Service) ensureExists(ctx context.Context, userID, todoID string) error {
	if todoID == "" {
		return ErrNotFound
	}
	return s.call(ctx, func(ctx context.Context) error {
		_, err := s.store.Get(ctx, userID, todoID)
		return err
	})
}
