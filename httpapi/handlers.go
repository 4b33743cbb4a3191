package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jonwraymond/todos/auth"
	"github.com/jonwraymond/todos/observe"
	"github.com/jonwraymond/todos/task"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// TaskService is the task operations the handlers call.
type TaskService interface {
	Create(ctx context.Context, userID string, req task.CreateRequest) (*task.Task, error)
	List(ctx context.Context, userID string) ([]task.Task, error)
	Update(ctx context.Context, userID, todoID string, req task.UpdateRequest) error
	Delete(ctx context.Context, userID, todoID string) error
	UploadURL(ctx context.Context, userID, todoID string) (string, error)
}

type taskHandlers struct {
	svc TaskService
	log observe.Logger
}

type itemResponse struct {
	Item *task.Task `json:"item"`
}

type itemsResponse struct {
	Items []task.Task `json:"items"`
}

type uploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrInvalidJSON.WithMessage("The request body is empty.")
		}
		return ErrInvalidJSON.WithCause(err)
	}
	return nil
}

func (h *taskHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(r.Context(), w, h.log, err)
}

func (h *taskHandlers) list(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.List(r.Context(), auth.PrincipalFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{Items: tasks})
}

func (h *taskHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req task.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.svc.Create(r.Context(), auth.PrincipalFromContext(r.Context()), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, itemResponse{Item: created})
}

func (h *taskHandlers) update(w http.ResponseWriter, r *http.Request) {
	var req task.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.svc.Update(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "todoId"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *taskHandlers) delete(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Delete(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "todoId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *taskHandlers) uploadURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.svc.UploadURL(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "todoId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadURLResponse{UploadURL: url})
}
