package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"giteakit/internal/errors"
	"giteakit/internal/file"
	"giteakit/internal/gitea"
	"giteakit/internal/logging"
	"giteakit/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gitea is what the handlers need from the server.
type Gitea interface {
	file.Remote
	GetRepository(ctx context.Context, owner, repo string) (*gitea.Repository, error)
}

// SessionHandler exposes file sessions over HTTP.
type SessionHandler struct {
	box      *SessionBox
	gitea    Gitea
	options  file.Options
	messages errors.Messages
	logger   *logging.Logger
}

// NewSessionHandler creates sessions whose orchestrators share options.
// DefaultContent is taken from each request.
func NewSessionHandler(box *SessionBox, g Gitea, options file.Options, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	if options.Logger == nil {
		options.Logger = logger.Logger
	}
	return &SessionHandler{
		box:      box,
		gitea:    g,
		options:  options,
		messages: errors.DefaultMessages,
		logger:   logger,
	}
}

// Register mounts the session routes on mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.List)
	mux.HandleFunc("POST /api/sessions", h.Create)
	mux.HandleFunc("GET /api/sessions/{id}", h.Get)
	mux.HandleFunc("PUT /api/sessions/{id}/content", h.Save)
	mux.HandleFunc("PUT /api/sessions/{id}/draft", h.SaveDraft)
	mux.HandleFunc("PUT /api/sessions/{id}/dirty", h.MarkDirty)
	mux.HandleFunc("DELETE /api/sessions/{id}/file", h.DeleteFile)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.Close)
}

type sessionView struct {
	ID         string       `json:"id"`
	Repository string       `json:"repository"`
	Branch     string       `json:"branch"`
	State      string       `json:"state"`
	Dirty      bool         `json:"dirty"`
	File       *file.Record `json:"file,omitempty"`
	Events     []file.Event `json:"events"`
}

func view(s *Session) sessionView {
	return sessionView{
		ID:         s.ID,
		Repository: s.Owner + "/" + s.Repo,
		Branch:     s.File.Branch(),
		State:      s.File.State().String(),
		Dirty:      s.File.Dirty(),
		File:       s.File.File(),
		Events:     s.Events(),
	}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req validation.OpenSessionRequest
	if err := validation.Decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	repo, err := h.gitea.GetRepository(r.Context(), req.Owner, req.Repo)
	if err != nil {
		if errors.IsNotFound(err) {
			err = errors.NotFound("repository not found: " + req.Owner + "/" + req.Repo)
		}
		h.writeError(w, r, err)
		return
	}
	repo.Branch = req.Branch

	opts := h.options
	opts.DefaultContent = req.DefaultContent
	s := newSession(uuid.New().String(), req.Owner, req.Repo, file.New(h.gitea, opts))

	if err := s.File.SetRepository(r.Context(), repo); err != nil {
		s.close()
		h.writeError(w, r, err)
		return
	}
	if err := s.File.Open(r.Context(), req.Filepath); err != nil {
		s.close()
		h.writeError(w, r, err)
		return
	}
	if err := h.box.Create(s); err != nil {
		s.close()
		h.writeError(w, r, err)
		return
	}

	h.logger.WithRequestID(r.Context()).Info("session opened",
		zap.String("session", s.ID),
		zap.String("repo", repo.FullName),
		zap.String("filepath", req.Filepath))
	writeJSON(w, http.StatusCreated, view(s))
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.box.List()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, view(s))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, r, errors.ValidationError("missing id", nil))
		return nil, false
	}
	s, err := h.box.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view(s))
}

func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req validation.ContentRequest
	if err := validation.Decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := s.File.Save(r.Context(), *req.Content); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(s))
}

func (h *SessionHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req validation.ContentRequest
	if err := validation.Decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := s.File.SaveCache(r.Context(), *req.Content); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) MarkDirty(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Dirty bool `json:"dirty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", nil))
		return
	}
	s.File.MarkChanged(req.Dirty)
	writeJSON(w, http.StatusOK, view(s))
}

func (h *SessionHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	deleted, err := s.File.Delete(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !deleted {
		h.writeError(w, r, errors.Forbidden("no push permission on "+s.Owner+"/"+s.Repo))
		return
	}
	writeJSON(w, http.StatusOK, view(s))
}

func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.box.Delete(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.WithRequestID(r.Context()).Info("session closed", zap.String("session", id))
	w.WriteHeader(http.StatusNoContent)
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *SessionHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.Error
	switch {
	case stderrors.As(err, &appErr):
	case stderrors.Is(err, file.ErrNoFile):
		appErr = errors.NotFound(err.Error())
	case stderrors.Is(err, file.ErrSuperseded):
		appErr = errors.Conflict(err.Error())
	case errors.HasStatus(err, http.StatusConflict):
		appErr = errors.Conflict("file changed on the server")
	case errors.IsNotFound(err):
		appErr = errors.NotFound("not found on the server")
	default:
		appErr = errors.Upstream(err, h.messages)
	}

	log := h.logger.WithRequestID(r.Context())
	if appErr.Code >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err), zap.Int("code", appErr.Code))
	} else {
		log.Debug("request rejected", zap.Error(err), zap.Int("code", appErr.Code))
	}
	writeJSON(w, appErr.Code, appErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
