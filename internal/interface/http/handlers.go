package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mentor-hub/mentor-hub/internal/application/command"
	"github.com/mentor-hub/mentor-hub/internal/application/query"
	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/internal/interface/http/handlers"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
)

// Student facing messages.
const (
	msgChatRequired    = "email, message, programID et mode sont requis."
	msgProgramRequired = "programID est requis."
	msgModuleRequired  = "moduleID est requis."
	msgProgramNotFound = "Programme introuvable."
	msgModuleNotFound  = "Module introuvable."
	msgUnknownMode     = "mode doit valoir guided ou free."
	msgFreeModeOff     = "Le mode discussion libre n'est pas disponible."
	msgQuotaChat       = "Tu as atteint le nombre maximum d'échanges autorisés pour ce mois."
	msgQuotaHealth     = "Nombre maximum d'échanges autorisés pour ce mois atteint."
	msgTechnicalIssue  = "Je rencontre un problème technique. Réessaie dans un moment ou signale-le à l'équipe."
)

type quotaBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Limit   int64  `json:"limit"`
	Count   int64  `json:"count"`
	Period  string `json:"period"`
}

func quotaExceeded(message string, d usage.Decision) quotaBody {
	return quotaBody{Error: "monthly_quota_exceeded", Message: message, Limit: d.Limit, Count: d.Count, Period: d.Period}
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT
// ══════════════════════════════════════════════════════════════════════════════

type chatRequest struct {
	Email     string `json:"email"`
	Message   string `json:"message"`
	ProgramID string `json:"programID"`
	Mode      string `json:"mode"`
}

// handleChat answers one student message.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, replyBody{Reply: msgChatRequired})
		return
	}

	res, err := s.deps.Chat.Handle(r.Context(), command.SendMessageCommand{
		Email:      req.Email,
		Message:    req.Message,
		ProgramKey: req.ProgramID,
		Mode:       req.Mode,
		SessionID:  handlers.SessionID(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrUnknownMode):
			writeJSON(w, http.StatusBadRequest, replyBody{Reply: msgUnknownMode})
		case errors.Is(err, shared.ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, replyBody{Reply: msgChatRequired})
		case errors.Is(err, shared.ErrQuotaExceeded):
			writeJSON(w, http.StatusTooManyRequests, quotaExceeded(msgQuotaChat, res.Decision))
		case errors.Is(err, shared.ErrServiceUnavailable) && res != nil && res.Decision.Limit > 0 && !res.Decision.Allowed:
			// Counter store down: denied as if over quota.
			logger.FromContext(r.Context()).Error("usage store failed", logger.Err(err))
			writeJSON(w, http.StatusTooManyRequests, quotaExceeded(msgQuotaChat, res.Decision))
		case errors.Is(err, shared.ErrForbidden):
			writeJSON(w, http.StatusForbidden, replyBody{Reply: msgFreeModeOff})
		case errors.Is(err, shared.ErrProgramNotFound):
			writeJSON(w, http.StatusNotFound, replyBody{Reply: msgProgramNotFound})
		default:
			logger.FromContext(r.Context()).Error("chat failed", logger.Err(err))
			writeJSON(w, http.StatusInternalServerError, replyBody{Reply: msgTechnicalIssue})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"mentorReply": res.Reply})

	// The summary update must survive the end of the request.
	s.deps.Chat.RecordExchange(context.WithoutCancel(r.Context()), res.Exchange)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

type initRequest struct {
	ProgramID string `json:"programID"`
	Email     string `json:"email"`
}

// handleInit opens a mentor session and lists the modules of the month.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := decodeJSON(r, &req); err != nil || req.ProgramID == "" {
		writeJSON(w, http.StatusBadRequest, replyBody{Reply: msgProgramRequired})
		return
	}

	res, err := s.deps.Sessions.Init(r.Context(), command.InitSessionCommand{
		ProgramKey: req.ProgramID,
		Email:      req.Email,
		SessionID:  handlers.SessionID(r.Context()),
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string][]program.Module{"modules": res.Modules})
	case shared.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, replyBody{Reply: msgProgramNotFound})
	default:
		logger.FromContext(r.Context()).Error("init failed", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "init_check_failed"})
	}
}

type programRequest struct {
	ProgramID    string `json:"programID"`
	ModuleID     string `json:"moduleID"`
	StudentEmail string `json:"studentEmail"`
}

// handleProgram focuses the session on one module.
func (s *Server) handleProgram(w http.ResponseWriter, r *http.Request) {
	var req programRequest
	if err := decodeJSON(r, &req); err != nil || req.ProgramID == "" {
		writeJSON(w, http.StatusBadRequest, replyBody{Reply: msgProgramRequired})
		return
	}
	if req.ModuleID == "" {
		writeJSON(w, http.StatusBadRequest, replyBody{Reply: msgModuleRequired})
		return
	}

	mod, err := s.deps.Sessions.SelectModule(r.Context(), command.SelectModuleCommand{
		ProgramKey: req.ProgramID,
		ModuleID:   req.ModuleID,
		Email:      req.StudentEmail,
		SessionID:  handlers.SessionID(r.Context()),
	})
	switch {
	case err == nil:
		content := mod.Content
		if content == nil {
			content = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "module": content})
	case errors.Is(err, shared.ErrProgramNotFound):
		writeJSON(w, http.StatusNotFound, replyBody{Reply: msgProgramNotFound})
	case shared.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, replyBody{Reply: msgModuleNotFound})
	default:
		logger.FromContext(r.Context()).Error("module selection failed", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "program_loading_failed"})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HEALTH
// ══════════════════════════════════════════════════════════════════════════════

type healthRequest struct {
	Email string `json:"email"`
}

type healthBody struct {
	OK     bool      `json:"ok"`
	Time   time.Time `json:"time"`
	Limit  int64     `json:"limit"`
	Count  int64     `json:"count"`
	Period string    `json:"period"`
}

// handleHealth reports backend reachability and the student quota without
// consuming it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var req healthRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "email_required"})
		return
	}

	st, err := s.deps.Health.Handle(r.Context(), query.GetUsageStatusQuery{Email: req.Email})
	if err != nil {
		logger.FromContext(r.Context()).Error("health check failed", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "health_check_failed"})
		return
	}
	if !st.Decision.Allowed {
		writeJSON(w, http.StatusTooManyRequests, quotaExceeded(msgQuotaHealth, st.Decision))
		return
	}

	status := http.StatusOK
	if !st.BackendOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthBody{
		OK:     true,
		Time:   st.Time,
		Limit:  st.Decision.Limit,
		Count:  st.Decision.Count,
		Period: st.Decision.Period,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC SYLLABUS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSyllabus serves a published program to anonymous readers.
func (s *Server) handleGetSyllabus(w http.ResponseWriter, r *http.Request) {
	pub, err := s.deps.Syllabus.Handle(r.Context(), query.GetSyllabusQuery{Token: chi.URLParam(r, "token")})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, pub)
	case errors.Is(err, shared.ErrInvalidTokenFormat):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_token_format"})
	case shared.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found_or_not_published"})
	default:
		logger.FromContext(r.Context()).Error("syllabus lookup failed", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIVENESS & READINESS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"uptime":  s.deps.Readiness.Uptime().Round(time.Second).String(),
		"version": s.config.Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Readiness.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
