package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mentor-hub/mentor-hub/config"
	"github.com/mentor-hub/mentor-hub/internal/application/command"
	"github.com/mentor-hub/mentor-hub/internal/domain/program"
	"github.com/mentor-hub/mentor-hub/internal/domain/prompt"
	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
)

type okBody struct {
	OK bool `json:"ok"`
}

// adminError maps a domain error onto the admin API error codes.
func adminError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case shared.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorBody{Error: notFound})
	case errors.Is(err, shared.ErrInvalidFormat):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_format", Message: err.Error()})
	case shared.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_payload", Message: err.Error()})
	case errors.Is(err, shared.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errorBody{Error: "not_published"})
	case shared.IsAlreadyExists(err):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: err.Error()})
	case errors.Is(err, shared.ErrServiceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable", Message: err.Error()})
	default:
		logger.FromContext(r.Context()).Error("admin request failed",
			logger.String("path", r.URL.Path), logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAMS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.deps.Reader.Programs(r.Context())
	if err != nil {
		adminError(w, r, err, "not_found")
		return
	}
	if programs == nil {
		programs = []*program.Program{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"programs": programs})
}

func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Reader.Program(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		adminError(w, r, err, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handlePutProgram creates or replaces a program. The key in the path wins
// over the one in the body.
func (s *Server) handlePutProgram(w http.ResponseWriter, r *http.Request) {
	var p program.Program
	if err := decodeJSON(r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json"})
		return
	}
	p.Key = chi.URLParam(r, "key")

	if err := s.deps.Content.UpsertProgram(r.Context(), &p); err != nil {
		if shared.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_program", Message: err.Error()})
			return
		}
		adminError(w, r, err, "not_found")
		return
	}

	stored, err := s.deps.Reader.Program(r.Context(), p.Key)
	if err != nil {
		adminError(w, r, err, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Content.DeleteProgram(r.Context(), chi.URLParam(r, "key")); err != nil {
		adminError(w, r, err, "not_found")
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handlePublish(action command.PublishAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.deps.Publish.Handle(r.Context(), command.PublishProgramCommand{
			ProgramKey: chi.URLParam(r, "key"),
			Action:     action,
		})
		if err != nil {
			adminError(w, r, err, "not_found")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROMPTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	templates, err := s.deps.Reader.Templates(r.Context())
	if err != nil {
		adminError(w, r, err, "template_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": templates})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Reader.Template(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		adminError(w, r, err, "template_not_found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type promptRequest struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

func (s *Server) handlePutPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json"})
		return
	}

	key := chi.URLParam(r, "key")
	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = key
	}
	t := &prompt.Template{Key: key, Label: label, Content: req.Content}
	if err := s.deps.Content.UpsertTemplate(r.Context(), t); err != nil {
		if shared.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_content", Message: err.Error()})
			return
		}
		adminError(w, r, err, "template_not_found")
		return
	}

	stored, err := s.deps.Reader.Template(r.Context(), key)
	if err != nil {
		adminError(w, r, err, "template_not_found")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Content.DeleteTemplate(r.Context(), chi.URLParam(r, "key")); err != nil {
		adminError(w, r, err, "template_not_found")
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

// ══════════════════════════════════════════════════════════════════════════════
// MENTOR CONFIG
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Reader.MentorConfig(r.Context())
	if err != nil {
		adminError(w, r, err, "config_not_found")
		return
	}
	if cfg.SchoolName == "" && cfg.Tone == "" && cfg.Rules == "" {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "config_not_found"})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg prompt.MentorConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json"})
		return
	}
	if strings.TrimSpace(cfg.SchoolName) == "" || strings.TrimSpace(cfg.Tone) == "" || strings.TrimSpace(cfg.Rules) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_payload"})
		return
	}

	if err := s.deps.Content.SaveMentorConfig(r.Context(), cfg); err != nil {
		adminError(w, r, err, "config_not_found")
		return
	}
	stored, err := s.deps.Reader.MentorConfig(r.Context())
	if err != nil {
		adminError(w, r, err, "config_not_found")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM EDITOR
// ══════════════════════════════════════════════════════════════════════════════

type editRequest struct {
	Program json.RawMessage `json:"program"`
	Message string          `json:"message"`
}

type editBody struct {
	OK      bool             `json:"ok"`
	Program string           `json:"program"`
	Parsed  *program.Program `json:"parsed,omitempty"`
}

// handleEditProgram asks the assistant to rewrite a program from an
// instruction. The answer is 503 when the backend failed its health check but
// still produced an output.
func (s *Server) handleEditProgram(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json"})
		return
	}

	res, err := s.deps.Editor.Handle(r.Context(), command.EditProgramCommand{Program: req.Program, Message: req.Message})
	if err != nil {
		if shared.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid_payload"})
			return
		}
		logger.FromContext(r.Context()).Error("program editor failed", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "ai_check_failed"})
		return
	}

	status := http.StatusOK
	if !res.BackendOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, editBody{OK: true, Program: res.Output, Parsed: res.Program})
}

// ══════════════════════════════════════════════════════════════════════════════
// USAGE REPORT
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	period, records, err := s.deps.Reader.Usage(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		adminError(w, r, err, "not_found")
		return
	}
	if records == nil {
		records = []usage.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"period": period, "records": records})
}

// ══════════════════════════════════════════════════════════════════════════════
// FEATURE FLAGS
// ══════════════════════════════════════════════════════════════════════════════

type featureView struct {
	config.Feature
	Overrides map[string]bool `json:"overrides"`
	// EnabledForEmail answers for the email given in ?email=, if any.
	EnabledForEmail *bool `json:"enabledForEmail,omitempty"`
}

func (s *Server) featureView(f config.Feature, email string) featureView {
	v := featureView{Feature: f, Overrides: s.deps.Features.UserOverrides(f.Name)}
	if email != "" {
		on := s.deps.Features.EnabledFor(f.Name, email)
		v.EnabledForEmail = &on
	}
	return v
}

// handleListFeatures lists the flags sorted by name.
func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	all := s.deps.Features.GetAllFeatures()

	views := make([]featureView, 0, len(all))
	for _, f := range all {
		views = append(views, s.featureView(f, email))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	writeJSON(w, http.StatusOK, map[string]any{"features": views})
}

type featureRequest struct {
	Enabled        *bool `json:"enabled"`
	RolloutPercent *int  `json:"rolloutPercent"`
	// Overrides maps an email to a forced value; null removes the override.
	Overrides map[string]*bool `json:"overrides"`
}

// handlePutFeature changes the rollout of one flag. rolloutPercent wins over
// enabled when both are sent.
func (s *Server) handlePutFeature(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json"})
		return
	}

	name := chi.URLParam(r, "name")
	if _, ok := s.deps.Features.GetAllFeatures()[name]; !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "feature_not_found"})
		return
	}
	if req.RolloutPercent != nil && (*req.RolloutPercent < 0 || *req.RolloutPercent > 100) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_payload", Message: config.ErrInvalidRolloutPercent.Error()})
		return
	}

	var err error
	switch {
	case req.RolloutPercent != nil:
		err = s.deps.Features.SetRolloutPercent(name, *req.RolloutPercent)
	case req.Enabled != nil && *req.Enabled:
		err = s.deps.Features.EnableFeature(name)
	case req.Enabled != nil:
		err = s.deps.Features.DisableFeature(name)
	}
	for email, enabled := range req.Overrides {
		if err != nil {
			break
		}
		if enabled == nil {
			s.deps.Features.ClearUserOverride(email, name)
			continue
		}
		err = s.deps.Features.SetUserOverride(email, name, *enabled)
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("feature update failed", logger.String("feature", name), logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
		return
	}

	logger.FromContext(r.Context()).Info("feature updated", logger.String("feature", name))
	writeJSON(w, http.StatusOK, s.featureView(s.deps.Features.GetAllFeatures()[name], ""))
}
