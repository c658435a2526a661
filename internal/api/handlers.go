// Package api provides HTTP handlers for PulsePoll endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/BTreeMap/PulsePoll/internal/catalog"
	"github.com/BTreeMap/PulsePoll/internal/models"
	"github.com/BTreeMap/PulsePoll/internal/response"
	"github.com/BTreeMap/PulsePoll/internal/settings"
)

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// listSensorsHandler handles GET /sensors.
func (s *Server) listSensorsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listSensorsHandler: processing request", "path", r.URL.Path)
	defs := s.catalog.Definitions()
	writeJSONResponse(w, http.StatusOK, models.Success(defs))
}

// sensorView is the per-sensor detail returned by GET /sensors/{id}: the
// definition plus its persisted interval and display label.
type sensorView struct {
	models.SensorDefinition
	IntervalMinutes int64  `json:"interval_minutes"`
	IntervalLabel   string `json:"interval_label,omitempty"`
}

// getSensorHandler handles GET /sensors/{id}.
func (s *Server) getSensorHandler(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["id"]
	slog.Debug("Server.getSensorHandler: processing request", "sensor_id", sensorID)

	def, err := s.catalog.Lookup(sensorID)
	if err != nil {
		slog.Warn("Server.getSensorHandler: unknown sensor", "sensor_id", sensorID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Sensor not found"))
		return
	}
	minutes, err := s.store.GetInterval(sensorID)
	if err != nil {
		slog.Error("Server.getSensorHandler: interval read failed", "error", err, "sensor_id", sensorID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read interval"))
		return
	}

	view := sensorView{SensorDefinition: def, IntervalMinutes: minutes}
	if label, err := def.IntervalLabel(minutes); err == nil {
		view.IntervalLabel = label
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

// fireSensorHandler handles POST /sensors/{id}/fire: simulate one trigger
// firing for the sensor without waiting for its interval.
func (s *Server) fireSensorHandler(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["id"]
	slog.Debug("Server.fireSensorHandler: processing request", "sensor_id", sensorID)

	def, err := s.catalog.Lookup(sensorID)
	if err != nil {
		slog.Warn("Server.fireSensorHandler: unknown sensor", "sensor_id", sensorID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Sensor not found"))
		return
	}

	event := models.TriggerEvent{
		EventID:    uuid.NewString(),
		SensorID:   def.ID,
		FiredAt:    time.Now().UnixMilli(),
		Definition: def,
	}
	s.prompter.Show(r.Context(), event)

	slog.Info("Server.fireSensorHandler: fire simulated", "sensor_id", sensorID, "event_id", event.EventID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Fire simulated", event))
}

// listTriggersHandler handles GET /triggers.
func (s *Server) listTriggersHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listTriggersHandler: processing request", "path", r.URL.Path)
	triggers := s.scheduler.Active()
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"triggers": triggers,
		"count":    len(triggers),
	})
}

// applySettingsHandler handles POST /settings with a settings.Change body.
func (s *Server) applySettingsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var change settings.Change
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		slog.Warn("Server.applySettingsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.dispatcher.Apply(change); err != nil {
		slog.Warn("Server.applySettingsHandler: change rejected", "error", err, "kind", change.Kind)
		status := http.StatusInternalServerError
		if errors.Is(err, settings.ErrUnknownChangeKind) || errors.Is(err, catalog.ErrSensorNotFound) {
			status = http.StatusBadRequest
		}
		writeJSONResponse(w, status, models.Error(err.Error()))
		return
	}

	slog.Info("Server.applySettingsHandler: change applied", "kind", change.Kind)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Settings applied", nil))
}

// intentRequest is the POST /intents body: a notification entry intent plus
// the event payload the notification carried.
type intentRequest struct {
	Kind        models.IntentKind `json:"kind"`
	OptionLabel string            `json:"option_label,omitempty"`
	Event       json.RawMessage   `json:"event"`
}

// intentHandler handles POST /intents: dispatch one notification entry
// intent. Open intents create a response session and return its id and
// view; delete and quick-action intents complete immediately.
func (s *Server) intentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.intentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	intent := models.EntryIntent{Kind: req.Kind, OptionLabel: req.OptionLabel}
	if err := intent.Validate(); err != nil {
		slog.Warn("Server.intentHandler: invalid intent", "error", err, "kind", req.Kind)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	session := s.responses.HandleIntent(r.Context(), intent, req.Event)
	if session == nil {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Intent handled", nil))
		return
	}

	sessionID := uuid.NewString()
	s.mu.Lock()
	s.sessions[sessionID] = session
	s.mu.Unlock()

	slog.Info("Server.intentHandler: response session opened", "session_id", sessionID)
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]interface{}{
		"session_id": sessionID,
		"state":      session.State(),
		"view":       session.View(),
	}))
}

// lookupSession resolves the session path variable, writing the 404 itself
// when absent.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*response.Session, string, bool) {
	sessionID := mux.Vars(r)["id"]
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		slog.Warn("Server.lookupSession: unknown session", "session_id", sessionID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return nil, "", false
	}
	return session, sessionID, true
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, sessionID, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"session_id": sessionID,
		"state":      session.State(),
		"view":       session.View(),
	}))
}

// answerRequest carries an option selection or free text for a session.
type answerRequest struct {
	Option string `json:"option,omitempty"`
	Text   string `json:"text,omitempty"`
}

// selectOptionHandler handles POST /sessions/{id}/select.
func (s *Server) selectOptionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	session, sessionID, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.selectOptionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := session.SelectOption(r.Context(), req.Option); err != nil {
		writeSessionError(w, err)
		return
	}
	slog.Debug("Server.selectOptionHandler: option selected", "session_id", sessionID, "state", session.State())
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"state": session.State()}))
}

// setTextHandler handles POST /sessions/{id}/text.
func (s *Server) setTextHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	session, sessionID, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.setTextHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := session.SetText(r.Context(), req.Text); err != nil {
		writeSessionError(w, err)
		return
	}
	slog.Debug("Server.setTextHandler: text recorded", "session_id", sessionID)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"state": session.State()}))
}

// submitHandler handles POST /sessions/{id}/submit.
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	session, sessionID, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := session.Submit(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	slog.Info("Server.submitHandler: response submitted", "session_id", sessionID)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"state": session.State()}))
}

// ignoreHandler handles POST /sessions/{id}/ignore.
func (s *Server) ignoreHandler(w http.ResponseWriter, r *http.Request) {
	session, sessionID, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := session.Ignore(r.Context()); err != nil {
		writeSessionError(w, err)
		return
	}
	slog.Info("Server.ignoreHandler: response ignored", "session_id", sessionID)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{"state": session.State()}))
}

// listOutcomesHandler handles GET /outcomes.
func (s *Server) listOutcomesHandler(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.store.GetOutcomes()
	if err != nil {
		slog.Error("Server.listOutcomesHandler: fetch failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch outcomes"))
		return
	}
	slog.Debug("Server.listOutcomesHandler: outcomes fetched", "count", len(outcomes))
	writeJSONResponse(w, http.StatusOK, models.Success(outcomes))
}

// writeSessionError maps state machine errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionTerminal):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
	case errors.Is(err, models.ErrEmptyAnswer),
		errors.Is(err, models.ErrOptionNotInCatalog),
		errors.Is(err, models.ErrModeForbidsOption),
		errors.Is(err, models.ErrModeForbidsText):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update session"))
	}
}
