package api

import (
	"net/http"
	"strings"

	"lifesim/internal/advisory"
)

func (s *Server) handleMissionStart(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		MissionKey  string               `json:"mission_key"`
		Constraints advisory.Constraints `json:"constraints"`
	}
	in.Constraints = advisory.AllowAll()
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := strings.TrimSpace(in.MissionKey)
	if key == "" {
		writeError(w, http.StatusBadRequest, "mission_key is required")
		return
	}
	id, err := s.players.StartMission(r.Context(), user.UserID, key, in.Constraints)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"mission_id":  id,
		"mission_key": key,
		"constraints": in.Constraints,
	})
}

func (s *Server) handleMissionActive(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	c, err := s.players.ActiveConstraints(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":      c != nil,
		"constraints": c,
	})
}

func (s *Server) handleMissionComplete(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.players.CompleteMission(r.Context(), user.UserID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCheckAction answers whether the active mission allows an action. With
// no mission in progress everything is allowed.
func (s *Server) handleCheckAction(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in actionRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Action) == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	c, err := s.players.ActiveConstraints(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusOK, advisory.Decision{Allowed: true})
		return
	}
	writeJSON(w, http.StatusOK, c.CheckAction(strings.TrimSpace(in.Action), in.ActionData))
}
