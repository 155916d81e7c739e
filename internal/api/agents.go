package api

import (
	"encoding/json"
	"net/http"

	"consultd/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) registerAgent(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireActor(w, r); !ok {
		return
	}
	var body service.RegisterAgentInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", d.Log)
		return
	}

	agent, err := d.Agents.Register(r.Context(), body)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (d Dependencies) getMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	agent, err := d.Agents.Get(r.Context(), actor.ID)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (d Dependencies) patchAgent(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	var body service.PatchAgentInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", d.Log)
		return
	}

	agent, err := d.Agents.Patch(r.Context(), actor, chi.URLParam(r, "directoryId"), body)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}
