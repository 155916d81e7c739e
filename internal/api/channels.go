package api

import (
	"encoding/json"
	"net/http"

	"consultd/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := d.Routing.ListChannels(r.Context())
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (d Dependencies) registerChannel(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireActor(w, r); !ok {
		return
	}
	var body service.RegisterChannelInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", d.Log)
		return
	}

	ch, err := d.Routing.RegisterChannel(r.Context(), body)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (d Dependencies) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := d.Routing.ListMappings(r.Context())
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

func (d Dependencies) upsertMapping(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireActor(w, r); !ok {
		return
	}
	var body service.UpsertMappingInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", d.Log)
		return
	}

	m, err := d.Routing.UpsertMapping(r.Context(), body)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (d Dependencies) deleteMapping(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireActor(w, r); !ok {
		return
	}
	if err := d.Routing.DeleteMapping(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d Dependencies) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := d.Routing.Categories(r.Context())
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}
