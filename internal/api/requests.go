package api

import (
	"encoding/json"
	"net/http"
	"time"

	"consultd/internal/model"
	"consultd/internal/service"

	"github.com/go-chi/chi/v5"
)

func (d Dependencies) createConsult(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireActor(w, r); !ok {
		return
	}
	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", d.Log)
		return
	}

	req, err := d.Requests.Create(r.Context(), payload)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (d Dependencies) getConsult(w http.ResponseWriter, r *http.Request) {
	req, err := d.Requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Dependencies) listConsults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	statuses := make([]model.Status, 0)
	for _, s := range q["status"] {
		statuses = append(statuses, model.Status(s))
	}

	reqs, err := d.Requests.ListFiltered(r.Context(), q["category"], statuses)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (d Dependencies) listMyConsults(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	reqs, err := d.Requests.ListByAssignee(r.Context(), actor.ID)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (d Dependencies) getConsultByConversation(w http.ResponseWriter, r *http.Request) {
	req, err := d.Requests.GetByConversation(r.Context(), chi.URLParam(r, "conversationId"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Dependencies) getConsultChannel(w http.ResponseWriter, r *http.Request) {
	req, err := d.Requests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	ch, err := d.Routing.ChannelForRequest(r.Context(), req.Category)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (d Dependencies) isSupervisor(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	category := r.URL.Query().Get("category")
	if category == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "A category is required", d.Log)
		return
	}
	isSup, err := d.Requests.IsSupervisor(r.Context(), category, actor.ID)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isSupervisor": isSup})
}

type assignBody struct {
	AssigneeID   string    `json:"assigneeId,omitempty"`
	AssigneeName string    `json:"assigneeName,omitempty"`
	Start        time.Time `json:"startDateTime"`
	End          time.Time `json:"endDateTime"`
	Comment      string    `json:"comment,omitempty"`
}

func (d Dependencies) assignConsult(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	var body assignBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", d.Log)
		return
	}
	if body.Start.IsZero() || body.End.IsZero() || !body.End.After(body.Start) {
		WriteError(w, http.StatusBadRequest, "bad_request", "A valid time slot is required", d.Log)
		return
	}

	req, err := d.Requests.Assign(r.Context(), actor, service.AssignInput{
		RequestID:    chi.URLParam(r, "id"),
		AssigneeID:   body.AssigneeID,
		AssigneeName: body.AssigneeName,
		Slot:         model.TimeBlock{StartDateTime: body.Start, EndDateTime: body.End},
		Comment:      body.Comment,
	})
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type commentBody struct {
	Comment string `json:"comment,omitempty"`
}

func (d Dependencies) reassignConsult(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	var body commentBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	req, err := d.Requests.RequestReassign(r.Context(), actor, chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Dependencies) completeConsult(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	var body commentBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	req, err := d.Requests.Complete(r.Context(), actor, chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Dependencies) addNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "Note text is required", d.Log)
		return
	}

	req, err := d.Requests.AddNote(r.Context(), actor, chi.URLParam(r, "id"), body.Text)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Dependencies) addAttachment(w http.ResponseWriter, r *http.Request) {
	actor, ok := d.requireActor(w, r)
	if !ok {
		return
	}
	var body struct {
		Title string `json:"title"`
		URI   string `json:"uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body", d.Log)
		return
	}

	req, err := d.Requests.AddAttachment(r.Context(), actor, chi.URLParam(r, "id"), body.Title, body.URI)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (d Dependencies) attachConversation(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.requireActor(w, r); !ok {
		return
	}
	var body struct {
		ConversationID string `json:"conversationId"`
		ActivityID     string `json:"activityId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ConversationID == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "A conversation id is required", d.Log)
		return
	}

	req, err := d.Requests.AttachConversation(r.Context(), chi.URLParam(r, "id"), body.ConversationID, body.ActivityID)
	if err != nil {
		WriteServiceError(w, err, d.Log)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
