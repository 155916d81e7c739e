package api

import (
	"net/http"
	"os"

	"consultd/internal/auth"
	"consultd/internal/model"
	"consultd/internal/service"
	"consultd/internal/ws"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Dependencies struct {
	Requests *service.RequestService
	Agents   *service.AgentService
	Routing  *service.RoutingService
	Hub      *ws.Hub
	Log      *zap.Logger
}

func Routes(d Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(d.Log))

	jwtConfig := auth.NewJWTConfig(os.Getenv("JWT_SECRET"))
	r.Use(jwtConfig.Middleware)

	// Consult endpoints
	r.Post("/consults", d.createConsult)
	r.Get("/consults", d.listConsults)
	r.Get("/consults/mine", d.listMyConsults)
	r.Get("/consults/issupervisor", d.isSupervisor)
	r.Get("/consults/conversation/{conversationId}", d.getConsultByConversation)
	r.Get("/consults/{id}", d.getConsult)
	r.Get("/consults/{id}/channel", d.getConsultChannel)
	r.Post("/consults/{id}/assign", d.assignConsult)
	r.Post("/consults/{id}/reassign", d.reassignConsult)
	r.Post("/consults/{id}/complete", d.completeConsult)
	r.Post("/consults/{id}/notes", d.addNote)
	r.Post("/consults/{id}/attachments", d.addAttachment)
	r.Post("/consults/{id}/conversation", d.attachConversation)

	// Agent endpoints
	r.Post("/agents", d.registerAgent)
	r.Get("/agents/me", d.getMe)
	r.Patch("/agents/{directoryId}", d.patchAgent)

	// Channel and mapping administration
	r.Get("/channels", d.listChannels)
	r.Post("/channels", d.registerChannel)
	r.Get("/channelmappings", d.listMappings)
	r.Post("/channelmappings", d.upsertMapping)
	r.Delete("/channelmappings/{id}", d.deleteMapping)
	r.Get("/categories", d.listCategories)

	// WebSocket endpoint
	r.Get("/ws", d.wsHandler)

	return r
}

// requireActor enforces an authenticated identity on mutating routes.
func (d Dependencies) requireActor(w http.ResponseWriter, r *http.Request) (model.IdName, bool) {
	actor := auth.GetActor(r.Context())
	if actor.ID == "" {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication is required.", d.Log)
		return model.IdName{}, false
	}
	return actor, true
}
