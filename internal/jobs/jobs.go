package jobs

import (
	"context"
	"fmt"
	"time"

	"consultd/internal/docstore"
	"consultd/internal/model"
	"consultd/internal/pubsub"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// reminderLead is how long before the appointment the assigned agent
// gets pinged.
const reminderLead = 15 * time.Minute

type JobServer struct {
	server   *asynq.Server
	client   *asynq.Client
	requests *docstore.RequestRepo
	mappings *docstore.MappingRepo
	bus      *pubsub.Bus
	log      *zap.Logger
}

func NewJobServer(redisAddr string, requests *docstore.RequestRepo, mappings *docstore.MappingRepo, bus *pubsub.Bus, log *zap.Logger) (*JobServer, *asynq.Client) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	client := asynq.NewClient(redisOpt)

	return &JobServer{
		server:   server,
		client:   client,
		requests: requests,
		mappings: mappings,
		bus:      bus,
		log:      log,
	}, client
}

func (js *JobServer) Start() error {
	mux := asynq.NewServeMux()

	mux.HandleFunc("consult:reminder", js.handleConsultReminder)
	mux.HandleFunc("consult:nudge", js.handleUnassignedNudge)

	return js.server.Start(mux)
}

func (js *JobServer) Stop() {
	js.server.Shutdown()
	js.client.Close()
}

// Job handlers. Each one re-loads the consult and checks its state is
// still the one the job was scheduled for; stale jobs drop silently.

func (js *JobServer) handleConsultReminder(ctx context.Context, t *asynq.Task) error {
	requestID := string(t.Payload())

	req, err := js.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get consult: %w", err)
	}

	// Only remind when the appointment is still on someone's calendar.
	if req.Status != model.StatusAssigned || req.AssignedTimeBlock == nil {
		return nil
	}

	_ = js.bus.PublishAgent(req.AssignedToID, map[string]interface{}{
		"type":       "consult.reminder",
		"requestId":  requestID,
		"friendlyId": req.FriendlyID,
		"startAt":    req.AssignedTimeBlock.StartDateTime.Format(time.RFC3339),
		"joinUri":    req.JoinURI,
	})

	js.log.Info("Consult reminder sent",
		zap.String("request_id", requestID),
		zap.String("agent_id", req.AssignedToID))
	return nil
}

func (js *JobServer) handleUnassignedNudge(ctx context.Context, t *asynq.Task) error {
	requestID := string(t.Payload())

	req, err := js.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to get consult: %w", err)
	}

	// Somebody picked it up in the meantime.
	if req.Status != model.StatusUnassigned {
		return nil
	}

	event := map[string]interface{}{
		"type":       "consult.unassigned_nudge",
		"requestId":  requestID,
		"friendlyId": req.FriendlyID,
		"category":   req.Category,
	}
	_ = js.bus.PublishRequest(requestID, event)
	if mapping, err := js.mappings.GetByCategory(ctx, req.Category); err == nil {
		_ = js.bus.PublishChannel(mapping.ChannelID, event)
	}

	js.log.Info("Unassigned consult nudge sent", zap.String("request_id", requestID))
	return nil
}

// Schedule jobs

func ScheduleConsultReminder(client *asynq.Client, requestID string, startAt time.Time) error {
	notifyAt := startAt.Add(-reminderLead)
	if notifyAt.Before(time.Now()) {
		return nil // appointment starts too soon, skip the reminder
	}

	task := asynq.NewTask("consult:reminder", []byte(requestID))
	_, err := client.Enqueue(task, asynq.ProcessIn(time.Until(notifyAt)), asynq.Queue("critical"))
	return err
}

func ScheduleUnassignedNudge(client *asynq.Client, requestID string, after time.Duration) error {
	task := asynq.NewTask("consult:nudge", []byte(requestID))
	_, err := client.Enqueue(task, asynq.ProcessIn(after), asynq.Queue("low"))
	return err
}
