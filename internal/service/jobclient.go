package service

import (
	"time"

	"consultd/internal/jobs"

	"github.com/hibiken/asynq"
)

// JobClient interface for scheduling background jobs
type JobClient interface {
	ScheduleConsultReminder(requestID string, startAt time.Time) error
	ScheduleUnassignedNudge(requestID string, after time.Duration) error
}

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) ScheduleConsultReminder(requestID string, startAt time.Time) error {
	return jobs.ScheduleConsultReminder(c.client, requestID, startAt)
}

func (c *AsynqJobClient) ScheduleUnassignedNudge(requestID string, after time.Duration) error {
	return jobs.ScheduleUnassignedNudge(c.client, requestID, after)
}
