// Package pubsub is the notification boundary. The core hands it
// consult events and never formats user-facing text; delivery-side
// subscribers (bot workers, dashboards) render and send.
package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WSHub receives a copy of every published event for in-process
// fan-out to connected dashboards.
type WSHub interface {
	Publish(channel string, message map[string]interface{})
}

// Bus publishes consult events over redis. Every event goes to three
// places: pub/sub for external subscribers, a stream for replay, and
// the in-process hub for live websocket delivery.
type Bus struct {
	rdb     *redis.Client
	streams *Streams
	hub     WSHub
	log     *zap.Logger
	ctx     context.Context
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{
		rdb:     rdb,
		streams: NewStreams(rdb, log),
		log:     log,
		ctx:     context.Background(),
	}
}

// SetWSHub wires the in-process hub. Set once during startup, before
// any publish.
func (b *Bus) SetWSHub(hub WSHub) {
	b.hub = hub
}

// GetStreams exposes the replay layer for the websocket hub.
func (b *Bus) GetStreams() *Streams {
	return b.streams
}

// PublishRequest emits an event on a consult's own feed.
func (b *Bus) PublishRequest(requestID string, event map[string]interface{}) error {
	return b.Publish("request:"+requestID, event)
}

// PublishChannel emits an event on a team channel's feed.
func (b *Bus) PublishChannel(channelID string, event map[string]interface{}) error {
	return b.Publish("channel:"+channelID, event)
}

// PublishAgent emits an event on an agent's personal feed.
func (b *Bus) PublishAgent(agentID string, event map[string]interface{}) error {
	return b.Publish("agent:"+agentID, event)
}

// Publish sends an event to pub/sub subscribers, appends it to the
// feed's stream, and hands a sequence-stamped copy to the websocket
// hub. A stream failure is logged but does not fail the publish; live
// delivery still happens, only replay loses the event.
func (b *Bus) Publish(channel string, event map[string]interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(b.ctx, channel, payload).Err(); err != nil {
		b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
		return err
	}

	seq, err := b.streams.PublishEvent(channel, event)
	if err != nil {
		b.log.Warn("Failed to append event to stream", zap.String("channel", channel), zap.Error(err))
	}

	if b.hub != nil {
		stamped := make(map[string]interface{}, len(event)+1)
		for k, v := range event {
			stamped[k] = v
		}
		stamped["seq"] = seq
		b.hub.Publish(channel, stamped)
	}

	b.log.Debug("Published event",
		zap.String("channel", channel),
		zap.Int64("seq", seq))
	return nil
}
