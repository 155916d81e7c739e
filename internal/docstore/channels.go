package docstore

import (
	"context"

	"consultd/internal/model"
)

// Channels are partitioned by the platform channel id.
func channelKey(c *model.Channel) Key {
	return Key{ID: c.ID, PartitionKey: c.ChannelID}
}

type ChannelRepo struct {
	*Collection[model.Channel]
}

func NewChannelRepo(s *Store) *ChannelRepo {
	return &ChannelRepo{NewCollection(s, "channels", channelKey)}
}

func (r *ChannelRepo) GetByChannelID(ctx context.Context, channelID string) (*model.Channel, error) {
	docs, err := r.Query(ctx, "partition_key = $1", channelID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

func (r *ChannelRepo) GetByTeamID(ctx context.Context, teamID string) ([]model.Channel, error) {
	return r.Query(ctx, "data->>'teamId' = $1", teamID)
}

func (r *ChannelRepo) All(ctx context.Context) ([]model.Channel, error) {
	return r.Query(ctx, "")
}
