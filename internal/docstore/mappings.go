package docstore

import (
	"context"

	"consultd/internal/model"
)

// Channel mappings are partitioned by their own id.
func mappingKey(m *model.ChannelMapping) Key {
	return Key{ID: m.ID, PartitionKey: m.ID}
}

// MappingKey returns the storage key for a mapping id.
func MappingKey(id string) Key {
	return Key{ID: id, PartitionKey: id}
}

type MappingRepo struct {
	*Collection[model.ChannelMapping]
}

func NewMappingRepo(s *Store) *MappingRepo {
	return &MappingRepo{NewCollection(s, "channel_mappings", mappingKey)}
}

// GetByCategory returns the mapping routing a category, or ErrNotFound.
func (r *MappingRepo) GetByCategory(ctx context.Context, category string) (*model.ChannelMapping, error) {
	docs, err := r.Query(ctx, "data->>'category' = $1", category)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

func (r *MappingRepo) GetByChannelIDs(ctx context.Context, channelIDs []string) ([]model.ChannelMapping, error) {
	return r.Query(ctx, "data->>'channelId' = ANY($1)", channelIDs)
}

func (r *MappingRepo) All(ctx context.Context) ([]model.ChannelMapping, error) {
	return r.Query(ctx, "")
}
