package docstore

import (
	"context"

	"consultd/internal/model"
)

// Agents are partitioned by directory id, so the common lookup is a
// single-partition read.
func agentKey(a *model.Agent) Key {
	return Key{ID: a.ID, PartitionKey: a.DirectoryID}
}

type AgentRepo struct {
	*Collection[model.Agent]
}

func NewAgentRepo(s *Store) *AgentRepo {
	return &AgentRepo{NewCollection(s, "agents", agentKey)}
}

// GetByDirectoryID returns the agent registered under a directory id,
// or ErrNotFound.
func (r *AgentRepo) GetByDirectoryID(ctx context.Context, directoryID string) (*model.Agent, error) {
	docs, err := r.Query(ctx, "partition_key = $1", directoryID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}
