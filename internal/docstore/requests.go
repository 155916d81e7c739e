package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"consultd/internal/model"
)

// Requests are partitioned by their own id.
func requestKey(r *model.Request) Key {
	return Key{ID: r.ID, PartitionKey: r.ID}
}

// RequestKey returns the storage key for a request id.
func RequestKey(id string) Key {
	return Key{ID: id, PartitionKey: id}
}

type RequestRepo struct {
	*Collection[model.Request]
}

func NewRequestRepo(s *Store) *RequestRepo {
	return &RequestRepo{NewCollection(s, "requests", requestKey)}
}

// GetByID loads a request by id, or ErrNotFound.
func (r *RequestRepo) GetByID(ctx context.Context, id string) (*model.Request, error) {
	return r.Get(ctx, RequestKey(id))
}

// GetByAssignedTo returns the requests currently on an agent's plate.
func (r *RequestRepo) GetByAssignedTo(ctx context.Context, agentID string) ([]model.Request, error) {
	return r.Query(ctx,
		"data->>'assignedToId' = $1 AND data->>'status' = ANY($2)",
		agentID, []string{string(model.StatusAssigned), string(model.StatusReassignRequested)},
	)
}

// GetByConversationID resolves the request a posted message belongs to.
func (r *RequestRepo) GetByConversationID(ctx context.Context, conversationID string) (*model.Request, error) {
	docs, err := r.Query(ctx, "data->>'conversationId' = $1", conversationID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

// GetFiltered returns requests matching any of the given categories and
// any of the given statuses. An empty slice leaves that dimension open.
func (r *RequestRepo) GetFiltered(ctx context.Context, categories []string, statuses []model.Status) ([]model.Request, error) {
	where := ""
	args := make([]any, 0, 2)
	if len(categories) > 0 {
		args = append(args, categories)
		where = fmt.Sprintf("data->>'category' = ANY($%d)", len(args))
	}
	if len(statuses) > 0 {
		ss := make([]string, 0, len(statuses))
		for _, s := range statuses {
			ss = append(ss, string(s))
		}
		args = append(args, ss)
		clause := fmt.Sprintf("data->>'status' = ANY($%d)", len(args))
		if where != "" {
			where += " AND " + clause
		} else {
			where = clause
		}
	}
	return r.Query(ctx, where, args...)
}

// UpdateVersioned writes the request only if nobody else has written it
// since it was read. The stored version must still match the version
// the caller read; on success the document is persisted with the
// version bumped. A mismatch leaves the store untouched and returns
// ErrConflict.
func (r *RequestRepo) UpdateVersioned(ctx context.Context, req *model.Request) error {
	if err := r.ensureInit(ctx); err != nil {
		return err
	}
	readVersion := req.Version
	req.Version = readVersion + 1
	raw, err := json.Marshal(req)
	if err != nil {
		req.Version = readVersion
		return fmt.Errorf("failed to encode request: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE requests SET data = $3
			WHERE id = $1 AND partition_key = $1 AND (data->>'version')::bigint = $2`,
		req.ID, readVersion, raw,
	)
	if err != nil {
		req.Version = readVersion
		return fmt.Errorf("failed to update request %s: %w", req.ID, err)
	}
	if tag.RowsAffected() == 0 {
		req.Version = readVersion
		return ErrConflict
	}
	return nil
}
