package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consultd/internal/docstore"
	"consultd/internal/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oklog/ulid/v2"
)

type RoutingStore interface {
	MappingStore
	All(ctx context.Context) ([]model.ChannelMapping, error)
	GetByChannelIDs(ctx context.Context, channelIDs []string) ([]model.ChannelMapping, error)
	Upsert(ctx context.Context, m *model.ChannelMapping) error
	Delete(ctx context.Context, key docstore.Key) error
	Get(ctx context.Context, key docstore.Key) (*model.ChannelMapping, error)
}

type ChannelStore interface {
	GetByChannelID(ctx context.Context, channelID string) (*model.Channel, error)
	GetByTeamID(ctx context.Context, teamID string) ([]model.Channel, error)
	All(ctx context.Context) ([]model.Channel, error)
	Upsert(ctx context.Context, c *model.Channel) error
}

// RoutingService owns channel registration and category-to-channel
// mappings. Category lookups sit on the consult creation hot path, so
// they go through a short-lived cache that mapping writes invalidate.
type RoutingService struct {
	mappings RoutingStore
	channels ChannelStore
	cache    *expirable.LRU[string, *model.ChannelMapping]
}

func NewRoutingService(mappings RoutingStore, channels ChannelStore) *RoutingService {
	return &RoutingService{
		mappings: mappings,
		channels: channels,
		cache:    expirable.NewLRU[string, *model.ChannelMapping](256, nil, 5*time.Minute),
	}
}

// GetMappingByCategory resolves a category, preferring the cache.
func (s *RoutingService) GetMappingByCategory(ctx context.Context, category string) (*model.ChannelMapping, error) {
	if m, ok := s.cache.Get(category); ok {
		return m, nil
	}
	m, err := s.mappings.GetByCategory(ctx, category)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("No channel is configured for this category.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel mapping: %w", err)
	}
	s.cache.Add(category, m)
	return m, nil
}

// Categories lists every mapped category.
func (s *RoutingService) Categories(ctx context.Context) ([]string, error) {
	mappings, err := s.mappings.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	categories := make([]string, 0, len(mappings))
	for _, m := range mappings {
		categories = append(categories, m.Category)
	}
	return categories, nil
}

func (s *RoutingService) ListMappings(ctx context.Context) ([]model.ChannelMapping, error) {
	return s.mappings.All(ctx)
}

type UpsertMappingInput struct {
	ID                 string         `json:"id,omitempty"`
	ChannelID          string         `json:"channelId"`
	Category           string         `json:"category"`
	Supervisors        []model.IdName `json:"supervisors,omitempty"`
	BookingsBusinessID string         `json:"bookingsBusinessId,omitempty"`
	BookingsServiceID  string         `json:"bookingsServiceId,omitempty"`
}

// UpsertMapping creates or replaces a mapping and drops any cached
// entry for its category.
func (s *RoutingService) UpsertMapping(ctx context.Context, in UpsertMappingInput) (*model.ChannelMapping, error) {
	if in.ChannelID == "" || in.Category == "" {
		return nil, validationErr("A mapping needs a channel id and a category.", nil)
	}
	if _, err := s.channels.GetByChannelID(ctx, in.ChannelID); errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("The channel is not registered.")
	} else if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}

	now := time.Now().UTC()
	m := &model.ChannelMapping{
		ID:                 in.ID,
		ChannelID:          in.ChannelID,
		Category:           in.Category,
		Supervisors:        in.Supervisors,
		BookingsBusinessID: in.BookingsBusinessID,
		BookingsServiceID:  in.BookingsServiceID,
		CreatedDateTime:    now,
		UpdatedDateTime:    now,
	}
	if m.ID == "" {
		m.ID = ulid.Make().String()
	} else if existing, err := s.mappings.Get(ctx, docstore.MappingKey(m.ID)); err == nil {
		m.CreatedDateTime = existing.CreatedDateTime
	}

	if err := s.mappings.Upsert(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to persist mapping: %w", err)
	}
	s.cache.Remove(m.Category)
	return m, nil
}

// DeleteMapping removes a mapping. Deleting an unknown id is a no-op.
func (s *RoutingService) DeleteMapping(ctx context.Context, id string) error {
	if m, err := s.mappings.Get(ctx, docstore.MappingKey(id)); err == nil {
		s.cache.Remove(m.Category)
	}
	if err := s.mappings.Delete(ctx, docstore.MappingKey(id)); err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

type RegisterChannelInput struct {
	ChannelID  string `json:"channelId"`
	TeamID     string `json:"teamId"`
	TenantID   string `json:"tenantId,omitempty"`
	Name       string `json:"name,omitempty"`
	ServiceURL string `json:"serviceUrl,omitempty"`
}

// RegisterChannel records a destination the notification boundary can
// post to.
func (s *RoutingService) RegisterChannel(ctx context.Context, in RegisterChannelInput) (*model.Channel, error) {
	if in.ChannelID == "" {
		return nil, validationErr("A channel id is required.", nil)
	}

	ch, err := s.channels.GetByChannelID(ctx, in.ChannelID)
	if errors.Is(err, docstore.ErrNotFound) {
		ch = &model.Channel{
			ID:              ulid.Make().String(),
			ChannelID:       in.ChannelID,
			CreatedDateTime: time.Now().UTC(),
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}

	ch.TeamID = in.TeamID
	ch.TenantID = in.TenantID
	ch.Name = in.Name
	ch.ServiceURL = in.ServiceURL

	if err := s.channels.Upsert(ctx, ch); err != nil {
		return nil, fmt.Errorf("failed to persist channel: %w", err)
	}
	return ch, nil
}

func (s *RoutingService) ListChannels(ctx context.Context) ([]model.Channel, error) {
	return s.channels.All(ctx)
}

func (s *RoutingService) ChannelForRequest(ctx context.Context, category string) (*model.Channel, error) {
	mapping, err := s.GetMappingByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	ch, err := s.channels.GetByChannelID(ctx, mapping.ChannelID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("The mapped channel is not registered.")
	}
	return ch, err
}
