package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consultd/internal/docstore"
	"consultd/internal/model"

	"github.com/oklog/ulid/v2"
)

type AgentService struct {
	agents AgentStore
}

func NewAgentService(agents AgentStore) *AgentService {
	return &AgentService{agents: agents}
}

type RegisterAgentInput struct {
	DirectoryID string `json:"directoryId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Locale      string `json:"locale,omitempty"`
	ChatID      string `json:"chatId,omitempty"`
	ServiceURL  string `json:"serviceUrl,omitempty"`
}

// Register upserts the agent record created when the app is installed
// for a user. Re-registering refreshes the contact fields but keeps
// the cached staff id.
func (s *AgentService) Register(ctx context.Context, in RegisterAgentInput) (*model.Agent, error) {
	if in.DirectoryID == "" {
		return nil, validationErr("A directory id is required.", nil)
	}

	now := time.Now().UTC()
	agent, err := s.agents.GetByDirectoryID(ctx, in.DirectoryID)
	if errors.Is(err, docstore.ErrNotFound) {
		agent = &model.Agent{
			ID:              ulid.Make().String(),
			DirectoryID:     in.DirectoryID,
			CreatedDateTime: now,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	agent.Name = in.Name
	agent.Email = in.Email
	if in.Locale != "" {
		agent.Locale = in.Locale
	}
	if in.ChatID != "" {
		agent.ChatID = in.ChatID
	}
	if in.ServiceURL != "" {
		agent.ServiceURL = in.ServiceURL
	}
	agent.UpdatedDateTime = now

	if err := s.agents.Upsert(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to persist agent: %w", err)
	}
	return agent, nil
}

type PatchAgentInput struct {
	Name   string `json:"name,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// Patch updates an agent's own profile. Agents may only patch
// themselves.
func (s *AgentService) Patch(ctx context.Context, actor model.IdName, directoryID string, in PatchAgentInput) (*model.Agent, error) {
	if actor.ID != directoryID {
		return nil, unauthorizedErr("Agents may only update their own profile.")
	}

	agent, err := s.agents.GetByDirectoryID(ctx, directoryID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("The agent is not registered.")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	if in.Name != "" {
		agent.Name = in.Name
	}
	if in.Locale != "" {
		agent.Locale = in.Locale
	}
	agent.UpdatedDateTime = time.Now().UTC()

	if err := s.agents.Upsert(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to persist agent: %w", err)
	}
	return agent, nil
}

func (s *AgentService) Get(ctx context.Context, directoryID string) (*model.Agent, error) {
	agent, err := s.agents.GetByDirectoryID(ctx, directoryID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, notFoundErr("The agent is not registered.")
	}
	return agent, err
}
