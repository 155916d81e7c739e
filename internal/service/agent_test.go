package service

import (
	"context"
	"testing"

	"consultd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterKeepsCachedStaffID(t *testing.T) {
	store := NewFakeAgentStore(model.Agent{
		ID: "a1", DirectoryID: "dir-1", Name: "Old Name",
		Email: "old@example.com", BookingsStaffID: "staff-1",
	})
	svc := NewAgentService(store)

	agent, err := svc.Register(context.Background(), RegisterAgentInput{
		DirectoryID: "dir-1", Name: "New Name", Email: "new@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "a1", agent.ID)
	assert.Equal(t, "New Name", agent.Name)
	assert.Equal(t, "staff-1", agent.BookingsStaffID)
}

func TestRegisterNewAgent(t *testing.T) {
	svc := NewAgentService(NewFakeAgentStore())

	agent, err := svc.Register(context.Background(), RegisterAgentInput{
		DirectoryID: "dir-2", Name: "Sam", Email: "sam@example.com", Locale: "en-GB",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, "en-GB", agent.Locale)
}

func TestPatchIsSelfOnly(t *testing.T) {
	store := NewFakeAgentStore(model.Agent{ID: "a1", DirectoryID: "dir-1", Name: "Sam", Locale: "en-US"})
	svc := NewAgentService(store)

	_, err := svc.Patch(context.Background(), model.IdName{ID: "dir-other"}, "dir-1", PatchAgentInput{Name: "Mallory"})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, KindUnauthorized, svcErr.Kind)

	agent, err := svc.Patch(context.Background(), model.IdName{ID: "dir-1"}, "dir-1", PatchAgentInput{Locale: "fr-FR"})
	require.NoError(t, err)
	assert.Equal(t, "Sam", agent.Name)
	assert.Equal(t, "fr-FR", agent.Locale)
}
