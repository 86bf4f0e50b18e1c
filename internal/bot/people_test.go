package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/coffeebot/internal/coffee"
	"go.uber.org/zap"
)

func TestPeopleResolveRegistersOnce(t *testing.T) {
	ctx := context.Background()
	store := coffee.NewMemoryStore()
	p, err := newPeople(store, zap.NewNop())
	require.NoError(t, err)

	u := &discordgo.User{ID: "111", Username: "alice"}
	first, err := p.resolve(ctx, u, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", first.DisplayName)
	assert.Equal(t, "111", first.ExternalID)

	second, err := p.resolve(ctx, u, "Someone Else")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	roster, err := store.ListPeople(ctx)
	require.NoError(t, err)
	assert.Len(t, roster, 1)
}

func TestPeopleResolveLinksPassiveMember(t *testing.T) {
	ctx := context.Background()
	store := coffee.NewMemoryStore()
	p, err := newPeople(store, zap.NewNop())
	require.NoError(t, err)

	passive, err := p.addPassive(ctx, "Bob")
	require.NoError(t, err)
	assert.Empty(t, passive.ExternalID)

	linked, err := p.resolve(ctx, &discordgo.User{ID: "222", Username: "bobby"}, "Bob")
	require.NoError(t, err)
	assert.Equal(t, passive.ID, linked.ID)
	assert.Equal(t, "222", linked.ExternalID)

	_, err = p.addPassive(ctx, "bob")
	assert.ErrorIs(t, err, coffee.ErrInvalidArgument)
}

func TestPeopleResolveNameClash(t *testing.T) {
	ctx := context.Background()
	store := coffee.NewMemoryStore()
	p, err := newPeople(store, zap.NewNop())
	require.NoError(t, err)

	_, err = p.resolve(ctx, &discordgo.User{ID: "1", Username: "sam1"}, "Sam")
	require.NoError(t, err)
	other, err := p.resolve(ctx, &discordgo.User{ID: "2", Username: "sam2"}, "Sam")
	require.NoError(t, err)
	assert.Equal(t, "Sam (sam2)", other.DisplayName)
}

func TestPeopleAddPassiveRejectsLongNames(t *testing.T) {
	ctx := context.Background()
	store := coffee.NewMemoryStore()
	p, err := newPeople(store, zap.NewNop())
	require.NoError(t, err)

	_, err = p.addPassive(ctx, strings.Repeat("ü", coffee.MaxNameLength+1))
	assert.ErrorIs(t, err, coffee.ErrInvalidArgument)

	ok, err := p.addPassive(ctx, strings.Repeat("ü", coffee.MaxNameLength))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, ok.ID)
}
