package bot

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/coffeebot/internal/coffee"
)

func TestNotifierRenderSendsThenEdits(t *testing.T) {
	ctx := context.Background()
	dm := newFakeDM()
	n := newNotifier(dm)
	alice := coffee.Person{ID: uuid.New(), ExternalID: "111", DisplayName: "Alice"}
	v := coffee.View{SessionID: uuid.New(), Rows: []coffee.MemberRow{{Name: "Alice", Count: 1}}, TotalPages: 1, Total: 1, Available: 5}

	ref, err := n.Render(ctx, alice, "", v)
	require.NoError(t, err)
	assert.Equal(t, "dm-111/1", ref)
	require.Len(t, dm.complex, 1)
	assert.Contains(t, dm.complex[0].Content, "Total: 1 coffees (5 available)")

	again, err := n.Render(ctx, alice, ref, v)
	require.NoError(t, err)
	assert.Equal(t, ref, again)
	require.Len(t, dm.edits, 1)
	assert.Equal(t, "1", dm.edits[0].ID)
	assert.Equal(t, "dm-111", dm.edits[0].Channel)

	// The DM channel is opened once.
	assert.Equal(t, []string{"111"}, dm.opened)
}

func TestNotifierDismissClearsControls(t *testing.T) {
	dm := newFakeDM()
	n := newNotifier(dm)
	bob := coffee.Person{ID: uuid.New(), ExternalID: "222", DisplayName: "Bob"}

	require.NoError(t, n.Dismiss(context.Background(), bob, "dm-222/9", "done"))
	require.Len(t, dm.edits, 1)
	assert.Equal(t, "done", *dm.edits[0].Content)
	assert.Empty(t, dm.edits[0].Components)

	// Without a message to edit the text is sent instead.
	require.NoError(t, n.Dismiss(context.Background(), bob, "", "bye"))
	assert.Equal(t, []string{"bye"}, dm.sent["dm-222"])
}

func TestNotifierRequiresChatAccount(t *testing.T) {
	n := newNotifier(newFakeDM())
	err := n.Send(context.Background(), coffee.Person{DisplayName: "Passive"}, "hi")
	assert.Error(t, err)
}

func TestViewComponentsLayout(t *testing.T) {
	sid, aliceID := uuid.New(), uuid.New()
	v := coffee.View{
		SessionID:    sid,
		Rows:         []coffee.MemberRow{{Name: "Alice", PersonID: aliceID, Count: 2}, {Name: "Bob", PersonID: uuid.New()}},
		Page:         0,
		TotalPages:   2,
		Total:        2,
		Available:    1,
		ShowMore:     true,
		Insufficient: true,
	}
	rows := viewComponents(v)
	require.Len(t, rows, 4)

	alice := rows[0].(discordgo.ActionsRow).Components
	require.Len(t, alice, 3)
	assert.Equal(t, encodeCustomID(sid, actionRemove, aliceID), alice[0].(discordgo.Button).CustomID)
	assert.Equal(t, "Alice: 2", alice[1].(discordgo.Button).Label)
	assert.Equal(t, encodeCustomID(sid, actionAdd, aliceID), alice[2].(discordgo.Button).CustomID)

	bob := rows[1].(discordgo.ActionsRow).Components
	assert.True(t, bob[0].(discordgo.Button).Disabled)

	nav := rows[2].(discordgo.ActionsRow).Components
	require.Len(t, nav, 4)
	assert.True(t, nav[0].(discordgo.Button).Disabled)
	assert.Equal(t, "1/2", nav[1].(discordgo.Button).Label)
	assert.False(t, nav[2].(discordgo.Button).Disabled)
	assert.Equal(t, "Show archived", nav[3].(discordgo.Button).Label)

	controls := rows[3].(discordgo.ActionsRow).Components
	require.Len(t, controls, 3)
	submit := controls[0].(discordgo.Button)
	assert.Equal(t, discordgo.DangerButton, submit.Style)
	assert.Equal(t, "⚠️ Submit (2)", submit.Label)
}

func TestViewComponentsWithoutClaims(t *testing.T) {
	v := coffee.View{SessionID: uuid.New(), Rows: []coffee.MemberRow{{Name: "Alice"}}, TotalPages: 1}
	rows := viewComponents(v)
	require.Len(t, rows, 2)
	controls := rows[1].(discordgo.ActionsRow).Components
	require.Len(t, controls, 2)
	assert.Equal(t, "Cancel", controls[0].(discordgo.Button).Label)
}
