package bot

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/coffeebot/internal/coffee"
)

func TestCustomIDRoundTrip(t *testing.T) {
	sid, member := uuid.New(), uuid.New()
	tests := []struct {
		action string
		member uuid.UUID
		want   coffee.Intent
	}{
		{actionAdd, member, coffee.AddClaim{MemberID: member}},
		{actionRemove, member, coffee.RemoveClaim{MemberID: member}},
		{actionReset, member, coffee.ResetClaim{MemberID: member}},
		{actionArchive, uuid.Nil, coffee.ShowArchived{}},
		{actionPrev, uuid.Nil, coffee.Paginate{Dir: coffee.PagePrev}},
		{actionNext, uuid.Nil, coffee.Paginate{Dir: coffee.PageNext}},
		{actionSubmit, uuid.Nil, coffee.Submit{}},
		{actionCancel, uuid.Nil, coffee.Cancel{}},
		{actionLeave, uuid.Nil, coffee.Leave{}},
		{actionNoop, uuid.Nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			got, intent, err := decodeCustomID(encodeCustomID(sid, tt.action, tt.member))
			require.NoError(t, err)
			assert.Equal(t, sid, got)
			assert.Equal(t, tt.want, intent)
		})
	}
}

func TestDecodeCustomIDErrors(t *testing.T) {
	sid := uuid.New().String()
	for _, id := range []string{
		"",
		"poll:" + sid + ":add:Alice",
		"coffee:not-a-uuid:submit",
		"coffee:" + sid + ":dance",
		"coffee:" + sid + ":add",
		"coffee:" + sid + ":add:Alice",
		"coffee:" + sid + ":add:" + strings.Repeat("x", 100),
	} {
		_, _, err := decodeCustomID(id)
		assert.Error(t, err, id)
	}
}

func TestCustomIDLongNamesStayDistinct(t *testing.T) {
	prefix := strings.Repeat("Ł", 60)
	gs := coffee.GroupStateFromRoster([]coffee.Person{
		{ID: uuid.New(), DisplayName: prefix + " one"},
		{ID: uuid.New(), DisplayName: prefix + " two"},
	})
	v := coffee.BuildView(uuid.New(), gs, coffee.Capacity{Available: 5, Cards: 1, FirstRemaining: 5}, 0, 3)

	seen := map[string]bool{}
	for _, row := range viewComponents(v)[:2] {
		add := row.(discordgo.ActionsRow).Components[2].(discordgo.Button)
		assert.LessOrEqual(t, len(add.CustomID), maxCustomIDLen)
		assert.False(t, seen[add.CustomID], "duplicate custom id %q", add.CustomID)
		seen[add.CustomID] = true

		_, intent, err := decodeCustomID(add.CustomID)
		require.NoError(t, err)
		claim, ok := intent.(coffee.AddClaim)
		require.True(t, ok)
		name, ok := gs.NameOf(claim.MemberID)
		require.True(t, ok)
		assert.True(t, gs.AddCoffee(name))
	}
	assert.Equal(t, 2, gs.Total())
}
