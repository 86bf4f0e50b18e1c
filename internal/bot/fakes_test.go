package bot

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// fakeDM records direct messages instead of calling Discord.
type fakeDM struct {
	mu       sync.Mutex
	seq      int
	opened   []string
	sent     map[string][]string
	complex  []*discordgo.MessageSend
	edits    []*discordgo.MessageEdit
	failSend error
}

func newFakeDM() *fakeDM {
	return &fakeDM{sent: make(map[string][]string)}
}

func (f *fakeDM) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeDM) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil {
		return nil, f.failSend
	}
	f.seq++
	f.sent[channelID] = append(f.sent[channelID], content)
	return &discordgo.Message{ID: fmt.Sprint(f.seq), ChannelID: channelID, Content: content}, nil
}

func (f *fakeDM) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.complex = append(f.complex, data)
	return &discordgo.Message{ID: fmt.Sprint(f.seq), ChannelID: channelID, Content: data.Content}, nil
}

func (f *fakeDM) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, m)
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, nil
}
