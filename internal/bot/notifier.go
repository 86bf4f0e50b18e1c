package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/coffee"
)

// dmSession is the part of *discordgo.Session the notifier needs.
type dmSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// notifier delivers session views as direct messages.
type notifier struct {
	session dmSession

	mu       sync.Mutex
	channels map[string]string
}

var _ coffee.Notifier = (*notifier)(nil)

func newNotifier(session dmSession) *notifier {
	return &notifier{session: session, channels: make(map[string]string)}
}

func (n *notifier) dmChannel(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("person has no chat account")
	}
	n.mu.Lock()
	id, ok := n.channels[userID]
	n.mu.Unlock()
	if ok {
		return id, nil
	}
	ch, err := n.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("open dm with %s: %w", userID, err)
	}
	n.mu.Lock()
	n.channels[userID] = ch.ID
	n.mu.Unlock()
	return ch.ID, nil
}

// A message ref is "<channel id>/<message id>".
func splitRef(ref string) (string, string, bool) {
	channelID, messageID, ok := strings.Cut(ref, "/")
	return channelID, messageID, ok && channelID != "" && messageID != ""
}

func (n *notifier) Render(ctx context.Context, to coffee.Person, ref string, v coffee.View) (string, error) {
	content := v.Text()
	components := viewComponents(v)

	if channelID, messageID, ok := splitRef(ref); ok {
		_, err := n.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         messageID,
			Channel:    channelID,
			Content:    &content,
			Components: components,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("edit view for %s: %w", to.DisplayName, err)
		}
		return ref, nil
	}

	channelID, err := n.dmChannel(ctx, to.ExternalID)
	if err != nil {
		return "", err
	}
	msg, err := n.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    content,
		Components: components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send view to %s: %w", to.DisplayName, err)
	}
	return msg.ChannelID + "/" + msg.ID, nil
}

func (n *notifier) Dismiss(ctx context.Context, to coffee.Person, ref string, text string) error {
	channelID, messageID, ok := splitRef(ref)
	if !ok {
		return n.Send(ctx, to, text)
	}
	_, err := n.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Content:    &text,
		Components: []discordgo.MessageComponent{},
	}, discordgo.WithContext(ctx))
	return err
}

func (n *notifier) Send(ctx context.Context, to coffee.Person, text string) error {
	channelID, err := n.dmChannel(ctx, to.ExternalID)
	if err != nil {
		return err
	}
	_, err = n.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

// viewComponents lays out one page: a row per member, then navigation, then
// the session controls.
func viewComponents(v coffee.View) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for _, m := range v.Rows {
		label := fmt.Sprintf("%s: %d", m.Name, m.Count)
		if m.Archived {
			label = "🗄 " + label
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "−", Style: discordgo.SecondaryButton, CustomID: encodeCustomID(v.SessionID, actionRemove, m.PersonID), Disabled: m.Count == 0},
			discordgo.Button{Label: label, Style: discordgo.SecondaryButton, CustomID: encodeCustomID(v.SessionID, actionReset, m.PersonID), Disabled: m.Count == 0},
			discordgo.Button{Label: "+", Style: discordgo.PrimaryButton, CustomID: encodeCustomID(v.SessionID, actionAdd, m.PersonID)},
		}})
	}

	var nav []discordgo.MessageComponent
	if v.TotalPages > 1 {
		nav = append(nav,
			discordgo.Button{Label: "◀", Style: discordgo.SecondaryButton, CustomID: encodeCustomID(v.SessionID, actionPrev, uuid.Nil), Disabled: v.Page == 0},
			discordgo.Button{Label: fmt.Sprintf("%d/%d", v.Page+1, v.TotalPages), Style: discordgo.SecondaryButton, CustomID: encodeCustomID(v.SessionID, actionNoop, uuid.Nil), Disabled: true},
			discordgo.Button{Label: "▶", Style: discordgo.SecondaryButton, CustomID: encodeCustomID(v.SessionID, actionNext, uuid.Nil), Disabled: v.Page >= v.TotalPages-1},
		)
	}
	if v.ShowMore {
		nav = append(nav, discordgo.Button{Label: "Show archived", Style: discordgo.SecondaryButton, CustomID: encodeCustomID(v.SessionID, actionArchive, uuid.Nil)})
	}
	if len(nav) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: nav})
	}

	var controls []discordgo.MessageComponent
	if v.CanSubmit() {
		style := discordgo.SuccessButton
		if v.Insufficient {
			style = discordgo.DangerButton
		}
		controls = append(controls, discordgo.Button{Label: v.SubmitLabel(), Style: style, CustomID: encodeCustomID(v.SessionID, actionSubmit, uuid.Nil)})
	}
	controls = append(controls,
		discordgo.Button{Label: "Cancel", Style: discordgo.DangerButton, CustomID: encodeCustomID(v.SessionID, actionCancel, uuid.Nil)},
		discordgo.Button{Label: "Leave", Style: discordgo.SecondaryButton, CustomID: encodeCustomID(v.SessionID, actionLeave, uuid.Nil)},
	)
	rows = append(rows, discordgo.ActionsRow{Components: controls})
	return rows
}
