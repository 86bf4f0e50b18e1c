package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/coffeebot/internal/commands"
	"go.uber.org/zap"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.log.Info("connected", zap.String("user", event.User.Username))

	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			b.log.Error("failed to register commands", zap.String("guild", guild.ID), zap.Error(err))
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	b.log.Info("guild available, ensuring commands", zap.String("guild", event.ID), zap.String("name", event.Name))
	if err := b.registerGuildCommands(event.ID); err != nil {
		b.log.Error("failed to register commands", zap.String("guild", event.ID), zap.Error(err))
	}
}

func (b *Bot) registerGuildCommands(guildID string) error {
	// Overwrite so removed commands disappear too.
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, commands.GetCommands())
	if err != nil {
		return err
	}
	b.log.Debug("registered application commands", zap.String("guild", guildID))
	return nil
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == "coffee" {
			commands.HandleCoffee(s, i, b, b.log)
		}
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	}
}

// handleComponent routes a view button to the presser's turn loop.
func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	sessionID, intent, err := decodeCustomID(data.CustomID)
	if err != nil {
		b.log.Debug("ignoring component", zap.String("custom_id", data.CustomID), zap.Error(err))
		return
	}

	if active, ok := b.coord.Active(); !ok || active.ID != sessionID {
		b.respond(s, i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    "This order is over. Use `/coffee order` to start a new one.",
				Components: []discordgo.MessageComponent{},
			},
		})
		return
	}

	if intent != nil {
		u, nick := commands.InteractionUser(i)
		who, err := b.people.resolve(context.Background(), u, nick)
		if err != nil {
			b.log.Warn("failed to resolve presser", zap.Error(err))
			return
		}
		if !b.intents.push(who.ID, intent) {
			b.respond(s, i, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "This view is no longer active. Use `/coffee order` to rejoin.",
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			})
			return
		}
	}

	// The turn loop edits the message itself.
	b.respond(s, i, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, resp *discordgo.InteractionResponse) {
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		b.log.Warn("failed to respond to interaction", zap.Error(err))
	}
}
