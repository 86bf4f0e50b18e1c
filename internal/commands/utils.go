package commands

import (
	"math"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/coffeebot/internal/coffee"
)

func respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// InteractionUser returns the invoking user and their guild nickname.
func InteractionUser(i *discordgo.InteractionCreate) (*discordgo.User, string) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User, i.Member.Nick
	}
	return i.User, ""
}

func getOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, o := range opts {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func getIntOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *int64 {
	if o := getOption(opts, name); o != nil {
		v := o.IntValue()
		return &v
	}
	return nil
}

func getNumberOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *float64 {
	if o := getOption(opts, name); o != nil {
		v := o.FloatValue()
		return &v
	}
	return nil
}

func getStringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *string {
	if o := getOption(opts, name); o != nil {
		v := o.StringValue()
		return &v
	}
	return nil
}

// getUserOption returns the mentioned user, preferring the resolved copy that
// carries the username and guild nickname.
func getUserOption(data discordgo.ApplicationCommandInteractionData, opts []*discordgo.ApplicationCommandInteractionDataOption, name string) (*discordgo.User, string) {
	o := getOption(opts, name)
	if o == nil {
		return nil, ""
	}
	u := o.UserValue(nil)
	nick := ""
	if data.Resolved != nil {
		if full, ok := data.Resolved.Users[u.ID]; ok {
			u = full
		}
		if m, ok := data.Resolved.Members[u.ID]; ok && m != nil {
			nick = m.Nick
		}
	}
	return u, nick
}

// euros converts a user-entered amount to cents, rounding to the nearest cent.
func euros(v float64) coffee.Cents {
	return coffee.Cents(math.Round(v * 100))
}
