package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/coffeebot/internal/coffee"
)

var paymentMethodChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Cash", Value: string(coffee.PaymentCash)},
	{Name: "Bank transfer", Value: string(coffee.PaymentBankTransfer)},
	{Name: "PayPal", Value: string(coffee.PaymentPayPal)},
	{Name: "Other", Value: string(coffee.PaymentManual)},
}

func GetCommands() []*discordgo.ApplicationCommand {
	minOne := 1.0
	minCent := 0.01
	return []*discordgo.ApplicationCommand{
		{
			Name:         "coffee",
			Description:  "Shared coffee cards and group orders",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "order",
					Description: "Start or join the group order",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "drink",
					Description: "Record coffees right away without a group order",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "quantity",
							Description: "Number of coffees (default 1)",
							MinValue:    &minOne,
						},
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "for",
							Description: "Who drank them (default: you)",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "card-new",
					Description: "Register a coffee card you bought",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Card name",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "units",
							Description: "Coffees on the card",
							Required:    true,
							MinValue:    &minOne,
						},
						{
							Type:        discordgo.ApplicationCommandOptionNumber,
							Name:        "price",
							Description: "Cost per coffee in euros",
							Required:    true,
							MinValue:    &minCent,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "card-close",
					Description: "Close one of your cards and create the debts",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Card name",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "cards",
					Description: "List active cards",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "debts",
					Description: "Show what you owe and what you are owed",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "pay",
					Description: "Record a payment to someone you owe",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "to",
							Description: "Who you paid",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionNumber,
							Name:        "amount",
							Description: "Amount in euros",
							Required:    true,
							MinValue:    &minCent,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "method",
							Description: "How you paid",
							Choices:     paymentMethodChoices,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "received",
					Description: "Confirm a payment someone made to you",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionUser,
							Name:        "from",
							Description: "Who paid you",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionNumber,
							Name:        "amount",
							Description: "Amount in euros, everything they owe if empty",
							MinValue:    &minCent,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "card",
							Description: "Only settle the debt for this card",
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "method",
							Description: "How they paid",
							Choices:     paymentMethodChoices,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "member",
					Description: "Add a group member who is not on Discord",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Display name",
							Required:    true,
							MaxLength:   coffee.MaxNameLength,
						},
					},
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}
