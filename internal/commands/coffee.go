package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/coffee"
	"go.uber.org/zap"
)

// Backend is what the /coffee command needs from the bot.
type Backend interface {
	Coordinator() *coffee.Coordinator
	ActiveCards(ctx context.Context) ([]*coffee.Card, error)
	Resolve(ctx context.Context, u *discordgo.User, nick string) (coffee.Person, error)
	AddPassive(ctx context.Context, name string) (coffee.Person, error)
	PersonByID(ctx context.Context, id uuid.UUID) (coffee.Person, error)
	// JoinOrder starts or joins the group order and runs who's turn loop.
	JoinOrder(ctx context.Context, who coffee.Person) (*coffee.Session, bool, error)
}

// HandleCoffee answers a /coffee interaction with an ephemeral reply.
func HandleCoffee(s *discordgo.Session, i *discordgo.InteractionCreate, b Backend, log *zap.Logger) {
	ctx := context.Background()
	data := i.ApplicationCommandData()
	u, nick := InteractionUser(i)

	content, err := func() (string, error) {
		who, err := b.Resolve(ctx, u, nick)
		if err != nil {
			return "", err
		}
		return Execute(ctx, b, who, data)
	}()
	if err != nil {
		log.Info("coffee command failed", zap.String("user", u.Username), zap.Error(err))
		content = userError(err)
	}
	if err := respondText(s, i, content); err != nil {
		log.Warn("failed to respond", zap.Error(err))
	}
}

// userError turns a domain error into a message for the invoking user.
func userError(err error) string {
	var capErr *coffee.InsufficientCapacityError
	if errors.Is(err, coffee.ErrNoCapacity) && !errors.As(err, &capErr) {
		return "⚠️ There are no active coffee cards. Register one with `/coffee card-new`."
	}
	return coffee.UserMessage(err)
}

// Execute runs one /coffee subcommand for who and returns the reply.
func Execute(ctx context.Context, b Backend, who coffee.Person, data discordgo.ApplicationCommandInteractionData) (string, error) {
	if len(data.Options) == 0 {
		return "", fmt.Errorf("%w: no subcommand given", coffee.ErrInvalidArgument)
	}
	sub := data.Options[0]
	coord := b.Coordinator()

	switch sub.Name {
	case "order":
		_, isNew, err := b.JoinOrder(ctx, who)
		if err != nil {
			return "", err
		}
		if isNew {
			return "☕ Started a group order. Check your DMs to add coffees.", nil
		}
		return "☕ Joined the group order. Check your DMs.", nil

	case "drink":
		quantity := 1
		if q := getIntOption(sub.Options, "quantity"); q != nil {
			quantity = int(*q)
		}
		consumer := who
		if u, nick := getUserOption(data, sub.Options, "for"); u != nil {
			p, err := b.Resolve(ctx, u, nick)
			if err != nil {
				return "", err
			}
			consumer = p
		}
		if _, err := coord.OrderDirect(ctx, who, consumer, quantity); err != nil {
			return "", err
		}
		if consumer.ID == who.ID {
			return fmt.Sprintf("☕ Recorded %d coffee(s) for you.", quantity), nil
		}
		return fmt.Sprintf("☕ Recorded %d coffee(s) for %s.", quantity, consumer.DisplayName), nil

	case "card-new":
		name := getStringOption(sub.Options, "name")
		units := getIntOption(sub.Options, "units")
		price := getNumberOption(sub.Options, "price")
		if name == nil || units == nil || price == nil {
			return "", fmt.Errorf("%w: name, units and price are required", coffee.ErrInvalidArgument)
		}
		card, err := coord.CreateCard(ctx, strings.TrimSpace(*name), int(*units), euros(*price), who)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("💳 Card **%s** registered: %d coffees at %s each.", card.Name, card.TotalUnits, card.UnitCost), nil

	case "card-close":
		name := getStringOption(sub.Options, "name")
		if name == nil {
			return "", fmt.Errorf("%w: card name is required", coffee.ErrInvalidArgument)
		}
		card, err := findCard(ctx, b, who, *name)
		if err != nil {
			return "", err
		}
		debts, err := coord.CompleteCard(ctx, card.ID, who)
		if err != nil {
			return "", err
		}
		return formatCardClosed(ctx, b, card, debts), nil

	case "cards":
		cards, err := b.ActiveCards(ctx)
		if err != nil {
			return "", err
		}
		return formatCards(ctx, b, cards), nil

	case "debts":
		summary, err := coord.Ledger().Summary(ctx, who.ID)
		if err != nil {
			return "", err
		}
		return formatSummary(ctx, b, summary), nil

	case "pay":
		u, nick := getUserOption(data, sub.Options, "to")
		amount := getNumberOption(sub.Options, "amount")
		if u == nil || amount == nil {
			return "", fmt.Errorf("%w: recipient and amount are required", coffee.ErrInvalidArgument)
		}
		recipient, err := b.Resolve(ctx, u, nick)
		if err != nil {
			return "", err
		}
		method := coffee.PaymentManual
		if m := getStringOption(sub.Options, "method"); m != nil {
			method = coffee.ParsePaymentMethod(*m)
		}
		res, err := coord.Ledger().ApplyPayment(ctx, coffee.PaymentRequest{
			PayerID:     who.ID,
			RecipientID: recipient.ID,
			Amount:      euros(*amount),
			Method:      method,
			Description: "recorded via /coffee pay",
		})
		if err != nil {
			return "", err
		}
		return formatPayment(recipient, res), nil

	case "received":
		u, nick := getUserOption(data, sub.Options, "from")
		if u == nil {
			return "", fmt.Errorf("%w: payer is required", coffee.ErrInvalidArgument)
		}
		payer, err := b.Resolve(ctx, u, nick)
		if err != nil {
			return "", err
		}
		open, err := coord.Ledger().OpenDebts(ctx, payer.ID, who.ID)
		if err != nil {
			return "", err
		}
		req := coffee.PaymentRequest{
			PayerID:     payer.ID,
			RecipientID: who.ID,
			Method:      coffee.PaymentManual,
			Description: "confirmed by " + who.DisplayName,
		}
		if m := getStringOption(sub.Options, "method"); m != nil {
			req.Method = coffee.ParsePaymentMethod(*m)
		}
		var due coffee.Cents
		if card := getStringOption(sub.Options, "card"); card != nil {
			d, err := debtForCard(open, payer, *card)
			if err != nil {
				return "", err
			}
			req.DebtID = &d.ID
			due = d.Outstanding()
		} else {
			for i := range open {
				due += open[i].Outstanding()
			}
		}
		req.Amount = due
		if amount := getNumberOption(sub.Options, "amount"); amount != nil {
			req.Amount = euros(*amount)
		}
		if due == 0 {
			return "", fmt.Errorf("%w: %s owes you nothing", coffee.ErrInvalidArgument, payer.DisplayName)
		}
		res, err := coord.Ledger().ApplyPayment(ctx, req)
		if err != nil {
			return "", err
		}
		return formatReceived(payer, res), nil

	case "member":
		name := getStringOption(sub.Options, "name")
		if name == nil {
			return "", fmt.Errorf("%w: name is required", coffee.ErrInvalidArgument)
		}
		p, err := b.AddPassive(ctx, strings.TrimSpace(*name))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("👤 Added **%s** to the group.", p.DisplayName), nil

	default:
		return "", fmt.Errorf("%w: unknown subcommand %q", coffee.ErrInvalidArgument, sub.Name)
	}
}

// findCard picks who's active card by name, case-insensitively.
func findCard(ctx context.Context, b Backend, who coffee.Person, name string) (*coffee.Card, error) {
	cards, err := b.ActiveCards(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cards {
		if c.PurchaserID == who.ID && strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: you have no active card named %q", coffee.ErrInvalidArgument, name)
}

// debtForCard picks payer's open debt for the named card.
func debtForCard(open []coffee.CardDebt, payer coffee.Person, card string) (*coffee.CardDebt, error) {
	for i := range open {
		if strings.EqualFold(open[i].CardName, strings.TrimSpace(card)) {
			return &open[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s owes you nothing for card %q", coffee.ErrInvalidArgument, payer.DisplayName, card)
}

func nameOf(ctx context.Context, b Backend, id uuid.UUID) string {
	p, err := b.PersonByID(ctx, id)
	if err != nil {
		return "unknown"
	}
	return p.DisplayName
}

func formatCards(ctx context.Context, b Backend, cards []*coffee.Card) string {
	if len(cards) == 0 {
		return "No active cards."
	}
	var sb strings.Builder
	sb.WriteString("💳 **Active cards** (spent oldest first)\n")
	total := 0
	for _, c := range cards {
		total += c.RemainingUnits
		fmt.Fprintf(&sb, "• **%s** by %s: %d/%d left at %s\n",
			c.Name, nameOf(ctx, b, c.PurchaserID), c.RemainingUnits, c.TotalUnits, c.UnitCost)
	}
	fmt.Fprintf(&sb, "Total available: %d", total)
	return sb.String()
}

func formatCardClosed(ctx context.Context, b Backend, card *coffee.Card, debts []coffee.Debt) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔒 Card **%s** closed.\n", card.Name)
	if len(debts) == 0 {
		sb.WriteString("Nobody owes you anything for it.")
		return sb.String()
	}
	var total coffee.Cents
	for _, d := range debts {
		total += d.TotalAmount
		fmt.Fprintf(&sb, "• %s owes %s (%d × %s)\n", nameOf(ctx, b, d.DebtorID), d.TotalAmount, d.TotalUnits, d.UnitCost)
	}
	fmt.Fprintf(&sb, "Total owed to you: %s", total)
	return sb.String()
}

func formatSummary(ctx context.Context, b Backend, s *coffee.DebtSummary) string {
	var sb strings.Builder
	sb.WriteString("💰 **Your coffee debts**\n")

	byCreditor := make(map[uuid.UUID]coffee.Cents)
	for i := range s.Owes {
		byCreditor[s.Owes[i].CreditorID] += s.Owes[i].Outstanding()
	}
	if len(byCreditor) == 0 {
		sb.WriteString("You owe nothing.\n")
	} else {
		lines := make([]string, 0, len(byCreditor))
		for id, amt := range byCreditor {
			lines = append(lines, fmt.Sprintf("• to %s: %s", nameOf(ctx, b, id), amt))
		}
		sort.Strings(lines)
		sb.WriteString(strings.Join(lines, "\n"))
		fmt.Fprintf(&sb, "\nTotal: %s\n", s.TotalOwes)
	}

	if s.TotalOwed > 0 {
		fmt.Fprintf(&sb, "\nOthers owe you %s in total.\n", s.TotalOwed)
	}
	if len(s.Estimates) > 0 {
		sb.WriteString("\n⏳ **Still accruing on active cards**\n")
		for _, e := range s.Estimates {
			fmt.Fprintf(&sb, "• %s: %d coffees, %s\n", e.CardName, e.Units, e.Amount)
		}
		fmt.Fprintf(&sb, "Estimated: %s", s.TotalEstimated)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatReceived(payer coffee.Person, res *coffee.PaymentResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Recorded %s received from %s.", res.Payment.Amount, payer.DisplayName)
	for _, d := range res.Debts {
		if d.Settled {
			fmt.Fprintf(&sb, "\nA %s debt is now settled.", d.TotalAmount)
		} else {
			fmt.Fprintf(&sb, "\n%s still open on a %s debt.", d.Outstanding(), d.TotalAmount)
		}
	}
	if res.Unapplied > 0 {
		fmt.Fprintf(&sb, "\n%s exceeded what they owed and was not applied to any debt.", res.Unapplied)
	}
	return sb.String()
}

func formatPayment(recipient coffee.Person, res *coffee.PaymentResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Recorded %s paid to %s.", res.Payment.Amount, recipient.DisplayName)
	settled := 0
	for _, d := range res.Debts {
		if d.Settled {
			settled++
		}
	}
	if len(res.Debts) > 0 {
		fmt.Fprintf(&sb, "\nApplied to %d debt(s), %d now settled.", len(res.Debts), settled)
	}
	if res.Unapplied > 0 {
		fmt.Fprintf(&sb, "\n%s exceeded what you owed and was not applied to any debt.", res.Unapplied)
	}
	return sb.String()
}
