package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/coffee"
	"github.com/susu3304/coffeebot/internal/metrics"
	"go.uber.org/zap"
)

// reminderWorker periodically DMs everyone with unsettled debts.
type reminderWorker struct {
	store    reminderStore
	ledger   *coffee.Ledger
	session  reminderSession
	log      *zap.Logger
	stopChan chan struct{}
	ticker   *time.Ticker
	interval time.Duration
}

// Minimal session interface for sending direct messages.
type reminderSession interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type reminderStore interface {
	OutstandingDebtors(ctx context.Context) ([]uuid.UUID, error)
	PersonByID(ctx context.Context, id uuid.UUID) (*coffee.Person, error)
}

func newReminderWorker(session reminderSession, store reminderStore, ledger *coffee.Ledger, logger *zap.Logger, interval time.Duration) *reminderWorker {
	return &reminderWorker{
		store:    store,
		ledger:   ledger,
		session:  session,
		log:      logger.Named("reminder"),
		stopChan: make(chan struct{}),
		interval: interval,
	}
}

func (w *reminderWorker) start() {
	if w == nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	go w.loop()
}

func (w *reminderWorker) stop() {
	if w == nil {
		return
	}
	close(w.stopChan)
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

func (w *reminderWorker) loop() {
	ctx := context.Background()
	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

func (w *reminderWorker) tick(ctx context.Context) {
	debtors, err := w.store.OutstandingDebtors(ctx)
	if err != nil {
		w.log.Error("failed to load debtors", zap.Error(err))
		return
	}

	for _, id := range debtors {
		person, err := w.store.PersonByID(ctx, id)
		if err != nil {
			w.log.Warn("failed to load debtor", zap.Stringer("person", id), zap.Error(err))
			continue
		}
		if person.ExternalID == "" || person.Disabled {
			continue
		}
		summary, err := w.ledger.Summary(ctx, id)
		if err != nil {
			w.log.Warn("failed to build summary", zap.Stringer("person", id), zap.Error(err))
			continue
		}
		if summary.TotalOwes == 0 {
			continue
		}

		msg := w.reminderMessage(ctx, summary) + "\n\n_This message was sent automatically._"
		if err := w.sendWithRetry(ctx, person.ExternalID, msg); err != nil {
			metrics.RemindersSent.WithLabelValues("failed").Inc()
			w.log.Warn("failed to send reminder", zap.String("to", person.DisplayName), zap.Error(err))
			continue
		}
		metrics.RemindersSent.WithLabelValues("sent").Inc()
	}
}

// reminderMessage lists what is owed per creditor, largest first.
func (w *reminderWorker) reminderMessage(ctx context.Context, s *coffee.DebtSummary) string {
	type line struct {
		name   string
		amount coffee.Cents
	}
	totals := make(map[uuid.UUID]coffee.Cents)
	for i := range s.Owes {
		totals[s.Owes[i].CreditorID] += s.Owes[i].Outstanding()
	}
	lines := make([]line, 0, len(totals))
	for id, amt := range totals {
		name := "unknown"
		if p, err := w.store.PersonByID(ctx, id); err == nil {
			name = p.DisplayName
		}
		lines = append(lines, line{name: name, amount: amt})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].amount != lines[j].amount {
			return lines[i].amount > lines[j].amount
		}
		return lines[i].name < lines[j].name
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "☕ **Coffee reminder**: you still owe %s.\n", s.TotalOwes)
	for _, l := range lines {
		fmt.Fprintf(&sb, "• %s: %s\n", l.name, l.amount)
	}
	sb.WriteString("Record a payment with `/coffee pay`.")
	return sb.String()
}

func (w *reminderWorker) sendWithRetry(ctx context.Context, userID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := w.sendDM(sendCtx, userID, content)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func (w *reminderWorker) sendDM(ctx context.Context, userID, content string) error {
	ch, err := w.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = w.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx))
	return err
}

func isTemporaryOrTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
