package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/susu3304/coffeebot/internal/coffee"
	"github.com/susu3304/coffeebot/internal/commands"
	"go.uber.org/zap"
)

type Options struct {
	PageSize         int
	Turn             coffee.TurnConfig
	ReminderInterval time.Duration
}

type Bot struct {
	session  *discordgo.Session
	store    coffee.Store
	coord    *coffee.Coordinator
	people   *people
	intents  *intentQueue
	reminder *reminderWorker
	log      *zap.Logger
	turn     coffee.TurnConfig

	// ctx outlives single interactions and bounds every turn loop
	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

var _ commands.Backend = (*Bot)(nil)

func New(token string, store coffee.Store, logger *zap.Logger, opts Options) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	log := logger.Named("bot")

	ppl, err := newPeople(store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create people cache: %w", err)
	}
	coord := coffee.NewCoordinator(store, newNotifier(session), logger, coffee.Options{PageSize: opts.PageSize})

	ctx, cancel := context.WithCancel(context.Background())
	bot := &Bot{
		session: session,
		store:   store,
		coord:   coord,
		people:  ppl,
		intents: newIntentQueue(),
		log:     log,
		turn:    opts.Turn,
		ctx:     ctx,
		cancel:  cancel,
	}
	if opts.ReminderInterval > 0 {
		bot.reminder = newReminderWorker(session, store, coord.Ledger(), log, opts.ReminderInterval)
	}

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages

	return bot, nil
}

// Start restores any session left open by a previous run and connects.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.coord.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.reminder.start()
	b.log.Info("Discord bot is running")
	return nil
}

// Stop ends every turn loop and closes the gateway connection.
func (b *Bot) Stop() error {
	b.reminder.stop()
	b.cancel()
	b.loops.Wait()
	return b.session.Close()
}

// Run starts the bot and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return b.Stop()
}

func (b *Bot) Coordinator() *coffee.Coordinator { return b.coord }

func (b *Bot) ActiveCards(ctx context.Context) ([]*coffee.Card, error) {
	return b.store.ActiveCards(ctx)
}

func (b *Bot) Resolve(ctx context.Context, u *discordgo.User, nick string) (coffee.Person, error) {
	return b.people.resolve(ctx, u, nick)
}

func (b *Bot) AddPassive(ctx context.Context, name string) (coffee.Person, error) {
	return b.people.addPassive(ctx, name)
}

func (b *Bot) PersonByID(ctx context.Context, id uuid.UUID) (coffee.Person, error) {
	return b.people.byID(ctx, id)
}

// JoinOrder starts or joins the active session and spawns who's turn loop
// unless one is already running.
func (b *Bot) JoinOrder(ctx context.Context, who coffee.Person) (*coffee.Session, bool, error) {
	s, isNew, err := b.coord.StartOrJoin(ctx, who)
	if err != nil {
		return nil, false, err
	}
	if !b.intents.open(who.ID) {
		// Already playing; just bring the view back.
		return s, isNew, b.coord.OpenView(ctx, s.ID, who)
	}

	b.loops.Add(1)
	go func() {
		defer b.loops.Done()
		defer b.intents.close(who.ID)
		if err := b.coord.RunParticipant(b.ctx, b.intents, who, b.turn); err != nil {
			b.log.Warn("turn loop ended with error",
				zap.String("participant", who.DisplayName), zap.Error(err))
		}
	}()
	return s, isNew, nil
}
