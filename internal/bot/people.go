package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/susu3304/coffeebot/internal/coffee"
	"go.uber.org/zap"
)

const peopleCacheSize = 256

// people maps Discord accounts to roster entries, registering newcomers.
type people struct {
	store coffee.PeopleStore
	cache *lru.Cache[string, coffee.Person]
	log   *zap.Logger

	// serializes registration so two first interactions cannot both insert
	mu sync.Mutex
}

func newPeople(store coffee.PeopleStore, logger *zap.Logger) (*people, error) {
	cache, err := lru.New[string, coffee.Person](peopleCacheSize)
	if err != nil {
		return nil, err
	}
	return &people{store: store, cache: cache, log: logger.Named("people")}, nil
}

func displayName(u *discordgo.User, nick string) string {
	if nick != "" {
		return nick
	}
	return u.Username
}

// resolve returns the person behind a Discord account.
func (p *people) resolve(ctx context.Context, u *discordgo.User, nick string) (coffee.Person, error) {
	if u == nil {
		return coffee.Person{}, fmt.Errorf("%w: interaction has no user", coffee.ErrInvalidArgument)
	}
	if cached, ok := p.cache.Get(u.ID); ok {
		return cached, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	found, err := p.store.PersonByExternalID(ctx, u.ID)
	switch {
	case err == nil:
		p.cache.Add(u.ID, *found)
		return *found, nil
	case !errors.Is(err, coffee.ErrNotFound):
		return coffee.Person{}, err
	}

	name := displayName(u, nick)
	person := coffee.Person{ExternalID: u.ID, DisplayName: name}
	existing, err := p.store.PersonByName(ctx, name)
	switch {
	case err == nil && existing.ExternalID == "":
		// Link the passive member so their history carries over.
		person = *existing
		person.ExternalID = u.ID
	case err == nil:
		person.DisplayName = fmt.Sprintf("%s (%s)", name, u.Username)
	case !errors.Is(err, coffee.ErrNotFound):
		return coffee.Person{}, err
	}

	if err := p.store.UpsertPerson(ctx, &person); err != nil {
		return coffee.Person{}, fmt.Errorf("register %s: %w", name, err)
	}
	p.log.Info("registered person",
		zap.Stringer("person", person.ID),
		zap.String("name", person.DisplayName),
		zap.String("discord_id", u.ID))
	p.cache.Add(u.ID, person)
	return person, nil
}

// addPassive registers a member without a chat account.
func (p *people) addPassive(ctx context.Context, name string) (coffee.Person, error) {
	if name == "" {
		return coffee.Person{}, fmt.Errorf("%w: name is required", coffee.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(name) > coffee.MaxNameLength {
		return coffee.Person{}, fmt.Errorf("%w: names are limited to %d characters", coffee.ErrInvalidArgument, coffee.MaxNameLength)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.store.PersonByName(ctx, name); err == nil {
		return coffee.Person{}, fmt.Errorf("%w: %q is already a member", coffee.ErrInvalidArgument, name)
	} else if !errors.Is(err, coffee.ErrNotFound) {
		return coffee.Person{}, err
	}
	person := coffee.Person{DisplayName: name}
	if err := p.store.UpsertPerson(ctx, &person); err != nil {
		return coffee.Person{}, err
	}
	return person, nil
}

func (p *people) byID(ctx context.Context, id uuid.UUID) (coffee.Person, error) {
	found, err := p.store.PersonByID(ctx, id)
	if err != nil {
		return coffee.Person{}, err
	}
	return *found, nil
}
