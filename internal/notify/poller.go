package notify

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"zapdesk/internal/models"
)

// Default timings. The lookback is slightly wider than the poll interval so
// overlapping polls miss nothing; the processed-id set guarantees at-most-once
// anyway.
const (
	DefaultInterval      = 10 * time.Second
	DefaultLookback      = 30 * time.Second
	DefaultFlushInterval = 30 * time.Minute
)

// MessageLister is the read-only slice of the store the poller needs.
type MessageLister interface {
	ListRecentInboundMessages(ctx context.Context, orgID string, since time.Time) ([]models.Message, error)
}

// Notifier raises one local notification per newly surfaced message.
type Notifier interface {
	Notify(msg models.Message)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(msg models.Message)

func (f NotifierFunc) Notify(msg models.Message) { f(msg) }

// Poller periodically surfaces newly inserted inbound messages for one
// organization. A processed-id set keeps notifications at-most-once across
// overlapping polls; the set is flushed wholesale on a long interval to bound
// memory.
type Poller struct {
	store     MessageLister
	notifier  Notifier
	orgID     string
	interval  time.Duration
	lookback  time.Duration
	flushEach time.Duration
	seen      *gocache.Cache
	now       func() time.Time
}

// NewPoller creates a Poller with default timings.
func NewPoller(st MessageLister, notifier Notifier, orgID string) (*Poller, error) {
	if st == nil {
		return nil, fmt.Errorf("message lister cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if orgID == "" {
		return nil, fmt.Errorf("organization id cannot be empty")
	}
	return &Poller{
		store:     st,
		notifier:  notifier,
		orgID:     orgID,
		interval:  DefaultInterval,
		lookback:  DefaultLookback,
		flushEach: DefaultFlushInterval,
		seen:      gocache.New(gocache.NoExpiration, 0),
		now:       time.Now,
	}, nil
}

// Run polls until the context is cancelled. Safe to restart with a fresh
// context after cancellation.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	flusher := time.NewTicker(p.flushEach)
	defer flusher.Stop()

	log.Info().Str("orgID", p.orgID).Dur("interval", p.interval).Msg("Notification poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("orgID", p.orgID).Msg("Notification poller stopped")
			return
		case <-flusher.C:
			p.seen.Flush()
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one cycle: fetch recent inbound messages and notify each one not
// seen before. Exported for tests and manual triggering.
func (p *Poller) Poll(ctx context.Context) {
	since := p.now().UTC().Add(-p.lookback)
	msgs, err := p.store.ListRecentInboundMessages(ctx, p.orgID, since)
	if err != nil {
		log.Error().Err(err).Str("orgID", p.orgID).Msg("Notification poll query failed")
		return
	}

	for _, msg := range msgs {
		if _, already := p.seen.Get(msg.ID); already {
			continue
		}
		p.seen.SetDefault(msg.ID, struct{}{})
		p.notifier.Notify(msg)
		log.Debug().Str("messageID", msg.ID).Str("conversationID", msg.ConversationID).Msg("Raised notification for inbound message")
	}
}
