// accolade/pkg/runtime/engine.go

package runtime

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rgehrsitz/accolade/pkg/cache"
	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/ledger"
	"rgehrsitz/accolade/pkg/logging"
	"rgehrsitz/accolade/pkg/rules"
	"rgehrsitz/accolade/pkg/transport"
)

// ArchiveWaitTries bounds how often ProcessEvent asks the archive for the
// current event before evaluating anyway.
const ArchiveWaitTries = 3

var errNotArchived = errors.New("event not archived yet")

type Options struct {
	// RulesDir is the directory Reload reads rule files from.
	RulesDir string
	// Workers bounds how many rules are evaluated concurrently.
	Workers int
	// WaitForArchive makes ProcessEvent wait until the archive has the
	// event, so history counts include it.
	WaitForArchive   bool
	ArchiveWaitDelay time.Duration
	// RecordEvents stores each event in the archive before evaluation,
	// for deployments where no other service writes the archive.
	RecordEvents bool
	// IssuerID is the default issuer for badges registered by Reload.
	IssuerID string
	// NotifyPrefix prefixes the award notification topic.
	NotifyPrefix string
}

// Notification announces a new award.
type Notification struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	BadgeID   string    `json:"badge_id"`
	BadgeName string    `json:"badge_name"`
	User      string    `json:"user"`
	Identity  string    `json:"identity"`
	EventID   string    `json:"event_id"`
	IssuedAt  time.Time `json:"issued_at"`
}

type Stats struct {
	EventsProcessed int64
	RulesMatched    int64
	AwardsIssued    int64
	Errors          int64
	LastEventTime   time.Time
}

// Decision is the dry-run outcome of one rule for one event.
type Decision struct {
	Rule     string   `json:"rule"`
	BadgeID  string   `json:"badge_id"`
	Awardees []string `json:"awardees"`
	Error    string   `json:"error,omitempty"`
}

// Engine evaluates every loaded rule against incoming events and records
// the resulting awards.
type Engine struct {
	opts      Options
	env       *rules.Env
	loader    *rules.Loader
	publisher transport.Transport

	mu    sync.RWMutex
	rules []*rules.Rule

	statsMu sync.Mutex
	Stats   Stats

	listenersMu sync.RWMutex
	listeners   []func(Notification)
}

// NewEngine builds an engine. publisher may be nil, in which case awards
// are recorded but not announced.
func NewEngine(opts Options, env *rules.Env, publisher transport.Transport) (*Engine, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ArchiveWaitDelay <= 0 {
		opts.ArchiveWaitDelay = time.Second
	}
	if opts.NotifyPrefix == "" {
		opts.NotifyPrefix = "accolade"
	}
	loader, err := rules.NewLoader()
	if err != nil {
		return nil, err
	}
	return &Engine{opts: opts, env: env, loader: loader, publisher: publisher}, nil
}

// Reload reads the rules directory and registers every badge with the
// ledger. Rules that fail to load or register are skipped; the previous
// rule set stays active only when the directory itself cannot be read.
func (e *Engine) Reload(ctx context.Context) error {
	return e.load(ctx, true)
}

// LoadRules reads the rules directory like Reload but leaves the ledger
// alone: badge ids are derived from rule names. Used for dry runs.
func (e *Engine) LoadRules(ctx context.Context) error {
	return e.load(ctx, false)
}

func (e *Engine) load(ctx context.Context, register bool) error {
	loaded, problems, err := e.loader.LoadDir(e.opts.RulesDir)
	if err != nil {
		return err
	}
	for _, p := range problems {
		logging.Logger.Error().Err(p).Msg("Skipping rule")
	}

	active := make([]*rules.Rule, 0, len(loaded))
	for _, r := range loaded {
		if !register {
			r.BadgeID = ledger.BadgeID(r.Name)
			active = append(active, r)
			continue
		}
		if err := r.Setup(ctx, e.env.Ledger, e.opts.IssuerID); err != nil {
			logging.LogError(logging.WithRule(r.Name), err)
			continue
		}
		active = append(active, r)
	}
	e.SetRules(active)
	logging.Logger.Info().Int("rules", len(active)).Bool("registered", register).Msg("Rules reloaded")
	return nil
}

// SetRules replaces the active rule set.
func (e *Engine) SetRules(rs []*rules.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rs
}

func (e *Engine) Rules() []*rules.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*rules.Rule(nil), e.rules...)
}

// OnAward registers fn to be called for every new award.
func (e *Engine) OnAward(fn func(Notification)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// HandleMessage decodes a transport payload and processes it.
func (e *Engine) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	ev, err := event.Decode(payload)
	if err != nil {
		e.countError()
		return logging.NewError(logging.ErrorTypeRuntime, "undecodable event", err,
			map[string]interface{}{"channel": topic})
	}
	return e.ProcessEvent(ctx, ev)
}

// Run consumes events from t until ctx is done.
func (e *Engine) Run(ctx context.Context, t transport.Transport) error {
	return t.Subscribe(ctx, e.HandleMessage)
}

// ProcessEvent evaluates every rule against ev and records the awards.
// Failures are confined to the rule or awardee they concern.
func (e *Engine) ProcessEvent(ctx context.Context, ev *event.Event) error {
	e.statsMu.Lock()
	e.Stats.EventsProcessed++
	e.Stats.LastEventTime = time.Now()
	e.statsMu.Unlock()

	log := logging.Logger.With().Str("event_id", ev.ID).Str("topic", ev.Topic).Logger()

	if e.opts.RecordEvents && e.env.Archive != nil && ev.ID != "" {
		if err := e.recordEvent(ctx, ev); err != nil {
			e.countError()
			logging.LogError(log, err)
		}
	}

	if e.opts.WaitForArchive && e.env.Archive != nil && ev.ID != "" {
		if err := e.waitForArchive(ctx, ev.ID); err != nil {
			log.Warn().Err(err).Msg("Event is not in the archive, history counts may miss it")
		}
	}

	active := e.Rules()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, r := range active {
		g.Go(func() error {
			awardees, err := r.Matches(gctx, ev, e.env)
			if err != nil {
				e.countError()
				logging.LogError(logging.WithRule(r.Name), err)
				return nil
			}
			if len(awardees) == 0 {
				return nil
			}
			e.statsMu.Lock()
			e.Stats.RulesMatched++
			e.statsMu.Unlock()
			for _, user := range sortedKeys(awardees) {
				e.award(gctx, r, ev, user)
			}
			return nil
		})
	}
	return g.Wait()
}

// recordEvent stores ev unless the archive already has it, so redelivered
// events are counted once.
func (e *Engine) recordEvent(ctx context.Context, ev *event.Event) error {
	found, err := e.env.Archive.Has(ctx, ev.ID)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return e.env.Archive.Store(ctx, ev)
}

func (e *Engine) waitForArchive(ctx context.Context, id string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.ArchiveWaitDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, ArchiveWaitTries-1), ctx)
	return backoff.Retry(func() error {
		found, err := e.env.Archive.Has(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return errNotArchived
		}
		return nil
	}, policy)
}

func (e *Engine) award(ctx context.Context, r *rules.Rule, ev *event.Event, user string) {
	log := logging.WithRule(r.Name).With().Str("badge_id", r.BadgeID).Str("candidate", user).Logger()
	identity := e.env.LedgerIdentity(user)
	now := time.Now().UTC()

	created, err := e.env.Ledger.RegisterAward(ctx, ledger.Award{
		BadgeID:   r.BadgeID,
		Identity:  identity,
		IssuedAt:  now,
		IssuedFor: ev.ID,
	})
	if err != nil {
		e.countError()
		logging.LogError(log, err)
		return
	}
	if !created {
		log.Debug().Msg("Award already registered")
		return
	}

	e.statsMu.Lock()
	e.Stats.AwardsIssued++
	e.statsMu.Unlock()
	log.Info().Str("event_id", ev.ID).Msg("Badge awarded")

	n := Notification{
		ID:        uuid.NewString(),
		Topic:     e.opts.NotifyPrefix + ".badge.award",
		BadgeID:   r.BadgeID,
		BadgeName: r.Name,
		User:      user,
		Identity:  identity,
		EventID:   ev.ID,
		IssuedAt:  now,
	}
	e.notify(n)

	if e.publisher == nil {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		e.countError()
		logging.LogError(log, err)
		return
	}
	if err := transport.PublishWithRetry(ctx, e.publisher, n.Topic, payload); err != nil {
		e.countError()
		logging.LogError(log, err)
	}
}

func (e *Engine) notify(n Notification) {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for _, fn := range e.listeners {
		fn(n)
	}
}

// Evaluate reports which identities each rule would award for ev without
// touching the ledger, the transport or the shared counter cache.
func (e *Engine) Evaluate(ctx context.Context, ev *event.Event) []Decision {
	env := e.env.WithCounter(rules.NewCounter(cache.NewOverlay(e.env.Counter.Cache())))
	active := e.Rules()
	decisions := make([]Decision, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, r := range active {
		g.Go(func() error {
			d := Decision{Rule: r.Name, BadgeID: r.BadgeID, Awardees: []string{}}
			awardees, err := r.Matches(gctx, ev, env)
			if err != nil {
				d.Error = err.Error()
			}
			d.Awardees = append(d.Awardees, sortedKeys(awardees)...)
			decisions[i] = d
			return nil
		})
	}
	_ = g.Wait()
	return decisions
}

func (e *Engine) countError() {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	e.Stats.Errors++
}

func (e *Engine) GetStats() map[string]interface{} {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return map[string]interface{}{
		"events_processed": e.Stats.EventsProcessed,
		"rules_matched":    e.Stats.RulesMatched,
		"awards_issued":    e.Stats.AwardsIssued,
		"errors":           e.Stats.Errors,
		"last_event_time":  e.Stats.LastEventTime,
		"active_rules":     len(e.Rules()),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
