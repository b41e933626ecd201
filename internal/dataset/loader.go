package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/lrsdash/internal/cache"
	"github.com/verte-zerg/lrsdash/internal/logging"
	"github.com/verte-zerg/lrsdash/internal/lrs"
	"github.com/verte-zerg/lrsdash/internal/model"
	"github.com/verte-zerg/lrsdash/internal/normalize"
)

// Options tunes a Loader. Zero values select the package defaults.
type Options struct {
	ActivityBase string
	MaxPages     int
	MaxDuration  time.Duration
	Concurrency  int
	Dedup        normalize.DedupPolicy
	Cache        cache.Cache
	Logger       logging.Logger
}

// Loader fetches, caches and cleans the statements of a query.
type Loader struct {
	client       *lrs.Client
	paginator    *lrs.Paginator
	resolver     *lrs.Resolver
	cache        cache.Cache
	logger       logging.Logger
	activityBase string
	dedup        normalize.DedupPolicy
	maxDuration  time.Duration
}

// NewLoader wires a paginator and resolver around client.
func NewLoader(client *lrs.Client, opts Options) *Loader {
	paginator := lrs.NewPaginator(client, opts.MaxPages, opts.MaxDuration)
	l := &Loader{
		client:       client,
		paginator:    paginator,
		resolver:     lrs.NewResolver(client, paginator, opts.Concurrency),
		cache:        opts.Cache,
		logger:       opts.Logger,
		activityBase: opts.ActivityBase,
		dedup:        opts.Dedup,
		maxDuration:  opts.MaxDuration,
	}
	if l.cache == nil {
		l.cache = cache.Nop{}
	}
	if l.logger == nil {
		l.logger = logging.Discard()
	}
	if l.activityBase == "" {
		l.activityBase = lrs.DefaultActivityBase
	}
	if l.dedup == nil {
		l.dedup = normalize.KeepAll{}
	}
	if l.maxDuration <= 0 {
		l.maxDuration = lrs.DefaultMaxDuration
	}
	return l
}

// ActivityPrefix is the activity id every record of q must start with.
func (l *Loader) ActivityPrefix(q model.Query) string {
	return lrs.ActivityID(l.activityBase, q.Dataset.Namespace(), q.Lang, q.Type)
}

// Load returns the cleaned records of q. An empty window yields no records
// and no error.
func (l *Loader) Load(ctx context.Context, q model.Query) ([]model.Record, error) {
	stmts, err := l.Statements(ctx, q)
	if err != nil {
		return nil, err
	}
	opts := normalize.ProfileFor(q.Dataset, l.ActivityPrefix(q))
	opts.Dedup = l.dedup
	records, err := normalize.Normalize(stmts, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", q.Dataset, err)
	}
	return records, nil
}

// Statements returns the raw statements of q, from the cache when possible.
func (l *Loader) Statements(ctx context.Context, q model.Query) ([]model.Statement, error) {
	if err := Validate(q); err != nil {
		return nil, err
	}
	log := l.logger.With("run_id", uuid.NewString(), "query", q.String(), "mode", string(q.Mode))
	key := cache.Key(q)

	if payload, ok, err := l.cache.Get(ctx, key); err != nil {
		log.Warn("cache read failed", "error", err)
	} else if ok {
		var stmts []model.Statement
		if err := json.Unmarshal(payload, &stmts); err == nil {
			log.Debug("cache hit", "statements", len(stmts))
			return stmts, nil
		}
		log.Warn("discarding unreadable cache entry", "key", key)
		_ = l.cache.Delete(ctx, key)
	}

	start := time.Now()
	stmts, err := l.fetch(ctx, q, log)
	if err != nil {
		log.LogError(err, "fetch failed")
		return nil, err
	}
	log.Info("fetched statements", "statements", len(stmts), "elapsed", time.Since(start).Round(time.Millisecond))

	if stmts == nil {
		stmts = []model.Statement{}
	}
	payload, err := json.Marshal(stmts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode statements for cache: %w", err)
	}
	if err := l.cache.Set(ctx, key, payload); err != nil {
		log.Warn("cache write failed", "error", err)
	}
	return stmts, nil
}

// fetch bounds the whole query, actor resolution and fan-out included, by maxDuration.
func (l *Loader) fetch(ctx context.Context, q model.Query, log logging.Logger) ([]model.Statement, error) {
	ctx, cancel := context.WithTimeout(ctx, l.maxDuration)
	defer cancel()

	stmts, err := l.fetchPaged(ctx, q, log)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var tooMany *lrs.TooManyPagesError
		if !errors.As(err, &tooMany) {
			return nil, &lrs.TooManyPagesError{URL: l.client.BaseURL().String(), Reason: "deadline"}
		}
	}
	return stmts, err
}

func (l *Loader) fetchPaged(ctx context.Context, q model.Query, log logging.Logger) ([]model.Statement, error) {
	w := lrs.Window{Since: q.Since, Until: q.Until}
	base := l.client.BaseURL()
	switch {
	case q.Dataset == model.DatasetScores:
		return l.paginator.FetchAll(ctx, lrs.ActivityURL(base, l.ActivityPrefix(q), lrs.VerbCompleted, w))
	case q.Mode == model.ModeActors:
		set, err := l.resolver.ResolveActors(ctx, l.actorQuery(q))
		if err != nil {
			return nil, err
		}
		log.Info("resolved actors", "actors", set.Len())
		return l.resolver.FetchForActors(ctx, set, w)
	default:
		return l.paginator.FetchAll(ctx, lrs.RangeURL(base, w))
	}
}

func (l *Loader) actorQuery(q model.Query) lrs.ActorQuery {
	return lrs.ActorQuery{
		ActivityBase: l.activityBase,
		Namespace:    q.Dataset.Namespace(),
		Lang:         q.Lang,
		Type:         q.Type,
		Window:       lrs.Window{Since: q.Since, Until: q.Until},
	}
}

// Actors resolves the actors that initialized the activity of q.
func (l *Loader) Actors(ctx context.Context, q model.Query) ([]lrs.ActorIdentity, error) {
	if err := Validate(q); err != nil {
		return nil, err
	}
	set, err := l.resolver.ResolveActors(ctx, l.actorQuery(q))
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}
