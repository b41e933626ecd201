package lrs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/lrsdash/internal/model"
)

const DefaultConcurrency = 4

// ActorIdentity is the canonical JSON form of an actor object.
type ActorIdentity string

// CanonicalActor serializes an actor with object keys sorted at every level.
func CanonicalActor(raw json.RawMessage) (ActorIdentity, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", fmt.Errorf("actor is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("failed to decode actor: %w", err)
	}
	if _, ok := v.(map[string]any); !ok {
		return "", fmt.Errorf("actor is not an object")
	}
	// encoding/json writes map keys in sorted order.
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode actor: %w", err)
	}
	return ActorIdentity(out), nil
}

// ActorSet is a deduplicated set of actors.
type ActorSet struct {
	members map[ActorIdentity]struct{}
}

// NewActorSet returns an empty set.
func NewActorSet() *ActorSet {
	return &ActorSet{members: map[ActorIdentity]struct{}{}}
}

// Add inserts an identity and reports whether it was new.
func (s *ActorSet) Add(id ActorIdentity) bool {
	if _, ok := s.members[id]; ok {
		return false
	}
	s.members[id] = struct{}{}
	return true
}

// Contains reports membership.
func (s *ActorSet) Contains(id ActorIdentity) bool {
	_, ok := s.members[id]
	return ok
}

// Len returns the number of distinct actors.
func (s *ActorSet) Len() int {
	return len(s.members)
}

// Sorted returns the identities in lexical order.
func (s *ActorSet) Sorted() []ActorIdentity {
	out := make([]ActorIdentity, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ActorQuery selects the initializing statements that define an actor set.
type ActorQuery struct {
	ActivityBase string
	Namespace    string
	Lang         string
	Type         string
	Window       Window
}

// Resolver collects actor sets and fans out per-actor queries.
type Resolver struct {
	client      *Client
	paginator   *Paginator
	concurrency int
}

// NewResolver builds a resolver on top of a client and paginator.
func NewResolver(client *Client, paginator *Paginator, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Resolver{client: client, paginator: paginator, concurrency: concurrency}
}

// ResolveActors returns the distinct actors that initialized the activity in the window.
func (r *Resolver) ResolveActors(ctx context.Context, q ActorQuery) (*ActorSet, error) {
	activity := ActivityID(q.ActivityBase, q.Namespace, q.Lang, q.Type)
	pageURL := ActivityURL(r.client.BaseURL(), activity, VerbInitialized, q.Window)
	set := NewActorSet()
	err := r.paginator.Walk(ctx, pageURL, func(page Page) error {
		return addActors(set, page.Statements)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve actors: %w", err)
	}
	return set, nil
}

func addActors(set *ActorSet, statements []model.Statement) error {
	for _, s := range statements {
		id, err := CanonicalActor(s.Actor)
		if err != nil {
			return &MalformedResponseError{URL: "statement " + s.ID, Reason: "invalid actor", Err: err}
		}
		set.Add(id)
	}
	return nil
}

// FetchForActors runs one paginated query per actor with bounded parallelism.
// Results are concatenated in sorted identity order regardless of completion order.
func (r *Resolver) FetchForActors(ctx context.Context, set *ActorSet, w Window) ([]model.Statement, error) {
	actors := set.Sorted()
	results := make([][]model.Statement, len(actors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, actor := range actors {
		i, actor := i, actor
		g.Go(func() error {
			stmts, err := r.paginator.FetchAll(gctx, AgentURL(r.client.BaseURL(), actor, w))
			if err != nil {
				return fmt.Errorf("failed to fetch statements for actor %s: %w", actor, err)
			}
			results[i] = stmts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, stmts := range results {
		total += len(stmts)
	}
	out := make([]model.Statement, 0, total)
	for _, stmts := range results {
		out = append(out, stmts...)
	}
	return out, nil
}
