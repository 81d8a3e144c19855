package core

// resolver.go turns human-readable references into stored entity IDs.
//
// Each entity kind has an ordered list of lookup strategies. In identifier
// mode the strategies are tried in order and the first match wins; an
// explicit MatchBy tries only that strategy. Strategies that cannot apply to
// a value (a non-numeric ID, a string that is not an email) are skipped.

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

// EntityQuery is one lookup against the entity backend.
type EntityQuery struct {
	Kind       FieldType
	By         MatchBy
	Value      string
	Taxonomy   string
	PostType   string
	PostStatus string
	MetaKey    string
}

// EntityStore finds and creates stored entities.
// CreateTerm returns ErrDuplicateEntity when a term with the same name
// already exists in the taxonomy.
type EntityStore interface {
	Find(ctx context.Context, q EntityQuery) (id int64, found bool, err error)
	CreateTerm(ctx context.Context, taxonomy, name string) (int64, error)
}

// Sideloader fetches a remote file and stores it as an attachment. Failures
// to obtain the remote file wrap ErrRemoteFetch; any other error is a
// storage failure and aborts the batch.
type Sideloader interface {
	Sideload(ctx context.Context, url string) (int64, error)
}

// identifierCascades lists the strategies tried in identifier mode.
var identifierCascades = map[FieldType][]MatchBy{
	TypePost:       {MatchID, MatchSlug, MatchTitle},
	TypeTerm:       {MatchID, MatchSlug, MatchName},
	TypeUser:       {MatchID, MatchEmail, MatchLogin, MatchSlug},
	TypeAttachment: {MatchID, MatchURL, MatchFilename},
}

// explicitStrategies lists the strategies a field may select directly.
var explicitStrategies = map[FieldType][]MatchBy{
	TypePost:       {MatchID, MatchSlug, MatchTitle, MatchMeta},
	TypeTerm:       {MatchID, MatchSlug, MatchName},
	TypeUser:       {MatchID, MatchEmail, MatchLogin, MatchSlug},
	TypeAttachment: {MatchID, MatchURL, MatchFilename},
}

// Resolver maps field values to entity IDs.
type Resolver struct {
	store      EntityStore
	sideloader Sideloader
	creates    singleflight.Group
}

// NewResolver creates a resolver. sideloader may be nil to disable sideloading.
func NewResolver(store EntityStore, sideloader Sideloader) *Resolver {
	return &Resolver{store: store, sideloader: sideloader}
}

// Resolve returns the entity ID (int64) for a scalar value, or the list of
// IDs ([]int64) for a list value. A list fails on its first unresolved
// element. Unresolved values produce a not_found *FieldError.
func (r *Resolver) Resolve(ctx context.Context, f FieldDefinition, value any) (any, error) {
	strategies, err := strategiesFor(f)
	if err != nil {
		return nil, err
	}

	if list, ok := value.([]string); ok {
		ids := make([]int64, 0, len(list))
		for _, v := range list {
			id, err := r.resolveOne(ctx, f, strategies, v)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	return r.resolveOne(ctx, f, strategies, Stringify(value))
}

func (r *Resolver) resolveOne(ctx context.Context, f FieldDefinition, strategies []MatchBy, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if r.store == nil {
		return 0, configErrorf("field %q: no entity store configured", f.Key)
	}

	for _, by := range strategies {
		if !strategyApplies(by, value) {
			continue
		}

		id, found, err := r.store.Find(ctx, queryFor(f, by, value))
		if err != nil {
			return 0, fmt.Errorf("resolve %s %q by %s: %w", f.Type, value, by, err)
		}
		if found {
			return id, nil
		}

		if by == MatchURL && f.Sideload && r.sideloader != nil {
			id, err := r.sideloader.Sideload(ctx, value)
			switch {
			case errors.Is(err, ErrRemoteFetch):
				fe := fieldErrorf(f, CodeNotFound, value, "%s could not be fetched from %q: %v", f.DisplayLabel(), value, err)
				fe.Err = err
				return 0, fe
			case err != nil:
				return 0, fmt.Errorf("sideload %q: %w", value, err)
			}
			return id, nil
		}
	}

	if f.Create && f.Type == TypeTerm && value != "" {
		return r.createTerm(ctx, f, value)
	}

	fe := fieldErrorf(f, CodeNotFound, value, "%s not found: %q.", f.DisplayLabel(), value)
	fe.Err = ErrEntityNotFound
	return 0, fe
}

// createTerm creates a missing term. Concurrent creates of the same term
// share one call, and losing a create race to another writer resolves to
// the existing term.
func (r *Resolver) createTerm(ctx context.Context, f FieldDefinition, name string) (int64, error) {
	key := f.Taxonomy + "\x00" + strings.ToLower(name)
	v, err, _ := r.creates.Do(key, func() (any, error) {
		id, err := r.store.CreateTerm(ctx, f.Taxonomy, name)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrDuplicateEntity) {
			return int64(0), fmt.Errorf("create term %q in %q: %w", name, f.Taxonomy, err)
		}
		for _, by := range []MatchBy{MatchName, MatchSlug} {
			id, found, ferr := r.store.Find(ctx, queryFor(f, by, name))
			if ferr != nil {
				return int64(0), fmt.Errorf("resolve term %q after duplicate create: %w", name, ferr)
			}
			if found {
				return id, nil
			}
		}
		return int64(0), fmt.Errorf("create term %q in %q: %w", name, f.Taxonomy, err)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func strategiesFor(f FieldDefinition) ([]MatchBy, error) {
	if !f.Type.IsEntity() {
		return nil, configErrorf("field %q: type %q is not an entity type", f.Key, f.Type)
	}
	if f.MatchBy == "" || f.MatchBy == MatchIdentifier {
		return identifierCascades[f.Type], nil
	}

	allowed := false
	for _, by := range explicitStrategies[f.Type] {
		if by == f.MatchBy {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, configErrorf("field %q: match_by %q is not supported for %s", f.Key, f.MatchBy, f.Type)
	}
	if f.MatchBy == MatchMeta && f.MetaKey == "" {
		return nil, configErrorf("field %q: match_by meta requires a meta key", f.Key)
	}
	return []MatchBy{f.MatchBy}, nil
}

func strategyApplies(by MatchBy, value string) bool {
	if value == "" {
		return false
	}
	switch by {
	case MatchID:
		id, err := strconv.ParseInt(value, 10, 64)
		return err == nil && id > 0
	case MatchEmail:
		return IsEmail(value)
	case MatchURL:
		return IsURL(value)
	}
	return true
}

func queryFor(f FieldDefinition, by MatchBy, value string) EntityQuery {
	return EntityQuery{
		Kind:       f.Type,
		By:         by,
		Value:      value,
		Taxonomy:   f.Taxonomy,
		PostType:   f.PostType,
		PostStatus: f.PostStatus,
		MetaKey:    f.MetaKey,
	}
}
