package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestResolver_Cascade(t *testing.T) {
	ctx := context.Background()
	store := newFakeEntities()
	store.set(TypePost, MatchID, "12", 12)
	store.set(TypePost, MatchTitle, "Acme Corp", 7)
	store.set(TypeUser, MatchLogin, "jane", 3)
	store.set(TypeUser, MatchEmail, "jane@example.com", 4)
	store.set(TypeAttachment, MatchFilename, "shoe", 9)
	r := NewResolver(store, nil)

	tests := []struct {
		name  string
		field FieldDefinition
		value any
		want  any
		calls []MatchBy
	}{
		{"post by id", FieldDefinition{Key: "brand", Type: TypePost}, "12", int64(12), []MatchBy{MatchID}},
		{"post falls through to title", FieldDefinition{Key: "brand", Type: TypePost}, "Acme Corp", int64(7), []MatchBy{MatchSlug, MatchTitle}},
		{"user skips email for non-email", FieldDefinition{Key: "owner", Type: TypeUser}, "jane", int64(3), []MatchBy{MatchLogin}},
		{"user email first", FieldDefinition{Key: "owner", Type: TypeUser}, "jane@example.com", int64(4), []MatchBy{MatchEmail}},
		{"attachment filename", FieldDefinition{Key: "image", Type: TypeAttachment}, "shoe", int64(9), []MatchBy{MatchFilename}},
		{"list resolves each element", FieldDefinition{Key: "brands", Type: TypePost}, []string{"12", "Acme Corp"}, []int64{12, 7}, []MatchBy{MatchID, MatchSlug, MatchTitle}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.calls = nil
			got, err := r.Resolve(ctx, tt.field, tt.value)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %#v, want %#v", got, tt.want)
			}
			if !reflect.DeepEqual(store.calls, tt.calls) {
				t.Errorf("strategies tried = %v, want %v", store.calls, tt.calls)
			}
		})
	}
}

func TestResolver_ExplicitStrategy(t *testing.T) {
	ctx := context.Background()
	store := newFakeEntities()
	store.set(TypePost, MatchSlug, "acme", 5)
	store.set(TypePost, MatchMeta, "X-1", 6)
	r := NewResolver(store, nil)

	_, err := r.Resolve(ctx, FieldDefinition{Key: "brand", Type: TypePost, MatchBy: MatchTitle}, "acme")
	if !IsNotFound(err) {
		t.Fatalf("explicit title lookup should not cascade, got %v", err)
	}
	if !reflect.DeepEqual(store.calls, []MatchBy{MatchTitle}) {
		t.Errorf("strategies tried = %v", store.calls)
	}

	got, err := r.Resolve(ctx, FieldDefinition{Key: "brand", Type: TypePost, MatchBy: MatchMeta, MetaKey: "code"}, "X-1")
	if err != nil || got != int64(6) {
		t.Errorf("meta lookup = %v, %v", got, err)
	}

	_, err = r.Resolve(ctx, FieldDefinition{Key: "brand", Type: TypePost, MatchBy: MatchMeta}, "X-1")
	if !errors.Is(err, ErrConfig) {
		t.Errorf("meta without key error = %v, want ErrConfig", err)
	}

	_, err = r.Resolve(ctx, FieldDefinition{Key: "cat", Type: TypeTerm, Taxonomy: "t", MatchBy: MatchEmail}, "x")
	if !errors.Is(err, ErrConfig) {
		t.Errorf("unsupported strategy error = %v, want ErrConfig", err)
	}
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(newFakeEntities(), nil)
	f := FieldDefinition{Key: "brand", Label: "Brand", Type: TypePost}

	_, err := r.Resolve(context.Background(), f, "Nope")
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Code != CodeNotFound {
		t.Fatalf("error = %v, want not_found field error", err)
	}
	if fe.Message != `Brand not found: "Nope".` {
		t.Errorf("message = %q", fe.Message)
	}
	if !errors.Is(err, ErrEntityNotFound) {
		t.Error("not found error should wrap ErrEntityNotFound")
	}
}

func TestResolver_CreateTerm(t *testing.T) {
	ctx := context.Background()
	f := FieldDefinition{Key: "cat", Type: TypeTerm, Taxonomy: "product_cat", Create: true}

	t.Run("creates missing term", func(t *testing.T) {
		store := newFakeEntities()
		got, err := NewResolver(store, nil).Resolve(ctx, f, "Shoes")
		if err != nil {
			t.Fatal(err)
		}
		if got != int64(101) || store.creates != 1 {
			t.Errorf("got %v after %d creates", got, store.creates)
		}
	})

	t.Run("lost race resolves existing", func(t *testing.T) {
		racing := &racingEntities{fakeEntities: newFakeEntities(), winnerID: 55}
		got, err := NewResolver(racing, nil).Resolve(ctx, f, "Shoes")
		if err != nil {
			t.Fatal(err)
		}
		if got != int64(55) {
			t.Errorf("got %v, want 55", got)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		store := newFakeEntities()
		store.createErr = errBackend
		_, err := NewResolver(store, nil).Resolve(ctx, f, "Shoes")
		if !errors.Is(err, errBackend) || IsRowError(err) {
			t.Errorf("error = %v, want batch-level backend error", err)
		}
	})
}

// racingEntities makes a term visible by name only after a create attempt.
type racingEntities struct {
	*fakeEntities
	winnerID int64
}

func (r *racingEntities) CreateTerm(ctx context.Context, taxonomy, name string) (int64, error) {
	r.set(TypeTerm, MatchName, name, r.winnerID)
	return 0, ErrDuplicateEntity
}

func TestResolver_FindError(t *testing.T) {
	store := newFakeEntities()
	store.findErr = errBackend
	_, err := NewResolver(store, nil).Resolve(context.Background(), FieldDefinition{Key: "b", Type: TypePost}, "x")
	if !errors.Is(err, errBackend) {
		t.Errorf("error = %v, want backend error", err)
	}
}

type stubSideloader struct {
	id  int64
	err error
	n   int
}

func (s *stubSideloader) Sideload(ctx context.Context, url string) (int64, error) {
	s.n++
	return s.id, s.err
}

func TestResolver_Sideload(t *testing.T) {
	ctx := context.Background()
	f := FieldDefinition{Key: "image", Label: "Image", Type: TypeAttachment, Sideload: true}

	sl := &stubSideloader{id: 77}
	got, err := NewResolver(newFakeEntities(), sl).Resolve(ctx, f, "https://cdn.example.com/a.png")
	if err != nil || got != int64(77) || sl.n != 1 {
		t.Errorf("sideload = %v, %v after %d calls", got, err, sl.n)
	}

	sl = &stubSideloader{err: fmt.Errorf("%w: unexpected status 404", ErrRemoteFetch)}
	_, err = NewResolver(newFakeEntities(), sl).Resolve(ctx, f, "https://cdn.example.com/a.png")
	if !IsNotFound(err) {
		t.Errorf("failed fetch error = %v, want not_found", err)
	}

	errDisk := errors.New("disk full")
	sl = &stubSideloader{err: errDisk}
	_, err = NewResolver(newFakeEntities(), sl).Resolve(ctx, f, "https://cdn.example.com/a.png")
	if !errors.Is(err, errDisk) || IsRowError(err) {
		t.Errorf("storage failure = %v, want batch-level error", err)
	}

	sl = &stubSideloader{id: 1}
	f.Sideload = false
	_, err = NewResolver(newFakeEntities(), sl).Resolve(ctx, f, "https://cdn.example.com/a.png")
	if !IsNotFound(err) || sl.n != 0 {
		t.Errorf("sideload disabled: err = %v, calls = %d", err, sl.n)
	}
}
