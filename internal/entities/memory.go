package entities

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// MemoryStore is an in-process entity store for tests and demos.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      int64
	posts       []Post
	terms       []Term
	users       []User
	attachments []Attachment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// AddPost stores p with a fresh ID and returns it.
func (m *MemoryStore) AddPost(p Post) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	m.posts = append(m.posts, p)
	return p.ID
}

// AddTerm stores t with a fresh ID and returns it.
func (m *MemoryStore) AddTerm(t Term) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id()
	if t.Slug == "" {
		t.Slug = Slugify(t.Name)
	}
	m.terms = append(m.terms, t)
	return t.ID
}

// AddUser stores u with a fresh ID and returns it.
func (m *MemoryStore) AddUser(u User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.id()
	m.users = append(m.users, u)
	return u.ID
}

func (m *MemoryStore) CreateAttachment(ctx context.Context, a Attachment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	m.attachments = append(m.attachments, a)
	return a.ID, nil
}

// CreateTerm adds a term, or returns core.ErrDuplicateEntity when the
// taxonomy already has one with the same name or slug.
func (m *MemoryStore) CreateTerm(ctx context.Context, taxonomy, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slug := Slugify(name)
	for _, t := range m.terms {
		if t.Taxonomy == taxonomy && (strings.EqualFold(t.Name, name) || t.Slug == slug) {
			return 0, core.ErrDuplicateEntity
		}
	}
	t := Term{ID: m.id(), Taxonomy: taxonomy, Slug: slug, Name: strings.TrimSpace(name)}
	m.terms = append(m.terms, t)
	return t.ID, nil
}

func (m *MemoryStore) Find(ctx context.Context, q core.EntityQuery) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch q.Kind {
	case core.TypePost:
		for _, p := range m.posts {
			if postInScope(p, q) && matchPost(p, q) {
				return p.ID, true, nil
			}
		}
	case core.TypeTerm:
		for _, t := range m.terms {
			if (q.Taxonomy == "" || t.Taxonomy == q.Taxonomy) && matchTerm(t, q) {
				return t.ID, true, nil
			}
		}
	case core.TypeUser:
		for _, u := range m.users {
			if matchUser(u, q) {
				return u.ID, true, nil
			}
		}
	case core.TypeAttachment:
		for _, a := range m.attachments {
			if matchAttachment(a, q) {
				return a.ID, true, nil
			}
		}
	}
	return 0, false, nil
}

func postInScope(p Post, q core.EntityQuery) bool {
	if q.PostType != "" && p.Type != q.PostType {
		return false
	}
	if q.PostStatus != "" && p.Status != q.PostStatus {
		return false
	}
	return true
}

func matchPost(p Post, q core.EntityQuery) bool {
	switch q.By {
	case core.MatchID:
		return idEquals(p.ID, q.Value)
	case core.MatchSlug:
		return p.Slug == strings.ToLower(q.Value)
	case core.MatchTitle:
		return strings.EqualFold(p.Title, q.Value)
	case core.MatchMeta:
		v, ok := p.Meta[q.MetaKey]
		return ok && v == q.Value
	}
	return false
}

func matchTerm(t Term, q core.EntityQuery) bool {
	switch q.By {
	case core.MatchID:
		return idEquals(t.ID, q.Value)
	case core.MatchSlug:
		return t.Slug == strings.ToLower(q.Value)
	case core.MatchName:
		return strings.EqualFold(t.Name, q.Value)
	}
	return false
}

func matchUser(u User, q core.EntityQuery) bool {
	switch q.By {
	case core.MatchID:
		return idEquals(u.ID, q.Value)
	case core.MatchEmail:
		return strings.EqualFold(u.Email, q.Value)
	case core.MatchLogin:
		return u.Login == q.Value
	case core.MatchSlug:
		return u.Slug == strings.ToLower(q.Value)
	}
	return false
}

func matchAttachment(a Attachment, q core.EntityQuery) bool {
	switch q.By {
	case core.MatchID:
		return idEquals(a.ID, q.Value)
	case core.MatchURL:
		return a.SourceURL == q.Value || a.URL == q.Value
	case core.MatchFilename:
		return strings.Contains(strings.ToLower(a.Filename), strings.ToLower(q.Value))
	}
	return false
}

func idEquals(id int64, value string) bool {
	n, err := strconv.ParseInt(value, 10, 64)
	return err == nil && n == id
}
