package operations

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// Product is a catalog item keyed by SKU.
type Product struct {
	SKU          string   `json:"sku"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	Stock        int64    `json:"stock"`
	Active       bool     `json:"active"`
	Tags         []string `json:"tags"`
	CategoryIDs  []int64  `json:"category_ids"`
	BrandID      *int64   `json:"brand_id"`
	OwnerID      *int64   `json:"owner_id"`
	ImageID      *int64   `json:"image_id"`
	URL          string   `json:"url"`
	SupportEmail string   `json:"support_email"`
	Status       string   `json:"status"`
}

// Contact is a CRM contact keyed by email.
type Contact struct {
	Email      string  `json:"email"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Phone      string  `json:"phone"`
	CompanyID  *int64  `json:"company_id"`
	OwnerID    *int64  `json:"owner_id"`
	State      string  `json:"state"`
	Country    string  `json:"country"`
	TagIDs     []int64 `json:"tag_ids"`
	Subscribed bool    `json:"subscribed"`
}

// ProductRepository stores products. UpsertBySKU reports whether the row
// was created, updated, or left unchanged (skipped).
type ProductRepository interface {
	UpsertBySKU(ctx context.Context, p Product) (core.Outcome, error)
	CountProducts(ctx context.Context) (int64, error)
}

// ContactRepository stores contacts. UpsertByEmail follows the same
// outcome rules as UpsertBySKU.
type ContactRepository interface {
	UpsertByEmail(ctx context.Context, c Contact) (core.Outcome, error)
}

// MemoryRepository implements both repositories in process memory.
type MemoryRepository struct {
	mu       sync.Mutex
	products map[string]Product
	contacts map[string]Contact
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products: make(map[string]Product),
		contacts: make(map[string]Contact),
	}
}

func (m *MemoryRepository) UpsertBySKU(ctx context.Context, p Product) (core.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return upsert(m.products, p.SKU, p), nil
}

func (m *MemoryRepository) CountProducts(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.products)), nil
}

func (m *MemoryRepository) UpsertByEmail(ctx context.Context, c Contact) (core.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return upsert(m.contacts, strings.ToLower(c.Email), c), nil
}

// Product returns a stored product.
func (m *MemoryRepository) Product(sku string) (Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[sku]
	return p, ok
}

// Contact returns a stored contact.
func (m *MemoryRepository) Contact(email string) (Contact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[strings.ToLower(email)]
	return c, ok
}

func upsert[T any](items map[string]T, key string, v T) core.Outcome {
	old, exists := items[key]
	if exists && reflect.DeepEqual(old, v) {
		return core.OutcomeSkipped
	}
	items[key] = v
	if exists {
		return core.OutcomeUpdated
	}
	return core.OutcomeCreated
}
