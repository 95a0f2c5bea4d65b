package links

import (
	"context"
	"sync"
	"time"
)

// Store persists payment links keyed by short code.
type Store interface {
	Insert(ctx context.Context, link PaymentLink) error
	Get(ctx context.Context, code string) (*PaymentLink, error)
	SetStatus(ctx context.Context, code string, status Status, at time.Time) error
	// AddDonation credits amount once per paymentID and reports whether it was applied.
	AddDonation(ctx context.Context, code, paymentID string, amount int64, at time.Time) (bool, error)
	SetTotals(ctx context.Context, code string, total, count int64, at time.Time) error
}

type memoryEntry struct {
	link     PaymentLink
	payments map[string]struct{}
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu    sync.Mutex
	links map[string]*memoryEntry
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: map[string]*memoryEntry{}}
}

func (m *MemoryStore) Insert(_ context.Context, link PaymentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.ShortCode]; ok {
		return ErrDuplicateCode
	}
	link.AllowedPaymentMethods = append(link.AllowedPaymentMethods[:0:0], link.AllowedPaymentMethods...)
	m.links[link.ShortCode] = &memoryEntry{link: link, payments: map[string]struct{}{}}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, code string) (*PaymentLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.links[code]
	if !ok {
		return nil, ErrLinkNotFound
	}
	out := e.link
	out.AllowedPaymentMethods = append(out.AllowedPaymentMethods[:0:0], out.AllowedPaymentMethods...)
	return &out, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, code string, status Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.links[code]
	if !ok {
		return ErrLinkNotFound
	}
	e.link.Status = status
	e.link.UpdatedAt = at
	return nil
}

func (m *MemoryStore) AddDonation(_ context.Context, code, paymentID string, amount int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.links[code]
	if !ok {
		return false, ErrLinkNotFound
	}
	if _, seen := e.payments[paymentID]; seen {
		return false, nil
	}
	e.payments[paymentID] = struct{}{}
	e.link.TotalCollected += amount
	e.link.DonationCount++
	e.link.UpdatedAt = at
	return true, nil
}

func (m *MemoryStore) SetTotals(_ context.Context, code string, total, count int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.links[code]
	if !ok {
		return ErrLinkNotFound
	}
	e.link.TotalCollected = total
	e.link.DonationCount = count
	e.link.UpdatedAt = at
	return nil
}
