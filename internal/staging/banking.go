package staging

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Lllllllleong/opsportal/internal/mirror"
	"github.com/Lllllllleong/opsportal/internal/models"
)

// BankingMirrorKey holds the beneficiary list. It never leaves this machine.
const BankingMirrorKey = "kimberry-banking-data"

// BankingBook is the local list of transfer beneficiaries.
type BankingBook struct {
	mu     sync.Mutex
	mirror mirror.Mirror
}

// NewBankingBook returns a book backed by m.
func NewBankingBook(m mirror.Mirror) *BankingBook {
	return &BankingBook{mirror: m}
}

// List returns every banking entry, oldest first.
func (b *BankingBook) List(ctx context.Context) ([]models.BankingEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx)
}

func (b *BankingBook) load(ctx context.Context) ([]models.BankingEntry, error) {
	var list []models.BankingEntry
	if _, err := mirror.GetJSON(ctx, b.mirror, BankingMirrorKey, &list); err != nil {
		return nil, fmt.Errorf("failed to read banking data: %w", err)
	}
	return list, nil
}

// Add stores a beneficiary. Bank name, account number and holder are required.
func (b *BankingBook) Add(ctx context.Context, e models.BankingEntry) (models.BankingEntry, error) {
	e.BankName = strings.TrimSpace(e.BankName)
	e.AccountNumber = strings.TrimSpace(e.AccountNumber)
	e.AccountHolder = strings.TrimSpace(e.AccountHolder)
	e.Content = strings.TrimSpace(e.Content)
	e.Amount = e.Amount.Digits()
	required := []struct{ field, value string }{
		{"bank name", e.BankName},
		{"account number", e.AccountNumber},
		{"account holder", e.AccountHolder},
	}
	for _, r := range required {
		if r.value == "" {
			return e, fmt.Errorf("%s: %w", r.field, ErrMissingKey)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	list, err := b.load(ctx)
	if err != nil {
		return e, err
	}
	e.ID = ids.next()
	list = append(list, e)
	if err := mirror.SetJSON(ctx, b.mirror, BankingMirrorKey, list); err != nil {
		return e, fmt.Errorf("failed to save banking data: %w", err)
	}
	return e, nil
}

// LoadForEditing removes an entry and returns it for correction.
func (b *BankingBook) LoadForEditing(ctx context.Context, id string) (models.BankingEntry, error) {
	return b.remove(ctx, id)
}

// Delete removes the entry with the given id.
func (b *BankingBook) Delete(ctx context.Context, id string) error {
	_, err := b.remove(ctx, id)
	return err
}

func (b *BankingBook) remove(ctx context.Context, id string) (models.BankingEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list, err := b.load(ctx)
	if err != nil {
		return models.BankingEntry{}, err
	}
	i := slices.IndexFunc(list, func(e models.BankingEntry) bool { return e.ID == id })
	if i < 0 {
		return models.BankingEntry{}, fmt.Errorf("banking entry %q: %w", id, ErrNotFound)
	}
	e := list[i]
	list = slices.Delete(list, i, i+1)
	if err := mirror.SetJSON(ctx, b.mirror, BankingMirrorKey, list); err != nil {
		return models.BankingEntry{}, fmt.Errorf("failed to save banking data: %w", err)
	}
	return e, nil
}
