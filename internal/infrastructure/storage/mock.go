package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/model"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
// Records are copied on the way in and out so callers cannot mutate state.
type MockRepository struct {
	mu         sync.Mutex
	receipts   map[string]*model.Receipt
	charges    map[string]*model.Charge
	statements map[string]*model.Statement
	skips      []*model.SkipEvent
	weights    []model.Weights
	aliases    []merchant.Alias

	// Hooks for test assertions
	CommitMatchCalls  int
	UpdateReceiptCall int
	LastSavedWeights  *model.Weights
	AppendSkipCalls   int

	// Error injection for testing error paths
	GetReceiptErr    error
	UpdateReceiptErr error
	ListChargesErr   error
	CommitMatchErr   error
	AppendSkipErr    error
	SaveWeightsErr   error
	SaveAliasErr     error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		receipts:   make(map[string]*model.Receipt),
		charges:    make(map[string]*model.Charge),
		statements: make(map[string]*model.Statement),
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

func copyReceipt(r *model.Receipt) *model.Receipt {
	c := *r
	if r.Merchant != nil {
		v := *r.Merchant
		c.Merchant = &v
	}
	if r.Amount != nil {
		v := *r.Amount
		c.Amount = &v
	}
	if r.Date != nil {
		v := *r.Date
		c.Date = &v
	}
	if r.Category != nil {
		v := *r.Category
		c.Category = &v
	}
	if r.MatchedChargeID != nil {
		v := *r.MatchedChargeID
		c.MatchedChargeID = &v
	}
	if r.MatchedAt != nil {
		v := *r.MatchedAt
		c.MatchedAt = &v
	}
	if r.StatementID != nil {
		v := *r.StatementID
		c.StatementID = &v
	}
	return &c
}

func copyCharge(ch *model.Charge) *model.Charge {
	c := *ch
	if ch.ReceiptID != nil {
		v := *ch.ReceiptID
		c.ReceiptID = &v
	}
	return &c
}

// CreateReceipt stores an unmatched copy of r
func (m *MockRepository) CreateReceipt(ctx context.Context, r *model.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.receipts[r.ID]; exists {
		return fmt.Errorf("receipt %s already exists", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	r.IsMatched = false
	r.MatchedChargeID = nil
	r.MatchedAt = nil

	m.receipts[r.ID] = copyReceipt(r)
	return nil
}

// GetReceipt returns a copy of the stored receipt
func (m *MockRepository) GetReceipt(ctx context.Context, id string) (*model.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetReceiptErr != nil {
		return nil, m.GetReceiptErr
	}
	r, ok := m.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, model.ErrNotFound)
	}
	return copyReceipt(r), nil
}

// UpdateReceipt overwrites everything except match fields
func (m *MockRepository) UpdateReceipt(ctx context.Context, r *model.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateReceiptCall++
	if m.UpdateReceiptErr != nil {
		return m.UpdateReceiptErr
	}
	existing, ok := m.receipts[r.ID]
	if !ok {
		return fmt.Errorf("receipt %s: %w", r.ID, model.ErrNotFound)
	}

	r.UpdatedAt = time.Now().UTC()
	updated := copyReceipt(r)
	updated.IsMatched = existing.IsMatched
	updated.MatchedChargeID = existing.MatchedChargeID
	updated.MatchedAt = existing.MatchedAt
	updated.CreatedAt = existing.CreatedAt
	m.receipts[r.ID] = updated
	return nil
}

// ListReceipts returns copies matching the filter, oldest first
func (m *MockRepository) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*model.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Receipt
	for _, r := range m.receipts {
		if filter.StatementID != "" && (r.StatementID == nil || *r.StatementID != filter.StatementID) {
			continue
		}
		if filter.Unassigned && r.IsAssigned() {
			continue
		}
		if filter.UnmatchedOnly && r.IsMatched {
			continue
		}
		if filter.NeedsReview && !r.NeedsReview {
			continue
		}
		out = append(out, copyReceipt(r))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteReceipt removes the receipt and clears its charge
func (m *MockRepository) DeleteReceipt(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.receipts[id]; !ok {
		return fmt.Errorf("receipt %s: %w", id, model.ErrNotFound)
	}
	for _, c := range m.charges {
		if c.ReceiptID != nil && *c.ReceiptID == id {
			c.IsMatched = false
			c.ReceiptID = nil
		}
	}
	delete(m.receipts, id)
	return nil
}

// CreateCharge stores an unmatched copy of c
func (m *MockRepository) CreateCharge(ctx context.Context, c *model.Charge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.charges[c.ID]; exists {
		return fmt.Errorf("charge %s already exists", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.IsMatched = false
	c.ReceiptID = nil

	m.charges[c.ID] = copyCharge(c)
	return nil
}

// GetCharge returns a copy of the stored charge
func (m *MockRepository) GetCharge(ctx context.Context, id string) (*model.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.charges[id]
	if !ok {
		return nil, fmt.Errorf("charge %s: %w", id, model.ErrNotFound)
	}
	return copyCharge(c), nil
}

// ListCharges returns copies matching the filter, by date
func (m *MockRepository) ListCharges(ctx context.Context, filter ChargeFilter) ([]*model.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListChargesErr != nil {
		return nil, m.ListChargesErr
	}

	var out []*model.Charge
	for _, c := range m.charges {
		if filter.StatementID != "" && c.StatementID != filter.StatementID {
			continue
		}
		if filter.UnmatchedOnly && c.IsMatched {
			continue
		}
		out = append(out, copyCharge(c))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetChargeFlags updates whichever flags are non-nil
func (m *MockRepository) SetChargeFlags(ctx context.Context, id string, personal, noReceiptRequired *bool) (*model.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.charges[id]
	if !ok {
		return nil, fmt.Errorf("charge %s: %w", id, model.ErrNotFound)
	}
	if personal != nil {
		c.IsPersonal = *personal
	}
	if noReceiptRequired != nil {
		c.NoReceiptRequired = *noReceiptRequired
	}
	return copyCharge(c), nil
}

// DeleteCharge removes the charge and clears its receipt
func (m *MockRepository) DeleteCharge(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.charges[id]; !ok {
		return fmt.Errorf("charge %s: %w", id, model.ErrNotFound)
	}
	for _, r := range m.receipts {
		if r.MatchedChargeID != nil && *r.MatchedChargeID == id {
			r.IsMatched = false
			r.MatchedChargeID = nil
			r.MatchedAt = nil
		}
	}
	delete(m.charges, id)
	return nil
}

// CreateStatement stores a statement
func (m *MockRepository) CreateStatement(ctx context.Context, s *model.Statement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *s
	m.statements[s.ID] = &copied
	return nil
}

// GetStatement returns a copy of the stored statement
func (m *MockRepository) GetStatement(ctx context.Context, id string) (*model.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.statements[id]
	if !ok {
		return nil, fmt.Errorf("statement %s: %w", id, model.ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

// ListStatements returns statements, most recent first
func (m *MockRepository) ListStatements(ctx context.Context) ([]*model.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Statement, 0, len(m.statements))
	for _, s := range m.statements {
		copied := *s
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate)
	})
	return out, nil
}

// CommitMatch applies the same compare-and-swap rules as Storage
func (m *MockRepository) CommitMatch(ctx context.Context, receiptID, chargeID string, matchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CommitMatchCalls++
	if m.CommitMatchErr != nil {
		return m.CommitMatchErr
	}

	c, ok := m.charges[chargeID]
	if !ok {
		return fmt.Errorf("charge %s: %w", chargeID, model.ErrNotFound)
	}
	r, ok := m.receipts[receiptID]
	if !ok {
		return fmt.Errorf("receipt %s: %w", receiptID, model.ErrNotFound)
	}
	if r.IsMatched || c.IsMatched {
		return model.ErrAlreadyMatched
	}

	at := matchedAt.UTC()
	cid, rid := chargeID, receiptID
	r.IsMatched = true
	r.MatchedChargeID = &cid
	r.MatchedAt = &at
	r.NeedsReview = false
	if c.StatementID != "" {
		sid := c.StatementID
		r.StatementID = &sid
	}
	c.IsMatched = true
	c.ReceiptID = &rid
	return nil
}

// Unmatch clears both sides of a receipt's match
func (m *MockRepository) Unmatch(ctx context.Context, receiptID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.receipts[receiptID]
	if !ok {
		return "", fmt.Errorf("receipt %s: %w", receiptID, model.ErrNotFound)
	}
	if r.MatchedChargeID == nil {
		return "", model.ErrNotMatched
	}

	chargeID := *r.MatchedChargeID
	r.IsMatched = false
	r.MatchedChargeID = nil
	r.MatchedAt = nil
	if c, ok := m.charges[chargeID]; ok {
		c.IsMatched = false
		c.ReceiptID = nil
	}
	return chargeID, nil
}

// ListMatchedPairsSince returns matches committed at or after since
func (m *MockRepository) ListMatchedPairsSince(ctx context.Context, since time.Time) ([]model.MatchedPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.MatchedPair
	for _, r := range m.receipts {
		if !r.IsMatched || r.MatchedAt == nil || r.MatchedAt.Before(since) {
			continue
		}
		c, ok := m.charges[*r.MatchedChargeID]
		if !ok {
			continue
		}
		out = append(out, model.MatchedPair{
			Receipt:   copyReceipt(r),
			Charge:    copyCharge(c),
			MatchedAt: *r.MatchedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchedAt.Before(out[j].MatchedAt) })
	return out, nil
}

// CountMatchesSince counts matches committed at or after since
func (m *MockRepository) CountMatchesSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, r := range m.receipts {
		if r.IsMatched && r.MatchedAt != nil && !r.MatchedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// AppendSkip appends to the in-memory ledger
func (m *MockRepository) AppendSkip(ctx context.Context, event *model.SkipEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendSkipCalls++
	if m.AppendSkipErr != nil {
		return m.AppendSkipErr
	}
	copied := *event
	m.skips = append(m.skips, &copied)
	return nil
}

// ListSkips returns the ledger in insertion order
func (m *MockRepository) ListSkips(ctx context.Context) ([]*model.SkipEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.SkipEvent, 0, len(m.skips))
	for _, e := range m.skips {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

// CountSkipsSince counts skips recorded at or after since
func (m *MockRepository) CountSkipsSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.skips {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// LoadWeights returns the last saved weights
func (m *MockRepository) LoadWeights(ctx context.Context) (*model.Weights, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.weights) == 0 {
		return nil, model.ErrNotFound
	}
	w := m.weights[len(m.weights)-1]
	return &w, nil
}

// SaveWeights appends a weight version
func (m *MockRepository) SaveWeights(ctx context.Context, w model.Weights) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveWeightsErr != nil {
		return m.SaveWeightsErr
	}
	m.weights = append(m.weights, w)
	m.LastSavedWeights = &w
	return nil
}

// SaveAlias upserts an alias
func (m *MockRepository) SaveAlias(ctx context.Context, a merchant.Alias) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveAliasErr != nil {
		return m.SaveAliasErr
	}
	for i, existing := range m.aliases {
		if existing.Pattern == a.Pattern && existing.Regex == a.Regex {
			m.aliases[i] = a
			return nil
		}
	}
	m.aliases = append(m.aliases, a)
	return nil
}

// ListAliases returns aliases in insertion order
func (m *MockRepository) ListAliases(ctx context.Context) ([]merchant.Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]merchant.Alias(nil), m.aliases...), nil
}

// GetStats computes statistics from the in-memory state
func (m *MockRepository) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{Skips: len(m.skips)}
	for _, r := range m.receipts {
		stats.Receipts++
		if r.IsMatched {
			stats.MatchedReceipts++
		}
		if !r.IsAssigned() {
			stats.UnassignedReceipts++
		}
		if r.NeedsReview {
			stats.NeedsReview++
		}
	}
	for _, c := range m.charges {
		stats.Charges++
		if c.IsMatched {
			stats.MatchedCharges++
		} else if c.NeedsReceipt() {
			stats.ChargesOwingReceipt++
		}
	}
	if len(m.weights) > 0 {
		stats.ModelVersion = m.weights[len(m.weights)-1].Version
	}
	return stats, nil
}

// Hook accessors guarded by the mutex for use from concurrent tests.

// AppendSkipCount returns how many times AppendSkip ran
func (m *MockRepository) AppendSkipCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AppendSkipCalls
}
