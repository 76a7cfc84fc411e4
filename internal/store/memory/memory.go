// Package memory implements the domain store interfaces with in-process
// maps. It backs standalone mode and the test suites; serve mode uses the
// postgres package instead.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyades-labs/tokengate/internal/domain"
)

type pairKey struct {
	asset  string
	wallet string
}

// Store holds every record kind behind one mutex. The record volume in
// standalone mode never justifies anything finer-grained.
type Store struct {
	mu        sync.RWMutex
	sales     map[string]domain.Sale
	vaults    map[string]domain.VaultRecord
	policies  map[string]domain.Policy
	markers   map[pairKey]domain.AllowListEntry
	receipts  []domain.Receipt
	decisions []domain.Decision
	audit     []domain.AuditEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sales:    make(map[string]domain.Sale),
		vaults:   make(map[string]domain.VaultRecord),
		policies: make(map[string]domain.Policy),
		markers:  make(map[pairKey]domain.AllowListEntry),
	}
}

// --- SaleStore ---

func (s *Store) Create(ctx context.Context, sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[sale.Asset]; ok {
		return fmt.Errorf("memory: sale %s: %w", sale.Asset, domain.ErrAlreadyExists)
	}
	s.sales[sale.Asset] = sale
	return nil
}

func (s *Store) Get(ctx context.Context, asset string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[asset]
	if !ok {
		return domain.Sale{}, fmt.Errorf("memory: sale %s: %w", asset, domain.ErrNotFound)
	}
	return sale, nil
}

func (s *Store) UpdateTotalRaised(ctx context.Context, asset string, total uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[asset]
	if !ok {
		return fmt.Errorf("memory: sale %s: %w", asset, domain.ErrNotFound)
	}
	sale.TotalRaised = total
	s.sales[asset] = sale
	return nil
}

func (s *Store) List(ctx context.Context, opts domain.ListOpts) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return paginate(out, opts), nil
}

// --- VaultStore ---

// Vaults returns the vault-record view of the store.
func (s *Store) Vaults() *VaultStore { return &VaultStore{s: s} }

// VaultStore is the vault-record view of a Store.
type VaultStore struct {
	s *Store
}

func (v *VaultStore) Create(ctx context.Context, rec domain.VaultRecord) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.vaults[rec.Asset]; ok {
		return fmt.Errorf("memory: vault %s: %w", rec.Asset, domain.ErrAlreadyExists)
	}
	v.s.vaults[rec.Asset] = rec
	return nil
}

func (v *VaultStore) Get(ctx context.Context, asset string) (domain.VaultRecord, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	rec, ok := v.s.vaults[asset]
	if !ok {
		return domain.VaultRecord{}, fmt.Errorf("memory: vault %s: %w", asset, domain.ErrNotFound)
	}
	return rec, nil
}

// --- PolicyStore ---

// Policies returns the policy view of the store.
func (s *Store) Policies() *PolicyStore { return &PolicyStore{s: s} }

// PolicyStore is the policy view of a Store.
type PolicyStore struct {
	s *Store
}

func (p *PolicyStore) Create(ctx context.Context, pol domain.Policy) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.policies[pol.Asset]; ok {
		return fmt.Errorf("memory: policy %s: %w", pol.Asset, domain.ErrAlreadyExists)
	}
	p.s.policies[pol.Asset] = pol
	return nil
}

func (p *PolicyStore) Get(ctx context.Context, asset string) (domain.Policy, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	pol, ok := p.s.policies[asset]
	if !ok {
		return domain.Policy{}, fmt.Errorf("memory: policy %s: %w", asset, domain.ErrNotFound)
	}
	return pol, nil
}

func (p *PolicyStore) Update(ctx context.Context, pol domain.Policy) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.policies[pol.Asset]; !ok {
		return fmt.Errorf("memory: policy %s: %w", pol.Asset, domain.ErrNotFound)
	}
	p.s.policies[pol.Asset] = pol
	return nil
}

// --- AllowlistStore ---

// Allowlist returns the allow-list view of the store.
func (s *Store) Allowlist() *AllowlistStore { return &AllowlistStore{s: s} }

// AllowlistStore is the allow-list view of a Store.
type AllowlistStore struct {
	s *Store
}

func (a *AllowlistStore) Grant(ctx context.Context, asset, wallet string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	key := pairKey{asset: asset, wallet: wallet}
	if _, ok := a.s.markers[key]; ok {
		return fmt.Errorf("memory: marker %s/%s: %w", asset, wallet, domain.ErrAlreadyExists)
	}
	a.s.markers[key] = domain.AllowListEntry{Asset: asset, Wallet: wallet, GrantedAt: time.Now().UTC()}
	return nil
}

func (a *AllowlistStore) Revoke(ctx context.Context, asset, wallet string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	key := pairKey{asset: asset, wallet: wallet}
	if _, ok := a.s.markers[key]; !ok {
		return fmt.Errorf("memory: marker %s/%s: %w", asset, wallet, domain.ErrNotFound)
	}
	delete(a.s.markers, key)
	return nil
}

func (a *AllowlistStore) Has(ctx context.Context, asset, wallet string) (bool, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	_, ok := a.s.markers[pairKey{asset: asset, wallet: wallet}]
	return ok, nil
}

func (a *AllowlistStore) List(ctx context.Context, asset string) ([]domain.AllowListEntry, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	var out []domain.AllowListEntry
	for key, entry := range a.s.markers {
		if key.asset == asset {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}

// --- ReceiptStore ---

// Receipts returns the receipt view of the store.
func (s *Store) Receipts() *ReceiptStore { return &ReceiptStore{s: s} }

// ReceiptStore is the receipt view of a Store.
type ReceiptStore struct {
	s *Store
}

func (r *ReceiptStore) Create(ctx context.Context, rec domain.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.receipts = append(r.s.receipts, rec)
	return nil
}

func (r *ReceiptStore) ListByAsset(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Receipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Receipt
	for _, rec := range r.s.receipts {
		if rec.Asset == asset {
			out = append(out, rec)
		}
	}
	return paginate(out, opts), nil
}

func (r *ReceiptStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Receipt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Receipt
	for _, rec := range r.s.receipts {
		if rec.CreatedAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// --- DecisionStore ---

// Decisions returns the decision view of the store.
func (s *Store) Decisions() *DecisionStore { return &DecisionStore{s: s} }

// DecisionStore is the decision view of a Store.
type DecisionStore struct {
	s *Store
}

func (d *DecisionStore) Insert(ctx context.Context, dec domain.Decision) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.decisions = append(d.s.decisions, dec)
	return nil
}

func (d *DecisionStore) ListByAsset(ctx context.Context, asset string, opts domain.ListOpts) ([]domain.Decision, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	var out []domain.Decision
	for _, dec := range d.s.decisions {
		if dec.Asset == asset {
			out = append(out, dec)
		}
	}
	return paginate(out, opts), nil
}

func (d *DecisionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Decision, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	var out []domain.Decision
	for _, dec := range d.s.decisions {
		if dec.CreatedAt.Before(before) {
			out = append(out, dec)
		}
	}
	return out, nil
}

// --- AuditStore ---

// Audit returns the audit-log view of the store.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// AuditStore is the append-only audit view of a Store.
type AuditStore struct {
	s *Store
}

func (a *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	a.s.audit = append(a.s.audit, domain.AuditEntry{
		ID:        int64(len(a.s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (a *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := make([]domain.AuditEntry, len(a.s.audit))
	copy(out, a.s.audit)
	return paginate(out, opts), nil
}

func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(in) {
			return nil
		}
		in = in[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}

// Compile-time interface checks.
var (
	_ domain.SaleStore      = (*Store)(nil)
	_ domain.VaultStore     = (*VaultStore)(nil)
	_ domain.PolicyStore    = (*PolicyStore)(nil)
	_ domain.AllowlistStore = (*AllowlistStore)(nil)
	_ domain.ReceiptStore   = (*ReceiptStore)(nil)
	_ domain.DecisionStore  = (*DecisionStore)(nil)
	_ domain.AuditStore     = (*AuditStore)(nil)
)
