package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/store"
)

type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	sales          map[string]domain.Sale
	cashCounts     map[string]domain.CashCount
	withdrawals    map[string]domain.Withdrawal
	customPayments map[string]domain.CustomPayment
	auditLogs      []domain.AuditLog
	users          map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:       make(map[string]domain.Product),
		sales:          make(map[string]domain.Sale),
		cashCounts:     make(map[string]domain.CashCount),
		withdrawals:    make(map[string]domain.Withdrawal),
		customPayments: make(map[string]domain.CustomPayment),
		auditLogs:      make([]domain.AuditLog, 0, 128),
		users:          make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and SEED_STAFF_PASSWORD with
// hardcoded fallbacks. Production runs on postgres and never sees these.
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		zap.L().Warn("memory store using default dev credentials; set SEED_*_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		name     string
		password string
		role     string
	}{
		{"owner", "Pemilik Toko", ownerPwd, domain.RoleOwner},
		{"manager", "Manajer Toko", managerPwd, domain.RoleManager},
		{"staff", "Kasir Utama", staffPwd, domain.RoleStaff},
		{"staff2", "Kasir Kedua", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			zap.L().Fatal("hash seed password", zap.String("user", u.id), zap.Error(err))
		}
		users[u.id] = domain.UserAccount{
			ID:        u.id,
			Name:      u.name,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{
			ID: "prd-kopi", SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", Type: domain.ProductTypeSimple,
			PriceCents: 2600, CostPriceCents: 1700, CommissionPercent: 5, Stock: 200,
			TieredPricing: []domain.TieredPrice{{MinQuantity: 10, UnitPriceCents: 2400}, {MinQuantity: 40, UnitPriceCents: 2200}},
		},
		{
			ID: "prd-mie", SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", Type: domain.ProductTypeSimple,
			PriceCents: 3500, CostPriceCents: 2700, CommissionPercent: 3, Stock: 120,
			TieredPricing: []domain.TieredPrice{{MinQuantity: 5, UnitPriceCents: 3300}},
		},
		{
			ID: "prd-telur", SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", Type: domain.ProductTypeSimple,
			PriceCents: 26500, CostPriceCents: 23000, CommissionPercent: 2, Stock: 40,
		},
		{
			ID: "prd-sabun", SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", Type: domain.ProductTypeSimple,
			PriceCents: 7400, CostPriceCents: 5000, CommissionPercent: 10, Stock: 60,
		},
		{
			ID: "prd-kaos", SKU: "SKU-KAOS-01", Name: "Kaos Polos", Category: "apparel", Type: domain.ProductTypeVariable,
			PriceCents: 55000, CostPriceCents: 30000, CommissionPercent: 8,
			Variants: []domain.Variant{
				{ID: "prd-kaos-m", Name: "M / Hitam", SKU: "SKU-KAOS-01-M", PriceCents: 55000, Stock: 12, Attributes: []domain.VariantAttribute{{Name: "size", Value: "M"}, {Name: "color", Value: "hitam"}}},
				{ID: "prd-kaos-l", Name: "L / Hitam", SKU: "SKU-KAOS-01-L", PriceCents: 57500, Stock: 8, Attributes: []domain.VariantAttribute{{Name: "size", Value: "L"}, {Name: "color", Value: "hitam"}}},
				{ID: "prd-kaos-xl", Name: "XL / Putih", SKU: "SKU-KAOS-01-XL", PriceCents: 60000, Stock: 0, Attributes: []domain.VariantAttribute{{Name: "size", Value: "XL"}, {Name: "color", Value: "putih"}}},
			},
		},
	}

	s := New()
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	s.users = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		result = append(result, cloneProduct(p))
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if c := cmpString(a.Category, b.Category); c != 0 {
			return c
		}
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	for _, p := range s.products {
		if strings.EqualFold(p.SKU, product.SKU) {
			return nil, store.ErrInvalidTransaction
		}
	}
	s.products[product.ID] = cloneProduct(product)
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) AdjustStock(_ context.Context, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyStockLocked(adjustments)
}

// applyStockLocked validates every adjustment before mutating anything so a
// failed batch leaves inventory untouched.
func (s *Store) applyStockLocked(adjustments []domain.StockAdjustment) error {
	staged := make(map[string]domain.Product)
	for _, adj := range adjustments {
		p, ok := staged[adj.ProductID]
		if !ok {
			current, exists := s.products[adj.ProductID]
			if !exists {
				return store.ErrNotFound
			}
			p = cloneProduct(current)
		}
		if adj.VariantID == "" {
			if p.Stock+adj.Delta < 0 {
				return store.ErrInsufficientStock
			}
			p.Stock += adj.Delta
		} else {
			idx := slices.IndexFunc(p.Variants, func(v domain.Variant) bool { return v.ID == adj.VariantID })
			if idx < 0 {
				return store.ErrNotFound
			}
			if p.Variants[idx].Stock+adj.Delta < 0 {
				return store.ErrInsufficientStock
			}
			p.Variants[idx].Stock += adj.Delta
		}
		staged[adj.ProductID] = p
	}

	now := time.Now().UTC()
	for id, p := range staged {
		p.UpdatedAt = now
		s.products[id] = p
	}
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" || len(sale.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if sale.Status == domain.SaleStatusCompleted {
		if err := s.applyStockLocked(sale.StockAdjustments(-1)); err != nil {
			return nil, err
		}
	}

	s.sales[sale.ID] = cloneSale(sale)
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SalesFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.Match(sale) {
			result = append(result, cloneSale(sale))
		}
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) ReviewSale(_ context.Context, id string, from string, to string, reviewedBy string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status != from {
		return nil, store.ErrVersionConflict
	}
	if to == domain.SaleStatusCompleted {
		if err := s.applyStockLocked(sale.StockAdjustments(-1)); err != nil {
			return nil, err
		}
	}

	updated := cloneSale(sale)
	updated.Status = to
	updated.ReviewedBy = reviewedBy
	reviewedAt := at
	updated.ReviewedAt = &reviewedAt
	s.sales[id] = updated

	out := cloneSale(updated)
	return &out, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleStatusCompleted {
		if err := s.applyStockLocked(sale.StockAdjustments(1)); err != nil {
			return nil, err
		}
	}
	delete(s.sales, id)
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) CreateCashCount(_ context.Context, cc domain.CashCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cc.ID == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.cashCounts[cc.ID]; exists {
		return store.ErrInvalidTransaction
	}
	s.cashCounts[cc.ID] = cloneCashCount(cc)
	return nil
}

func (s *Store) GetCashCount(_ context.Context, id string) (*domain.CashCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cc, ok := s.cashCounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneCashCount(cc)
	return &out, nil
}

func (s *Store) ListCashCounts(_ context.Context, status string) ([]domain.CashCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashCount, 0, len(s.cashCounts))
	for _, cc := range s.cashCounts {
		if status != "" && cc.Status != status {
			continue
		}
		result = append(result, cloneCashCount(cc))
	}
	slices.SortFunc(result, func(a, b domain.CashCount) int {
		if c := cmpString(b.Date, a.Date); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateCashCount(_ context.Context, cc domain.CashCount, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.cashCounts[cc.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	if !extendsHistory(current.History, cc.History) {
		return store.ErrInvalidTransaction
	}
	s.cashCounts[cc.ID] = cloneCashCount(cc)
	return nil
}

func (s *Store) CreateWithdrawal(_ context.Context, w domain.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.withdrawals[w.ID]; exists {
		return store.ErrInvalidTransaction
	}
	s.withdrawals[w.ID] = cloneWithdrawal(w)
	return nil
}

func (s *Store) GetWithdrawal(_ context.Context, id string) (*domain.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneWithdrawal(w)
	return &out, nil
}

func (s *Store) ListWithdrawals(_ context.Context, filter domain.RecordFilter) ([]domain.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Withdrawal, 0, len(s.withdrawals))
	for _, w := range s.withdrawals {
		if filter.Status != "" && w.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && w.UserID != filter.UserID {
			continue
		}
		result = append(result, cloneWithdrawal(w))
	}
	slices.SortFunc(result, func(a, b domain.Withdrawal) int {
		return b.RequestedAt.Compare(a.RequestedAt)
	})
	return result, nil
}

func (s *Store) UpdateWithdrawal(_ context.Context, w domain.Withdrawal, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.withdrawals[w.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	if !extendsHistory(current.History, w.History) {
		return store.ErrInvalidTransaction
	}
	s.withdrawals[w.ID] = cloneWithdrawal(w)
	return nil
}

func (s *Store) CreateCustomPayment(_ context.Context, p domain.CustomPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.customPayments[p.ID]; exists {
		return store.ErrInvalidTransaction
	}
	s.customPayments[p.ID] = cloneCustomPayment(p)
	return nil
}

func (s *Store) GetCustomPayment(_ context.Context, id string) (*domain.CustomPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.customPayments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneCustomPayment(p)
	return &out, nil
}

func (s *Store) ListCustomPayments(_ context.Context, filter domain.RecordFilter) ([]domain.CustomPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CustomPayment, 0, len(s.customPayments))
	for _, p := range s.customPayments {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && p.PayeeID != filter.UserID {
			continue
		}
		result = append(result, cloneCustomPayment(p))
	}
	slices.SortFunc(result, func(a, b domain.CustomPayment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateCustomPayment(_ context.Context, p domain.CustomPayment, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.customPayments[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	if !extendsHistory(current.History, p.History) {
		return store.ErrInvalidTransaction
	}
	s.customPayments[p.ID] = cloneCustomPayment(p)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.ToLower(strings.TrimSpace(user.ID))
	if id == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.users[id]; exists {
		return store.ErrInvalidTransaction
	}
	user.ID = id
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[id] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		result = append(result, user)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return cmpString(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.ToLower(strings.TrimSpace(id))
	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[id] = user
	return nil
}

// extendsHistory reports whether next keeps every entry of prev in order and
// only appends after it.
func extendsHistory(prev []domain.AuditEntry, next []domain.AuditEntry) bool {
	if len(next) < len(prev) {
		return false
	}
	for i := range prev {
		a, b := prev[i], next[i]
		if !a.At.Equal(b.At) || a.ActorID != b.ActorID || a.Action != b.Action || a.Status != b.Status || a.Note != b.Note {
			return false
		}
	}
	return true
}

func cmpString(a string, b string) int {
	return strings.Compare(a, b)
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.TieredPricing = slices.Clone(src.TieredPricing)
	if src.Variants != nil {
		dst.Variants = make([]domain.Variant, len(src.Variants))
		for i, v := range src.Variants {
			v.Attributes = slices.Clone(v.Attributes)
			dst.Variants[i] = v
		}
	}
	return dst
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	if src.Customer != nil {
		customer := *src.Customer
		dst.Customer = &customer
	}
	if src.ReviewedAt != nil {
		at := *src.ReviewedAt
		dst.ReviewedAt = &at
	}
	return dst
}

func cloneCashCount(src domain.CashCount) domain.CashCount {
	dst := src
	dst.History = slices.Clone(src.History)
	if src.SecondSignature != nil {
		sig := *src.SecondSignature
		dst.SecondSignature = &sig
	}
	if src.OwnerAudit != nil {
		audit := *src.OwnerAudit
		dst.OwnerAudit = &audit
	}
	return dst
}

func cloneWithdrawal(src domain.Withdrawal) domain.Withdrawal {
	dst := src
	dst.History = slices.Clone(src.History)
	return dst
}

func cloneCustomPayment(src domain.CustomPayment) domain.CustomPayment {
	dst := src
	dst.History = slices.Clone(src.History)
	return dst
}
