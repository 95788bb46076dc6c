package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/store"
	"kasirkas/backend/internal/xid"
)

const (
	recordCashCount     = "cash_count"
	recordWithdrawal    = "withdrawal"
	recordCustomPayment = "custom_payment"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, sku, name, category, type, price_cents, cost_price_cents, commission_percent,
	stock, tiered_pricing, variants, active, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var commission decimal.Decimal
	var tiers, variants []byte
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Type, &p.PriceCents, &p.CostPriceCents, &commission,
		&p.Stock, &tiers, &variants, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.CommissionPercent = commission.InexactFloat64()
	if err := unmarshalJSON(tiers, &p.TieredPricing); err != nil {
		return domain.Product{}, fmt.Errorf("product %s tiers: %w", p.ID, err)
	}
	if err := unmarshalJSON(variants, &p.Variants); err != nil {
		return domain.Product{}, fmt.Errorf("product %s variants: %w", p.ID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, uniqueStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	tiers, err := marshalJSON(product.TieredPricing)
	if err != nil {
		return nil, err
	}
	variants, err := marshalJSON(product.Variants)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, sku, name, category, type, price_cents, cost_price_cents, commission_percent,
			stock, tiered_pricing, variants, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, product.ID, product.SKU, product.Name, product.Category, product.Type, product.PriceCents, product.CostPriceCents,
		decimal.NewFromFloat(product.CommissionPercent), product.Stock, tiers, variants, product.Active,
		product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := applyStock(ctx, pgTx, adjustments); err != nil {
		return err
	}
	return pgTx.Commit()
}

// applyStock locks every touched product row, applies the deltas in memory and
// writes the rows back. Any negative result aborts the batch.
func applyStock(ctx context.Context, pgTx *sql.Tx, adjustments []domain.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	ids := make([]string, 0, len(adjustments))
	for _, adj := range adjustments {
		ids = append(ids, adj.ProductID)
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, stock, variants
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, uniqueStrings(ids))
	if err != nil {
		return err
	}
	type stockRow struct {
		stock    int
		variants []domain.Variant
	}
	locked := make(map[string]*stockRow, len(ids))
	for rows.Next() {
		var id string
		var raw []byte
		row := &stockRow{}
		if err := rows.Scan(&id, &row.stock, &raw); err != nil {
			_ = rows.Close()
			return err
		}
		if err := unmarshalJSON(raw, &row.variants); err != nil {
			_ = rows.Close()
			return err
		}
		locked[id] = row
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, adj := range adjustments {
		row, ok := locked[adj.ProductID]
		if !ok {
			return store.ErrNotFound
		}
		if adj.VariantID == "" {
			if row.stock+adj.Delta < 0 {
				return store.ErrInsufficientStock
			}
			row.stock += adj.Delta
			continue
		}
		idx := slices.IndexFunc(row.variants, func(v domain.Variant) bool { return v.ID == adj.VariantID })
		if idx < 0 {
			return store.ErrNotFound
		}
		if row.variants[idx].Stock+adj.Delta < 0 {
			return store.ErrInsufficientStock
		}
		row.variants[idx].Stock += adj.Delta
	}

	for id, row := range locked {
		variants, err := marshalJSON(row.variants)
		if err != nil {
			return err
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products SET stock = $2, variants = $3, updated_at = now() WHERE id = $1
		`, id, row.stock, variants); err != nil {
			return err
		}
	}
	return nil
}

const saleColumns = `id, status, lines, customer, seller_id, seller_name, payment_method, subtotal_cents,
	discount_cents, discount_percent, tax_rate_percent, tax_cents, total_cents, total_commission_cents,
	cash_received_cents, change_cents, notes, reviewed_by, reviewed_at, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var lines, customer []byte
	var discountPercent, taxRate decimal.Decimal
	var reviewedAt sql.NullTime
	if err := row.Scan(&sale.ID, &sale.Status, &lines, &customer, &sale.SellerID, &sale.SellerName, &sale.PaymentMethod,
		&sale.SubtotalCents, &sale.DiscountCents, &discountPercent, &taxRate, &sale.TaxCents, &sale.TotalCents,
		&sale.TotalCommissionCents, &sale.CashReceivedCents, &sale.ChangeCents, &sale.Notes, &sale.ReviewedBy,
		&reviewedAt, &sale.CreatedAt); err != nil {
		return domain.Sale{}, err
	}
	if err := unmarshalJSON(lines, &sale.Lines); err != nil {
		return domain.Sale{}, fmt.Errorf("sale %s lines: %w", sale.ID, err)
	}
	if len(customer) > 0 && string(customer) != "null" {
		sale.Customer = &domain.CustomerRef{}
		if err := json.Unmarshal(customer, sale.Customer); err != nil {
			return domain.Sale{}, fmt.Errorf("sale %s customer: %w", sale.ID, err)
		}
	}
	sale.DiscountPercent = discountPercent.InexactFloat64()
	sale.TaxRatePercent = taxRate.InexactFloat64()
	if reviewedAt.Valid {
		at := reviewedAt.Time.UTC()
		sale.ReviewedAt = &at
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" || len(sale.Lines) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	lines, err := marshalJSON(sale.Lines)
	if err != nil {
		return nil, err
	}
	var customer any
	if sale.Customer != nil {
		raw, err := json.Marshal(sale.Customer)
		if err != nil {
			return nil, err
		}
		customer = raw
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if sale.Status == domain.SaleStatusCompleted {
		if err := applyStock(ctx, pgTx, sale.StockAdjustments(-1)); err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, sale.ID, sale.Status, lines, customer, sale.SellerID, sale.SellerName, sale.PaymentMethod, sale.SubtotalCents,
		sale.DiscountCents, decimal.NewFromFloat(sale.DiscountPercent), decimal.NewFromFloat(sale.TaxRatePercent),
		sale.TaxCents, sale.TotalCents, sale.TotalCommissionCents, sale.CashReceivedCents, sale.ChangeCents, sale.Notes,
		sale.ReviewedBy, nullTime(sale.ReviewedAt), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, error) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 5)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PaymentMethod != "" {
		add("payment_method = $%d", filter.PaymentMethod)
	}
	if filter.SellerID != "" {
		add("seller_id = $%d", filter.SellerID)
	}
	if filter.Date != "" {
		loc := filter.Location
		if loc == nil {
			loc = time.UTC
		}
		start, err := time.ParseInLocation(domain.DateLayout, filter.Date, loc)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		add("created_at >= $%d", start)
		add("created_at < $%d", start.AddDate(0, 0, 1))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ReviewSale(ctx context.Context, id string, from string, to string, reviewedBy string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := scanSale(pgTx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if sale.Status != from {
		return nil, store.ErrVersionConflict
	}
	if to == domain.SaleStatusCompleted {
		if err := applyStock(ctx, pgTx, sale.StockAdjustments(-1)); err != nil {
			return nil, err
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE sales SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = $5
	`, id, to, reviewedBy, at, from); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	sale.Status = to
	sale.ReviewedBy = reviewedBy
	reviewedAt := at.UTC()
	sale.ReviewedAt = &reviewedAt
	return &sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := scanSale(pgTx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if sale.Status == domain.SaleStatusCompleted {
		if err := applyStock(ctx, pgTx, sale.StockAdjustments(1)); err != nil {
			return nil, err
		}
	}
	if _, err := pgTx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

const cashCountColumns = `id, count_date, counted_total_cents, system_total_cents, difference_cents, status,
	first_signature, second_signature, owner_audit, notes, version, created_at, updated_at`

func scanCashCount(row rowScanner) (domain.CashCount, error) {
	var cc domain.CashCount
	var date time.Time
	var first, second, audit []byte
	if err := row.Scan(&cc.ID, &date, &cc.CountedTotalCents, &cc.SystemTotalCents, &cc.DifferenceCents, &cc.Status,
		&first, &second, &audit, &cc.Notes, &cc.Version, &cc.CreatedAt, &cc.UpdatedAt); err != nil {
		return domain.CashCount{}, err
	}
	cc.Date = date.Format(domain.DateLayout)
	if err := json.Unmarshal(first, &cc.FirstSignature); err != nil {
		return domain.CashCount{}, fmt.Errorf("cash count %s first signature: %w", cc.ID, err)
	}
	if len(second) > 0 {
		cc.SecondSignature = &domain.Signature{}
		if err := json.Unmarshal(second, cc.SecondSignature); err != nil {
			return domain.CashCount{}, fmt.Errorf("cash count %s second signature: %w", cc.ID, err)
		}
	}
	if len(audit) > 0 {
		cc.OwnerAudit = &domain.OwnerAudit{}
		if err := json.Unmarshal(audit, cc.OwnerAudit); err != nil {
			return domain.CashCount{}, fmt.Errorf("cash count %s owner audit: %w", cc.ID, err)
		}
	}
	cc.CreatedAt = cc.CreatedAt.UTC()
	cc.UpdatedAt = cc.UpdatedAt.UTC()
	return cc, nil
}

func (s *Store) CreateCashCount(ctx context.Context, cc domain.CashCount) error {
	if cc.ID == "" {
		return store.ErrInvalidTransaction
	}
	first, err := json.Marshal(cc.FirstSignature)
	if err != nil {
		return err
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO cash_counts (`+cashCountColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULL,NULL,$8,$9,$10,$11)
	`, cc.ID, cc.Date, cc.CountedTotalCents, cc.SystemTotalCents, cc.DifferenceCents, cc.Status, first, cc.Notes,
		cc.Version, cc.CreatedAt, cc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	if err := appendHistory(ctx, pgTx, recordCashCount, cc.ID, nil, cc.History); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) GetCashCount(ctx context.Context, id string) (*domain.CashCount, error) {
	cc, err := scanCashCount(s.db.QueryRowContext(ctx, `SELECT `+cashCountColumns+` FROM cash_counts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	histories, err := loadHistories(ctx, s.db, recordCashCount, []string{id})
	if err != nil {
		return nil, err
	}
	cc.History = histories[id]
	return &cc, nil
}

func (s *Store) ListCashCounts(ctx context.Context, status string) ([]domain.CashCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cashCountColumns+`
		FROM cash_counts
		WHERE ($1 = '' OR status = $1)
		ORDER BY count_date DESC, created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]domain.CashCount, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		cc, err := scanCashCount(rows)
		if err != nil {
			return nil, err
		}
		counts = append(counts, cc)
		ids = append(ids, cc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	histories, err := loadHistories(ctx, s.db, recordCashCount, ids)
	if err != nil {
		return nil, err
	}
	for i := range counts {
		counts[i].History = histories[counts[i].ID]
	}
	return counts, nil
}

func (s *Store) UpdateCashCount(ctx context.Context, cc domain.CashCount, expectedVersion int) error {
	second, err := marshalOptional(cc.SecondSignature)
	if err != nil {
		return err
	}
	audit, err := marshalOptional(cc.OwnerAudit)
	if err != nil {
		return err
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE cash_counts
		SET status = $3, second_signature = $4, owner_audit = $5, notes = $6, version = $7, updated_at = $8
		WHERE id = $1 AND version = $2
	`, cc.ID, expectedVersion, cc.Status, second, audit, cc.Notes, cc.Version, cc.UpdatedAt)
	if err != nil {
		return err
	}
	if err := checkSwapped(ctx, pgTx, res, "cash_counts", cc.ID); err != nil {
		return err
	}
	if err := appendHistory(ctx, pgTx, recordCashCount, cc.ID, &expectedVersion, cc.History); err != nil {
		return err
	}
	return pgTx.Commit()
}

const withdrawalColumns = `id, user_id, user_name, amount_cents, status, notes, version, requested_at, updated_at`

func scanWithdrawal(row rowScanner) (domain.Withdrawal, error) {
	var w domain.Withdrawal
	if err := row.Scan(&w.ID, &w.UserID, &w.UserName, &w.AmountCents, &w.Status, &w.Notes, &w.Version,
		&w.RequestedAt, &w.UpdatedAt); err != nil {
		return domain.Withdrawal{}, err
	}
	w.RequestedAt = w.RequestedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, w domain.Withdrawal) error {
	if w.ID == "" {
		return store.ErrInvalidTransaction
	}
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO withdrawals (`+withdrawalColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, w.ID, w.UserID, w.UserName, w.AmountCents, w.Status, w.Notes, w.Version, w.RequestedAt, w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	if err := appendHistory(ctx, pgTx, recordWithdrawal, w.ID, nil, w.History); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	histories, err := loadHistories(ctx, s.db, recordWithdrawal, []string{id})
	if err != nil {
		return nil, err
	}
	w.History = histories[id]
	return &w, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, filter domain.RecordFilter) ([]domain.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawals
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR user_id = $2)
		ORDER BY requested_at DESC
	`, filter.Status, filter.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]domain.Withdrawal, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
		ids = append(ids, w.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	histories, err := loadHistories(ctx, s.db, recordWithdrawal, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].History = histories[list[i].ID]
	}
	return list, nil
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w domain.Withdrawal, expectedVersion int) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE withdrawals
		SET status = $3, notes = $4, version = $5, updated_at = $6
		WHERE id = $1 AND version = $2
	`, w.ID, expectedVersion, w.Status, w.Notes, w.Version, w.UpdatedAt)
	if err != nil {
		return err
	}
	if err := checkSwapped(ctx, pgTx, res, "withdrawals", w.ID); err != nil {
		return err
	}
	if err := appendHistory(ctx, pgTx, recordWithdrawal, w.ID, &expectedVersion, w.History); err != nil {
		return err
	}
	return pgTx.Commit()
}

const customPaymentColumns = `id, payee_id, payee_name, created_by_id, created_by_name, description, amount_cents,
	status, version, created_at, updated_at`

func scanCustomPayment(row rowScanner) (domain.CustomPayment, error) {
	var p domain.CustomPayment
	if err := row.Scan(&p.ID, &p.PayeeID, &p.PayeeName, &p.CreatedByID, &p.CreatedByName, &p.Description,
		&p.AmountCents, &p.Status, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.CustomPayment{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) CreateCustomPayment(ctx context.Context, p domain.CustomPayment) error {
	if p.ID == "" {
		return store.ErrInvalidTransaction
	}
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO custom_payments (`+customPaymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, p.ID, p.PayeeID, p.PayeeName, p.CreatedByID, p.CreatedByName, p.Description, p.AmountCents, p.Status,
		p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	if err := appendHistory(ctx, pgTx, recordCustomPayment, p.ID, nil, p.History); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) GetCustomPayment(ctx context.Context, id string) (*domain.CustomPayment, error) {
	p, err := scanCustomPayment(s.db.QueryRowContext(ctx, `SELECT `+customPaymentColumns+` FROM custom_payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	histories, err := loadHistories(ctx, s.db, recordCustomPayment, []string{id})
	if err != nil {
		return nil, err
	}
	p.History = histories[id]
	return &p, nil
}

func (s *Store) ListCustomPayments(ctx context.Context, filter domain.RecordFilter) ([]domain.CustomPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customPaymentColumns+`
		FROM custom_payments
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR payee_id = $2)
		ORDER BY created_at DESC
	`, filter.Status, filter.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]domain.CustomPayment, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		p, err := scanCustomPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	histories, err := loadHistories(ctx, s.db, recordCustomPayment, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].History = histories[list[i].ID]
	}
	return list, nil
}

func (s *Store) UpdateCustomPayment(ctx context.Context, p domain.CustomPayment, expectedVersion int) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE custom_payments
		SET status = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $2
	`, p.ID, expectedVersion, p.Status, p.Version, p.UpdatedAt)
	if err != nil {
		return err
	}
	if err := checkSwapped(ctx, pgTx, res, "custom_payments", p.ID); err != nil {
		return err
	}
	if err := appendHistory(ctx, pgTx, recordCustomPayment, p.ID, &expectedVersion, p.History); err != nil {
		return err
	}
	return pgTx.Commit()
}

// checkSwapped turns a zero-row compare-and-swap update into ErrNotFound or
// ErrVersionConflict.
func checkSwapped(ctx context.Context, pgTx *sql.Tx, res sql.Result, table string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrVersionConflict
}

// appendHistory inserts the entries of history that are not stored yet. When
// expectedVersion is set the stored entry count must match it, so a caller
// can only extend the log it read.
func appendHistory(ctx context.Context, pgTx *sql.Tx, recordType string, recordID string, expectedVersion *int, history []domain.AuditEntry) error {
	var stored int
	if err := pgTx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM record_audit_entries WHERE record_type = $1 AND record_id = $2
	`, recordType, recordID).Scan(&stored); err != nil {
		return err
	}
	if expectedVersion != nil && stored != *expectedVersion {
		return store.ErrInvalidTransaction
	}
	if len(history) < stored {
		return store.ErrInvalidTransaction
	}

	for seq := stored; seq < len(history); seq++ {
		e := history[seq]
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO record_audit_entries (
				record_type, record_id, seq, at, actor_id, actor_name, actor_role, action, from_status, status, note
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, recordType, recordID, seq, e.At, e.ActorID, e.ActorName, e.ActorRole, e.Action, e.FromStatus, e.Status, e.Note); err != nil {
			if isUniqueViolation(err) {
				return store.ErrVersionConflict
			}
			return err
		}
	}
	return nil
}

func loadHistories(ctx context.Context, db *sql.DB, recordType string, ids []string) (map[string][]domain.AuditEntry, error) {
	histories := make(map[string][]domain.AuditEntry, len(ids))
	if len(ids) == 0 {
		return histories, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT record_id, at, actor_id, actor_name, actor_role, action, from_status, status, note
		FROM record_audit_entries
		WHERE record_type = $1 AND record_id = ANY($2)
		ORDER BY record_id, seq
	`, recordType, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var e domain.AuditEntry
		if err := rows.Scan(&id, &e.At, &e.ActorID, &e.ActorName, &e.ActorRole, &e.Action, &e.FromStatus, &e.Status, &e.Note); err != nil {
			return nil, err
		}
		e.At = e.At.UTC()
		histories[id] = append(histories[id], e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return histories, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorID, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.ID = strings.ToLower(strings.TrimSpace(user.ID))
	if user.ID == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, name, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.ID, user.Name, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, password, role, active, created_at
		FROM app_users
		WHERE id = $1
	`, strings.ToLower(strings.TrimSpace(id))).Scan(&user.ID, &user.Name, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, password, role, active, created_at
		FROM app_users
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Name, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id string, password string) error {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE id = $1
	`, id, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueStrings(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func marshalJSON[T any](values []T) ([]byte, error) {
	if values == nil {
		values = []T{}
	}
	return json.Marshal(values)
}

func marshalOptional[T any](value *T) (any, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
