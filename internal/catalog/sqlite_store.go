package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/plancart/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStore{db: db}, nil
}

func (s *SQLStore) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const planColumns = `id, category_id, title, description, monthly_price, annual_price, per_seat_price, limits, popular`

func (s *SQLStore) ListPlans(ctx context.Context, filter domain.PlanFilter) ([]domain.Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM plans
		WHERE ($1 = '' OR category_id = $2)
		  AND ($3 = 0 OR popular = 1)
		ORDER BY popular DESC, id
	`
	popularOnly := 0
	if filter.PopularOnly {
		popularOnly = 1
	}

	rows, err := s.db.QueryContext(ctx, query, filter.CategoryID, filter.CategoryID, popularOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for i := range plans {
		if plans[i].AddOns, err = s.addOns(ctx, plans[i].ID); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

func (s *SQLStore) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`

	p, err := scanPlan(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return domain.Plan{}, err
	}

	if p.AddOns, err = s.addOns(ctx, p.ID); err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

func (s *SQLStore) addOns(ctx context.Context, planID string) ([]domain.AddOn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, price FROM plan_add_ons WHERE plan_id = $1 ORDER BY position, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query add-ons: %w", err)
	}
	defer rows.Close()

	var addOns []domain.AddOn
	for rows.Next() {
		var a domain.AddOn
		if err := rows.Scan(&a.ID, &a.Title, &a.Price); err != nil {
			return nil, fmt.Errorf("failed to scan add-on: %w", err)
		}
		addOns = append(addOns, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return addOns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (domain.Plan, error) {
	var (
		p       domain.Plan
		perSeat decimal.NullDecimal
		limits  sql.NullString
		popular int
	)
	err := row.Scan(
		&p.ID,
		&p.CategoryID,
		&p.Title,
		&p.Description,
		&p.MonthlyPrice,
		&p.AnnualPrice,
		&perSeat,
		&limits,
		&popular,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plan{}, err
	}
	if err != nil {
		return domain.Plan{}, fmt.Errorf("failed to scan plan: %w", err)
	}
	if perSeat.Valid {
		p.PerSeatPrice = &perSeat.Decimal
	}
	if limits.Valid && limits.String != "" {
		if err := json.Unmarshal([]byte(limits.String), &p.Limits); err != nil {
			return domain.Plan{}, fmt.Errorf("unmarshal plan limits: %w", err)
		}
	}
	p.Popular = popular == 1
	return p, nil
}

func (s *SQLStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Title); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return categories, nil
}

func (s *SQLStore) GetCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	query := `
		SELECT code, type, amount, valid_from, valid_until, max_uses, uses
		FROM coupons
		WHERE code = $1 COLLATE NOCASE
	`
	var (
		c          domain.Coupon
		validFrom  sql.NullString
		validUntil sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, domain.NormalizeCode(code)).Scan(
		&c.Code,
		&c.Type,
		&c.Amount,
		&validFrom,
		&validUntil,
		&c.MaxUses,
		&c.Uses,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, ErrCouponNotFound
	}
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("failed to query coupon: %w", err)
	}

	if c.ValidFrom, err = parseTime(validFrom); err != nil {
		return domain.Coupon{}, err
	}
	if c.ValidUntil, err = parseTime(validUntil); err != nil {
		return domain.Coupon{}, err
	}
	return c, nil
}

// IncrementCouponUses claims a redemption in a single conditional update, so
// concurrent checkouts cannot both take the last use.
func (s *SQLStore) IncrementCouponUses(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE coupons SET uses = uses + 1
		 WHERE code = $1 COLLATE NOCASE AND (max_uses = 0 OR uses < max_uses)`, domain.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("failed to increment coupon uses: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetCoupon(ctx, code); err != nil {
		return err
	}
	return ErrCouponUsageLimitReached
}

func (s *SQLStore) DecrementCouponUses(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE coupons SET uses = uses - 1 WHERE code = $1 COLLATE NOCASE AND uses > 0`, domain.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("failed to decrement coupon uses: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		_, err := s.GetCoupon(ctx, code)
		return err
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse coupon time %q: %w", v.String, err)
	}
	return &t, nil
}
