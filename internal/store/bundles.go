package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bundleworks/bundle-api/internal/bundle"
)

// ErrNotFound indicates the requested bundle does not exist for the shop.
var ErrNotFound = errors.New("bundle not found")

const (
	bundleColumns = `id, shop, title, description, bundle_type, status, price,
		discount_type, discount_value, min_products, max_products,
		allow_duplicates, apply_to_same_product, starts_at, ends_at,
		created_at, updated_at`

	getBundleSQL = `SELECT ` + bundleColumns + ` FROM bundles WHERE id = $1 AND shop = $2`

	listBundlesSQL = `SELECT ` + bundleColumns + ` FROM bundles WHERE shop = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	countBundlesSQL = `SELECT count(*) FROM bundles WHERE shop = $1`

	insertBundleSQL = `INSERT INTO bundles (id, shop, title, description, bundle_type, status,
		price, discount_type, discount_value, min_products, max_products,
		allow_duplicates, apply_to_same_product, starts_at, ends_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	updateBundleSQL = `UPDATE bundles SET title=$3, description=$4, bundle_type=$5, status=$6,
		price=$7, discount_type=$8, discount_value=$9, min_products=$10, max_products=$11,
		allow_duplicates=$12, apply_to_same_product=$13, starts_at=$14, ends_at=$15,
		updated_at=now()
		WHERE id = $1 AND shop = $2`

	deleteBundleSQL = `DELETE FROM bundles WHERE id = $1 AND shop = $2`

	setStatusSQL = `UPDATE bundles SET status = $3, updated_at = now() WHERE id = $1 AND shop = $2`

	listItemsSQL = `SELECT id, product_id, variant_id, title, quantity, is_required,
		original_price, category_id, position
		FROM bundle_items WHERE bundle_id = $1 ORDER BY position, id`

	listCategoriesSQL = `SELECT id, name, min_select, max_select, position
		FROM bundle_categories WHERE bundle_id = $1 ORDER BY position, id`

	listTiersSQL = `SELECT id, name, price, product_count, allowed_products, position
		FROM bundle_tiers WHERE bundle_id = $1 ORDER BY position, id`

	listRulesSQL = `SELECT id, min_quantity, max_quantity, discount_type, discount_value, label, position
		FROM volume_rules WHERE bundle_id = $1 ORDER BY position, id`

	insertItemSQL = `INSERT INTO bundle_items (id, bundle_id, category_id, product_id, variant_id,
		title, quantity, is_required, original_price, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	insertCategorySQL = `INSERT INTO bundle_categories (id, bundle_id, name, min_select, max_select, position)
		VALUES ($1,$2,$3,$4,$5,$6)`

	insertTierSQL = `INSERT INTO bundle_tiers (id, bundle_id, name, price, product_count, allowed_products, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	insertRuleSQL = `INSERT INTO volume_rules (id, bundle_id, min_quantity, max_quantity,
		discount_type, discount_value, label, position)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
)

// Bundles persists bundle definitions and their nested rows.
type Bundles struct {
	Pool *pgxpool.Pool
}

// Get loads a bundle with all nested rows scoped to the shop.
func (s *Bundles) Get(ctx context.Context, shop, id string) (bundle.Bundle, error) {
	rows, err := s.Pool.Query(ctx, getBundleSQL, id, shop)
	if err != nil {
		return bundle.Bundle{}, fmt.Errorf("get bundle %q: %w", id, err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBundle)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bundle.Bundle{}, ErrNotFound
		}
		return bundle.Bundle{}, fmt.Errorf("get bundle %q: %w", id, err)
	}
	if err := s.loadChildren(ctx, &b); err != nil {
		return bundle.Bundle{}, err
	}
	return b, nil
}

// List returns a page of bundles (without nested rows) and the total count.
func (s *Bundles) List(ctx context.Context, shop string, limit, offset int) ([]bundle.Bundle, int, error) {
	rows, err := s.Pool.Query(ctx, listBundlesSQL, shop, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bundles: %w", err)
	}
	bundles, err := pgx.CollectRows(rows, scanBundle)
	if err != nil {
		return nil, 0, fmt.Errorf("list bundles: %w", err)
	}
	var total int
	if err := s.Pool.QueryRow(ctx, countBundlesSQL, shop).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bundles: %w", err)
	}
	return bundles, total, nil
}

// Create inserts a bundle and its nested rows, assigning fresh identifiers.
func (s *Bundles) Create(ctx context.Context, b bundle.Bundle) (bundle.Bundle, error) {
	b.ID = uuid.NewString()
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertBundleSQL, bundleArgs(b)...); err != nil {
			return fmt.Errorf("insert bundle: %w", err)
		}
		return insertChildren(ctx, tx, &b)
	})
	if err != nil {
		return bundle.Bundle{}, err
	}
	return s.Get(ctx, b.Shop, b.ID)
}

// Update rewrites the bundle row and replaces all nested rows.
func (s *Bundles) Update(ctx context.Context, b bundle.Bundle) (bundle.Bundle, error) {
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateBundleSQL, bundleArgs(b)...)
		if err != nil {
			return fmt.Errorf("update bundle: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		for _, table := range []string{"bundle_items", "bundle_tiers", "volume_rules", "bundle_categories"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE bundle_id = $1`, b.ID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return insertChildren(ctx, tx, &b)
	})
	if err != nil {
		return bundle.Bundle{}, err
	}
	return s.Get(ctx, b.Shop, b.ID)
}

// Delete removes a bundle; nested rows cascade.
func (s *Bundles) Delete(ctx context.Context, shop, id string) error {
	tag, err := s.Pool.Exec(ctx, deleteBundleSQL, id, shop)
	if err != nil {
		return fmt.Errorf("delete bundle %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus transitions the bundle lifecycle state.
func (s *Bundles) SetStatus(ctx context.Context, shop, id string, status bundle.Status) error {
	tag, err := s.Pool.Exec(ctx, setStatusSQL, id, shop, status)
	if err != nil {
		return fmt.Errorf("set bundle status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Duplicate copies an existing bundle into a fresh draft.
func (s *Bundles) Duplicate(ctx context.Context, shop, id string) (bundle.Bundle, error) {
	src, err := s.Get(ctx, shop, id)
	if err != nil {
		return bundle.Bundle{}, err
	}
	src.Title = src.Title + " (copy)"
	src.Status = bundle.StatusDraft
	return s.Create(ctx, src)
}

func (s *Bundles) loadChildren(ctx context.Context, b *bundle.Bundle) error {
	rows, err := s.Pool.Query(ctx, listItemsSQL, b.ID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	if b.Items, err = pgx.CollectRows(rows, scanItem); err != nil {
		return fmt.Errorf("load items: %w", err)
	}

	rows, err = s.Pool.Query(ctx, listCategoriesSQL, b.ID)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	if b.Categories, err = pgx.CollectRows(rows, scanCategory); err != nil {
		return fmt.Errorf("load categories: %w", err)
	}

	rows, err = s.Pool.Query(ctx, listTiersSQL, b.ID)
	if err != nil {
		return fmt.Errorf("load tiers: %w", err)
	}
	if b.Tiers, err = pgx.CollectRows(rows, scanTier); err != nil {
		return fmt.Errorf("load tiers: %w", err)
	}

	rows, err = s.Pool.Query(ctx, listRulesSQL, b.ID)
	if err != nil {
		return fmt.Errorf("load volume rules: %w", err)
	}
	if b.VolumeRules, err = pgx.CollectRows(rows, scanRule); err != nil {
		return fmt.Errorf("load volume rules: %w", err)
	}
	return nil
}

func insertChildren(ctx context.Context, tx pgx.Tx, b *bundle.Bundle) error {
	// Categories first so item rows can reference their fresh ids.
	categoryIDs := make(map[string]string, len(b.Categories))
	for i := range b.Categories {
		cat := &b.Categories[i]
		newID := uuid.NewString()
		if cat.ID != "" {
			categoryIDs[cat.ID] = newID
		}
		cat.ID = newID
		if _, err := tx.Exec(ctx, insertCategorySQL, cat.ID, b.ID, cat.Name, cat.MinSelect, cat.MaxSelect, i); err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
	}
	for i := range b.Items {
		it := &b.Items[i]
		it.ID = uuid.NewString()
		var catID *string
		if it.CategoryID != nil {
			if mapped, ok := categoryIDs[*it.CategoryID]; ok {
				catID = &mapped
				it.CategoryID = &mapped
			} else {
				catID = it.CategoryID
			}
		}
		if _, err := tx.Exec(ctx, insertItemSQL, it.ID, b.ID, catID, it.ProductID, it.VariantID,
			it.Title, it.Quantity, it.IsRequired, it.OriginalPrice, i); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	for i := range b.Tiers {
		tier := &b.Tiers[i]
		tier.ID = uuid.NewString()
		allowed := tier.AllowedProducts
		if allowed == nil {
			allowed = []string{}
		}
		if _, err := tx.Exec(ctx, insertTierSQL, tier.ID, b.ID, tier.Name, tier.Price, tier.ProductCount, allowed, i); err != nil {
			return fmt.Errorf("insert tier: %w", err)
		}
	}
	for i := range b.VolumeRules {
		rule := &b.VolumeRules[i]
		rule.ID = uuid.NewString()
		if _, err := tx.Exec(ctx, insertRuleSQL, rule.ID, b.ID, rule.MinQuantity, rule.MaxQuantity,
			rule.DiscountType, rule.DiscountValue, rule.Label, i); err != nil {
			return fmt.Errorf("insert volume rule: %w", err)
		}
	}
	return nil
}

func bundleArgs(b bundle.Bundle) []any {
	var discountType *string
	if b.DiscountType != nil {
		dt := string(*b.DiscountType)
		discountType = &dt
	}
	return []any{
		b.ID, b.Shop, b.Title, b.Description, string(b.Type), string(b.Status),
		b.Price, discountType, b.DiscountValue, b.MinProducts, b.MaxProducts,
		b.AllowDuplicates, b.ApplyToSameProduct, b.StartsAt, b.EndsAt,
	}
}

func scanBundle(row pgx.CollectableRow) (bundle.Bundle, error) {
	var (
		b            bundle.Bundle
		bundleType   string
		status       string
		discountType *string
	)
	err := row.Scan(
		&b.ID, &b.Shop, &b.Title, &b.Description, &bundleType, &status, &b.Price,
		&discountType, &b.DiscountValue, &b.MinProducts, &b.MaxProducts,
		&b.AllowDuplicates, &b.ApplyToSameProduct, &b.StartsAt, &b.EndsAt,
		&b.CreatedAt, &b.UpdatedAt,
	)
	b.Type = bundle.Type(bundleType)
	b.Status = bundle.Status(status)
	if discountType != nil {
		dt := bundle.DiscountType(*discountType)
		b.DiscountType = &dt
	}
	return b, err
}

func scanItem(row pgx.CollectableRow) (bundle.Item, error) {
	var it bundle.Item
	err := row.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.Title, &it.Quantity,
		&it.IsRequired, &it.OriginalPrice, &it.CategoryID, &it.Position)
	return it, err
}

func scanCategory(row pgx.CollectableRow) (bundle.Category, error) {
	var cat bundle.Category
	err := row.Scan(&cat.ID, &cat.Name, &cat.MinSelect, &cat.MaxSelect, &cat.Position)
	return cat, err
}

func scanTier(row pgx.CollectableRow) (bundle.Tier, error) {
	var tier bundle.Tier
	err := row.Scan(&tier.ID, &tier.Name, &tier.Price, &tier.ProductCount, &tier.AllowedProducts, &tier.Position)
	return tier, err
}

func scanRule(row pgx.CollectableRow) (bundle.VolumeRule, error) {
	var rule bundle.VolumeRule
	err := row.Scan(&rule.ID, &rule.MinQuantity, &rule.MaxQuantity, &rule.DiscountType,
		&rule.DiscountValue, &rule.Label, &rule.Position)
	return rule, err
}

// StatRow is a single day of rolled-up storefront activity for a bundle.
type StatRow struct {
	BundleID string          `json:"bundleId"`
	Title    string          `json:"title"`
	Day      time.Time       `json:"day"`
	Views    int64           `json:"views"`
	Adds     int64           `json:"adds"`
	Revenue  decimal.Decimal `json:"revenue"`
}

const (
	upsertStatSQL = `INSERT INTO bundle_stats (bundle_id, day, views, adds, revenue)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bundle_id, day)
		DO UPDATE SET views = bundle_stats.views + EXCLUDED.views,
		              adds = bundle_stats.adds + EXCLUDED.adds,
		              revenue = bundle_stats.revenue + EXCLUDED.revenue`

	statsRangeSQL = `SELECT s.bundle_id, b.title, s.day, s.views, s.adds, s.revenue
		FROM bundle_stats s
		JOIN bundles b ON b.id = s.bundle_id
		WHERE b.shop = $1 AND s.day >= $2 AND s.day < $3
		ORDER BY s.day, b.title`

	statsOverviewSQL = `SELECT coalesce(sum(s.views), 0), coalesce(sum(s.adds), 0), coalesce(sum(s.revenue), 0)
		FROM bundle_stats s
		JOIN bundles b ON b.id = s.bundle_id
		WHERE b.shop = $1 AND s.day >= $2 AND s.day < $3`
)

// BumpStats accumulates a day's deltas for a bundle.
func (s *Bundles) BumpStats(ctx context.Context, bundleID string, day time.Time, views, adds int64, revenue decimal.Decimal) error {
	_, err := s.Pool.Exec(ctx, upsertStatSQL, bundleID, day, views, adds, revenue)
	if err != nil {
		return fmt.Errorf("bump stats for %q: %w", bundleID, err)
	}
	return nil
}

// StatsRange returns per-bundle daily stats between from (inclusive) and to (exclusive).
func (s *Bundles) StatsRange(ctx context.Context, shop string, from, to time.Time) ([]StatRow, error) {
	rows, err := s.Pool.Query(ctx, statsRangeSQL, shop, from, to)
	if err != nil {
		return nil, fmt.Errorf("stats range: %w", err)
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatRow, error) {
		var sr StatRow
		err := row.Scan(&sr.BundleID, &sr.Title, &sr.Day, &sr.Views, &sr.Adds, &sr.Revenue)
		return sr, err
	})
	if err != nil {
		return nil, fmt.Errorf("stats range: %w", err)
	}
	return stats, nil
}

// Overview aggregates totals across all bundles of a shop for the window.
func (s *Bundles) Overview(ctx context.Context, shop string, from, to time.Time) (views, adds int64, revenue decimal.Decimal, err error) {
	err = s.Pool.QueryRow(ctx, statsOverviewSQL, shop, from, to).Scan(&views, &adds, &revenue)
	if err != nil {
		err = fmt.Errorf("stats overview: %w", err)
	}
	return views, adds, revenue, err
}
