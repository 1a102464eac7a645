package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgxpool.Pool the store needs.
// Defined by the consumer so tests can substitute a transaction or mock.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store executes read-only catalog queries against PostgreSQL.
// Safe for concurrent use.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// NewStore creates a catalog store backed by the given querier.
func NewStore(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// NewStoreFromPool is a convenience constructor for production wiring.
func NewStoreFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return NewStore(pool, logger)
}

// productColumns is the summary projection shared by all list queries.
// Review aggregates come from approved reviews only.
const productColumns = `
	p.id, p.name, p.slug, p.price::float8, p.stock, p.units_sold, p.image_url,
	c.name, c.slug,
	COALESCE(AVG(r.rating), 0)::float8, COUNT(r.id), p.created_at`

const productFromClause = `
	FROM products p
	JOIN categories c ON c.id = p.category_id
	LEFT JOIN reviews r ON r.product_id = p.id AND r.is_approved`

// Search returns products matching the filter, at most filter.Limit rows.
func (s *Store) Search(ctx context.Context, filter SearchFilter) ([]Product, error) {
	var (
		where  = []string{"p.is_active", "c.is_active"}
		having []string
		args   []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		p := arg("%" + q + "%")
		where = append(where, fmt.Sprintf("(p.name ILIKE %s OR p.description ILIKE %s)", p, p))
	}
	if filter.Category != "" {
		where = append(where, "c.slug = "+arg(filter.Category))
	}
	if filter.MinPrice > 0 {
		where = append(where, "p.price >= "+arg(filter.MinPrice))
	}
	if filter.MaxPrice > 0 {
		where = append(where, "p.price <= "+arg(filter.MaxPrice))
	}
	if filter.InStockOnly {
		where = append(where, "p.stock > 0")
	}
	if filter.MinRating > 0 {
		having = append(having, "AVG(r.rating) >= "+arg(filter.MinRating))
	}

	query := "SELECT " + productColumns + productFromClause +
		" WHERE " + strings.Join(where, " AND ") +
		" GROUP BY p.id, c.name, c.slug"
	if len(having) > 0 {
		query += " HAVING " + strings.Join(having, " AND ")
	}
	query += " ORDER BY " + orderClause(filter.Sort) + " LIMIT " + arg(filter.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	defer rows.Close()

	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("product search", "query", filter.Query, "category", filter.Category, "results", len(products))
	return products, nil
}

// orderClause maps a sort name to a SQL ORDER BY expression.
// Unknown values fall back to popularity.
func orderClause(sort string) string {
	switch sort {
	case SortLatest:
		return "p.created_at DESC"
	case SortPriceLowHigh:
		return "p.price ASC"
	case SortPriceHighLow:
		return "p.price DESC"
	case SortRating:
		return "COALESCE(AVG(r.rating), 0) DESC, p.units_sold DESC"
	default: // SortPopular
		return "p.units_sold DESC"
	}
}

// ProductByID returns full detail for a single active product.
func (s *Store) ProductByID(ctx context.Context, id int64) (*ProductDetail, error) {
	query := `SELECT ` + productColumns + `,
		p.description, p.specifications,
		p.review_summary, p.review_summary_pros, p.review_summary_cons,
		p.review_summary_sentiment, p.review_summary_generated_at` +
		productFromClause + `
		WHERE p.id = $1 AND p.is_active
		GROUP BY p.id, c.name, c.slug`

	var (
		d                      ProductDetail
		specsJSON              []byte
		summary, sentiment     *string
		prosJSON, consJSON     []byte
		summaryGeneratedAt     *time.Time
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.Name, &d.Slug, &d.Price, &d.Stock, &d.UnitsSold, &d.ImageURL,
		&d.CategoryName, &d.CategorySlug,
		&d.RatingAvg, &d.RatingCount, &d.CreatedAt,
		&d.Description, &specsJSON,
		&summary, &prosJSON, &consJSON, &sentiment, &summaryGeneratedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading product %d: %w", id, err)
	}

	if len(specsJSON) > 0 {
		if err := json.Unmarshal(specsJSON, &d.Specifications); err != nil {
			s.logger.Warn("malformed specifications json", "product_id", id, "error", err)
		}
	}
	if summary != nil && *summary != "" {
		digest := &ReviewDigest{Summary: *summary}
		if sentiment != nil {
			digest.Sentiment = *sentiment
		}
		if summaryGeneratedAt != nil {
			digest.GeneratedAt = *summaryGeneratedAt
		}
		if len(prosJSON) > 0 {
			_ = json.Unmarshal(prosJSON, &digest.Pros)
		}
		if len(consJSON) > 0 {
			_ = json.Unmarshal(consJSON, &digest.Cons)
		}
		d.Digest = digest
	}
	return &d, nil
}

// RatingBreakdown returns the approved review count per star rating (1..5).
func (s *Store) RatingBreakdown(ctx context.Context, productID int64) (map[int]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT rating, COUNT(*) FROM reviews
		 WHERE product_id = $1 AND is_approved
		 GROUP BY rating`, productID)
	if err != nil {
		return nil, fmt.Errorf("loading rating breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[int]int, 5)
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, fmt.Errorf("scanning rating row: %w", err)
		}
		breakdown[rating] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rating rows: %w", err)
	}
	return breakdown, nil
}

// RecentReviews returns the newest approved reviews for a product.
func (s *Store) RecentReviews(ctx context.Context, productID int64, limit int) ([]Review, error) {
	rows, err := s.db.Query(ctx,
		`SELECT rating, title, comment, created_at FROM reviews
		 WHERE product_id = $1 AND is_approved
		 ORDER BY created_at DESC
		 LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.Rating, &r.Title, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning review row: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating review rows: %w", err)
	}
	return reviews, nil
}

// Similar returns active products in the same category within a ±30% price
// band of the given product, ordered by popularity.
func (s *Store) Similar(ctx context.Context, productID int64, limit int) ([]Product, error) {
	query := "SELECT " + productColumns + productFromClause + `
		WHERE p.is_active AND c.is_active
		  AND p.id <> $1
		  AND p.category_id = (SELECT category_id FROM products WHERE id = $1)
		  AND p.price BETWEEN
		      (SELECT price * 0.7 FROM products WHERE id = $1) AND
		      (SELECT price * 1.3 FROM products WHERE id = $1)
		GROUP BY p.id, c.name, c.slug
		ORDER BY p.units_sold DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("finding similar products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Categories returns all active categories with their active product counts.
func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.name, c.slug, c.description, COUNT(p.id)
		 FROM categories c
		 LEFT JOIN products p ON p.category_id = c.id AND p.is_active
		 WHERE c.is_active
		 GROUP BY c.id
		 ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.ProductCount); err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category rows: %w", err)
	}
	return categories, nil
}

// TopSelling returns the best-selling active products.
func (s *Store) TopSelling(ctx context.Context, limit int) ([]Product, error) {
	query := "SELECT " + productColumns + productFromClause + `
		WHERE p.is_active AND c.is_active AND p.units_sold > 0
		GROUP BY p.id, c.name, c.slug
		ORDER BY p.units_sold DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("loading top selling products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// Availability returns the current stock level for an active product.
func (s *Store) Availability(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := s.db.QueryRow(ctx,
		`SELECT stock FROM products WHERE id = $1 AND is_active`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("loading availability for product %d: %w", productID, err)
	}
	return stock, nil
}

// scanProducts reads summary rows produced by the productColumns projection.
func scanProducts(rows pgx.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Slug, &p.Price, &p.Stock, &p.UnitsSold, &p.ImageURL,
			&p.CategoryName, &p.CategorySlug,
			&p.RatingAvg, &p.RatingCount, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating product rows: %w", err)
	}
	return products, nil
}
