// Package catalog provides read-only access to the storefront product data.
//
// The assistant never writes to these tables; all mutation happens in the
// storefront itself. Queries only surface active products and approved
// reviews, and never expose internal-only columns (cost, supplier data).
package catalog

import (
	"errors"
	"time"
)

// ErrNotFound indicates the requested product or category does not exist
// or is not active.
var ErrNotFound = errors.New("catalog: not found")

// Sort orders accepted by Search.
const (
	SortPopular      = "popular"
	SortLatest       = "latest"
	SortPriceLowHigh = "price_low_high"
	SortPriceHighLow = "price_high_low"
	SortRating       = "rating"
)

// Currency is the storefront display currency.
const Currency = "SGD"

// Stock level below which a product is reported as low stock.
const LowStockThreshold = 5

// Product is a catalog product row joined with its category and review
// aggregates.
type Product struct {
	ID           int64
	Name         string
	Slug         string
	Description  string
	Price        float64
	Stock        int
	UnitsSold    int
	ImageURL     string
	CategoryName string
	CategorySlug string
	RatingAvg    float64
	RatingCount  int
	CreatedAt    time.Time
}

// ProductDetail extends Product with fields only loaded for single-product
// lookups.
type ProductDetail struct {
	Product
	Specifications map[string]any
	Digest         *ReviewDigest
}

// ReviewDigest is the precomputed review summary generated by the storefront's
// offline summarization job. GeneratedAt drives staleness checks.
type ReviewDigest struct {
	Summary     string
	Pros        []string
	Cons        []string
	Sentiment   string
	GeneratedAt time.Time
}

// Review is a single approved customer review.
type Review struct {
	Rating    int
	Title     string
	Comment   string
	CreatedAt time.Time
}

// Category is a browsable product category with its active product count.
type Category struct {
	ID           int64
	Name         string
	Slug         string
	Description  string
	ProductCount int
}

// SearchFilter holds the search criteria. Zero values mean "no constraint".
type SearchFilter struct {
	Query       string
	Category    string
	MinPrice    float64
	MaxPrice    float64
	MinRating   float64
	InStockOnly bool
	Sort        string
	Limit       int
}

// StockStatus maps a stock count to the storefront's display status.
func StockStatus(stock int) string {
	switch {
	case stock <= 0:
		return "out_of_stock"
	case stock <= LowStockThreshold:
		return "low_stock"
	default:
		return "in_stock"
	}
}

// ProductURL returns the relative storefront path for a product.
// Relative paths only: the assistant must never emit absolute URLs.
func ProductURL(slug string) string {
	return "/product/" + slug + "/"
}

// CategoryURL returns the relative storefront path for a category.
func CategoryURL(slug string) string {
	return "/category/" + slug + "/"
}
