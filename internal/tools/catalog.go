package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/catalog"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
)

// Argument bounds. The model routinely over-asks; every numeric input is
// clamped rather than rejected so one sloppy argument does not cost a whole
// iteration.
const (
	defaultSearchLimit  = 5
	maxSearchLimit      = 10
	defaultSimilarLimit = 3
	maxSimilarLimit     = 5
	maxTopSellingLimit  = 10
	maxQueryRunes       = 200
	maxCategoryRunes    = 100
	reviewExcerptCount  = 3
	digestMaxAge        = 7 * 24 * time.Hour
)

// Catalog is the read-only catalog toolset. Every tool wraps a single store
// query and returns a Result the model can ground its answer on.
type Catalog struct {
	store  *catalog.Store
	logger log.Logger
	now    func() time.Time
}

// NewCatalog creates the toolset around a catalog store.
func NewCatalog(store *catalog.Store, logger log.Logger) *Catalog {
	return &Catalog{store: store, logger: logger, now: time.Now}
}

// RegisterAll registers the full toolset. This is the complete surface the
// model can reach; there is no cart or checkout tool on purpose.
func RegisterAll(r *Registry, c *Catalog) error {
	regs := []error{
		Register(r, "search_products",
			"Search the product catalog by keyword with optional category, price, rating, and stock filters. Returns matching products with price, rating, and stock status.",
			c.SearchProducts),
		Register(r, "get_product_details",
			"Get full details for one product by its numeric ID: description, price, stock, rating, and category.",
			c.ProductDetails),
		Register(r, "get_product_specs",
			"Get the technical specifications for one product by its numeric ID.",
			c.ProductSpecs),
		Register(r, "get_availability",
			"Check current stock for one product by its numeric ID.",
			c.Availability),
		Register(r, "get_reviews_summary",
			"Get a summary of customer reviews for one product: average rating, rating distribution, and representative review excerpts.",
			c.ReviewsSummary),
		Register(r, "get_similar_products",
			"Find products similar to a given product: same category, comparable price.",
			c.SimilarProducts),
		Register(r, "get_categories",
			"List all browsable product categories with their product counts.",
			c.Categories),
		Register(r, "get_top_selling_products",
			"Get the store's current best-selling products.",
			c.TopSelling),
	}
	return errors.Join(regs...)
}

// SearchProductsInput are the arguments for search_products.
type SearchProductsInput struct {
	Query       string  `json:"query,omitempty" jsonschema_description:"Keywords to match against product names and descriptions"`
	Category    string  `json:"category,omitempty" jsonschema_description:"Category slug to restrict the search to"`
	MinPrice    float64 `json:"min_price,omitempty" jsonschema_description:"Minimum price in SGD"`
	MaxPrice    float64 `json:"max_price,omitempty" jsonschema_description:"Maximum price in SGD"`
	MinRating   float64 `json:"min_rating,omitempty" jsonschema_description:"Minimum average review rating, 1 to 5"`
	InStockOnly bool    `json:"in_stock_only,omitempty" jsonschema_description:"Only return products currently in stock"`
	Sort        string  `json:"sort,omitempty" jsonschema_description:"Sort order: popular, latest, price_low_high, price_high_low, or rating"`
	Limit       int     `json:"limit,omitempty" jsonschema_description:"Maximum number of results, 1 to 10"`
}

// SearchProducts implements search_products.
func (c *Catalog) SearchProducts(ctx context.Context, in SearchProductsInput) Result {
	filter := catalog.SearchFilter{
		Query:       truncateRunes(in.Query, maxQueryRunes),
		Category:    truncateRunes(in.Category, maxCategoryRunes),
		InStockOnly: in.InStockOnly,
		Sort:        normalizeSort(in.Sort),
		Limit:       clampLimit(in.Limit, defaultSearchLimit, maxSearchLimit),
	}
	if in.MinPrice > 0 {
		filter.MinPrice = in.MinPrice
	}
	if in.MaxPrice > 0 {
		filter.MaxPrice = in.MaxPrice
	}
	if in.MinRating > 0 {
		filter.MinRating = min(max(in.MinRating, 1), 5)
	}

	products, err := c.store.Search(ctx, filter)
	if err != nil {
		return c.unavailable("search_products", err)
	}

	res := success(map[string]any{
		"count":    len(products),
		"products": productPayloads(products),
	})
	res.Cards = productCards(products)
	return res
}

// ProductIDInput is the shared single-product argument shape.
type ProductIDInput struct {
	ProductID int64 `json:"product_id" jsonschema_description:"Numeric product ID"`
}

// ProductDetails implements get_product_details.
func (c *Catalog) ProductDetails(ctx context.Context, in ProductIDInput) Result {
	if in.ProductID <= 0 {
		return failure(ErrTypeInvalidArgument, "product_id must be a positive integer")
	}
	detail, err := c.store.ProductByID(ctx, in.ProductID)
	if errors.Is(err, catalog.ErrNotFound) {
		return failure(ErrTypeNotFound, fmt.Sprintf("product %d does not exist", in.ProductID))
	}
	if err != nil {
		return c.unavailable("get_product_details", err)
	}

	payload := productPayload(detail.Product)
	payload["description"] = detail.Description
	res := success(map[string]any{"product": payload})
	res.Cards = productCards([]catalog.Product{detail.Product})
	return res
}

// ProductSpecs implements get_product_specs.
func (c *Catalog) ProductSpecs(ctx context.Context, in ProductIDInput) Result {
	if in.ProductID <= 0 {
		return failure(ErrTypeInvalidArgument, "product_id must be a positive integer")
	}
	detail, err := c.store.ProductByID(ctx, in.ProductID)
	if errors.Is(err, catalog.ErrNotFound) {
		return failure(ErrTypeNotFound, fmt.Sprintf("product %d does not exist", in.ProductID))
	}
	if err != nil {
		return c.unavailable("get_product_specs", err)
	}

	specs := detail.Specifications
	if specs == nil {
		specs = map[string]any{}
	}
	return success(map[string]any{
		"product_id":     detail.ID,
		"name":           detail.Name,
		"specifications": specs,
	})
}

// Availability implements get_availability.
func (c *Catalog) Availability(ctx context.Context, in ProductIDInput) Result {
	if in.ProductID <= 0 {
		return failure(ErrTypeInvalidArgument, "product_id must be a positive integer")
	}
	stock, err := c.store.Availability(ctx, in.ProductID)
	if errors.Is(err, catalog.ErrNotFound) {
		return failure(ErrTypeNotFound, fmt.Sprintf("product %d does not exist", in.ProductID))
	}
	if err != nil {
		return c.unavailable("get_availability", err)
	}
	return success(map[string]any{
		"product_id":   in.ProductID,
		"stock":        stock,
		"stock_status": catalog.StockStatus(stock),
	})
}

// ReviewsSummary implements get_reviews_summary. A precomputed digest is used
// when it is fresh; otherwise the summary is assembled live from the rating
// breakdown and the newest review excerpts.
func (c *Catalog) ReviewsSummary(ctx context.Context, in ProductIDInput) Result {
	if in.ProductID <= 0 {
		return failure(ErrTypeInvalidArgument, "product_id must be a positive integer")
	}
	detail, err := c.store.ProductByID(ctx, in.ProductID)
	if errors.Is(err, catalog.ErrNotFound) {
		return failure(ErrTypeNotFound, fmt.Sprintf("product %d does not exist", in.ProductID))
	}
	if err != nil {
		return c.unavailable("get_reviews_summary", err)
	}

	data := map[string]any{
		"product_id":   detail.ID,
		"name":         detail.Name,
		"rating_avg":   detail.RatingAvg,
		"review_count": detail.RatingCount,
	}

	if d := detail.Digest; d != nil && c.now().Sub(d.GeneratedAt) < digestMaxAge {
		data["summary"] = d.Summary
		data["pros"] = d.Pros
		data["cons"] = d.Cons
		data["sentiment"] = d.Sentiment
		return success(data)
	}

	breakdown, err := c.store.RatingBreakdown(ctx, in.ProductID)
	if err != nil {
		return c.unavailable("get_reviews_summary", err)
	}
	recent, err := c.store.RecentReviews(ctx, in.ProductID, reviewExcerptCount)
	if err != nil {
		return c.unavailable("get_reviews_summary", err)
	}

	dist := make(map[string]int, 5)
	for stars, count := range breakdown {
		dist[fmt.Sprintf("%d", stars)] = count
	}
	excerpts := make([]map[string]any, 0, len(recent))
	for _, r := range recent {
		excerpts = append(excerpts, map[string]any{
			"rating":  r.Rating,
			"title":   r.Title,
			"comment": r.Comment,
		})
	}
	data["rating_distribution"] = dist
	data["recent_reviews"] = excerpts
	return success(data)
}

// SimilarProductsInput are the arguments for get_similar_products.
type SimilarProductsInput struct {
	ProductID int64 `json:"product_id" jsonschema_description:"Numeric product ID to find alternatives for"`
	Limit     int   `json:"limit,omitempty" jsonschema_description:"Maximum number of results, 1 to 5"`
}

// SimilarProducts implements get_similar_products.
func (c *Catalog) SimilarProducts(ctx context.Context, in SimilarProductsInput) Result {
	if in.ProductID <= 0 {
		return failure(ErrTypeInvalidArgument, "product_id must be a positive integer")
	}
	limit := clampLimit(in.Limit, defaultSimilarLimit, maxSimilarLimit)
	products, err := c.store.Similar(ctx, in.ProductID, limit)
	if err != nil {
		return c.unavailable("get_similar_products", err)
	}
	res := success(map[string]any{
		"count":    len(products),
		"products": productPayloads(products),
	})
	res.Cards = productCards(products)
	return res
}

// CategoriesInput is the empty argument shape for get_categories.
type CategoriesInput struct{}

// Categories implements get_categories.
func (c *Catalog) Categories(ctx context.Context, _ CategoriesInput) Result {
	categories, err := c.store.Categories(ctx)
	if err != nil {
		return c.unavailable("get_categories", err)
	}
	payloads := make([]map[string]any, 0, len(categories))
	for _, cat := range categories {
		payloads = append(payloads, map[string]any{
			"name":          cat.Name,
			"slug":          cat.Slug,
			"description":   cat.Description,
			"product_count": cat.ProductCount,
			"url":           catalog.CategoryURL(cat.Slug),
		})
	}
	return success(map[string]any{
		"count":      len(payloads),
		"categories": payloads,
	})
}

// TopSellingInput are the arguments for get_top_selling_products.
type TopSellingInput struct {
	Limit int `json:"limit,omitempty" jsonschema_description:"Maximum number of results, 1 to 10"`
}

// TopSelling implements get_top_selling_products.
func (c *Catalog) TopSelling(ctx context.Context, in TopSellingInput) Result {
	limit := clampLimit(in.Limit, maxTopSellingLimit, maxTopSellingLimit)
	products, err := c.store.TopSelling(ctx, limit)
	if err != nil {
		return c.unavailable("get_top_selling_products", err)
	}
	res := success(map[string]any{
		"count":    len(products),
		"products": productPayloads(products),
	})
	res.Cards = productCards(products)
	return res
}

func (c *Catalog) unavailable(tool string, err error) Result {
	c.logger.Error("catalog lookup failed", "tool", tool, "error", err)
	return failure(ErrTypeUnavailable, "the catalog is temporarily unavailable")
}

// productPayload is the per-product map serialized into the model
// conversation. Internal-only columns never appear here.
func productPayload(p catalog.Product) map[string]any {
	return map[string]any{
		"id":           p.ID,
		"name":         p.Name,
		"price":        p.Price,
		"currency":     catalog.Currency,
		"rating":       p.RatingAvg,
		"review_count": p.RatingCount,
		"stock_status": catalog.StockStatus(p.Stock),
		"category":     p.CategoryName,
		"url":          catalog.ProductURL(p.Slug),
	}
}

func productPayloads(products []catalog.Product) []map[string]any {
	payloads := make([]map[string]any, 0, len(products))
	for _, p := range products {
		payloads = append(payloads, productPayload(p))
	}
	return payloads
}

func productCards(products []catalog.Product) []Card {
	cards := make([]Card, 0, len(products))
	for _, p := range products {
		cards = append(cards, Card{
			ID:          p.ID,
			Title:       p.Name,
			Price:       p.Price,
			Currency:    catalog.Currency,
			ImageURL:    p.ImageURL,
			Rating:      p.RatingAvg,
			ReviewCount: p.RatingCount,
			StockStatus: catalog.StockStatus(p.Stock),
			URL:         catalog.ProductURL(p.Slug),
			Category:    p.CategoryName,
		})
	}
	return cards
}

func clampLimit(v, def, max int) int {
	switch {
	case v <= 0:
		return def
	case v > max:
		return max
	default:
		return v
	}
}

func normalizeSort(sort string) string {
	switch sort {
	case catalog.SortPopular, catalog.SortLatest, catalog.SortPriceLowHigh,
		catalog.SortPriceHighLow, catalog.SortRating:
		return sort
	default:
		return catalog.SortPopular
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
