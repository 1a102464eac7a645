package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/catalog"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name string
		v    int
		def  int
		max  int
		want int
	}{
		{"zero uses default", 0, 5, 10, 5},
		{"negative uses default", -3, 5, 10, 5},
		{"within range", 7, 5, 10, 7},
		{"above max clamps", 50, 5, 10, 10},
		{"exactly max", 10, 5, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampLimit(tt.v, tt.def, tt.max); got != tt.want {
				t.Errorf("clampLimit(%d, %d, %d) = %d, want %d", tt.v, tt.def, tt.max, got, tt.want)
			}
		})
	}
}

func TestNormalizeSort(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{catalog.SortLatest, catalog.SortLatest},
		{catalog.SortRating, catalog.SortRating},
		{catalog.SortPriceLowHigh, catalog.SortPriceLowHigh},
		{"", catalog.SortPopular},
		{"cheapest", catalog.SortPopular},
		{"price; DROP TABLE products", catalog.SortPopular},
	}
	for _, tt := range tests {
		if got := normalizeSort(tt.in); got != tt.want {
			t.Errorf("normalizeSort(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("short", 200); got != "short" {
		t.Errorf("truncateRunes(short) = %q", got)
	}
	long := strings.Repeat("日", 250)
	got := truncateRunes(long, 200)
	if n := len([]rune(got)); n != 200 {
		t.Errorf("truncated length = %d runes, want 200", n)
	}
}

func TestProductToolsRejectBadID(t *testing.T) {
	c := NewCatalog(nil, log.NewNop())
	ctx := context.Background()

	checks := map[string]func() Result{
		"get_product_details": func() Result { return c.ProductDetails(ctx, ProductIDInput{ProductID: 0}) },
		"get_product_specs":   func() Result { return c.ProductSpecs(ctx, ProductIDInput{ProductID: -1}) },
		"get_availability":    func() Result { return c.Availability(ctx, ProductIDInput{}) },
		"get_reviews_summary": func() Result { return c.ReviewsSummary(ctx, ProductIDInput{ProductID: 0}) },
		"get_similar_products": func() Result {
			return c.SimilarProducts(ctx, SimilarProductsInput{ProductID: 0})
		},
	}
	for name, call := range checks {
		res := call()
		if res.Status != StatusError || res.Error == nil || res.Error.ErrorType != ErrTypeInvalidArgument {
			t.Errorf("%s with non-positive id: got %+v, want invalid_argument", name, res)
		}
	}
}

func TestProductPayloadShape(t *testing.T) {
	p := catalog.Product{
		ID: 7, Name: "Aero 13", Slug: "aero-13", Price: 899,
		Stock: 3, CategoryName: "Electronics", RatingAvg: 4.5, RatingCount: 12,
	}
	payload := productPayload(p)

	if payload["currency"] != catalog.Currency {
		t.Errorf("currency = %v, want %q", payload["currency"], catalog.Currency)
	}
	if payload["stock_status"] != "low_stock" {
		t.Errorf("stock_status = %v, want low_stock", payload["stock_status"])
	}
	if payload["url"] != "/product/aero-13/" {
		t.Errorf("url = %v, want relative product path", payload["url"])
	}
	for _, forbidden := range []string{"cost", "supplier", "stock"} {
		if _, ok := payload[forbidden]; ok {
			t.Errorf("payload exposes internal field %q", forbidden)
		}
	}
}

func TestProductCards(t *testing.T) {
	products := []catalog.Product{
		{ID: 1, Name: "A", Slug: "a", Stock: 0},
		{ID: 2, Name: "B", Slug: "b", Stock: 9},
	}
	cards := productCards(products)
	if len(cards) != 2 {
		t.Fatalf("got %d cards, want 2", len(cards))
	}
	if cards[0].StockStatus != "out_of_stock" || cards[1].StockStatus != "in_stock" {
		t.Errorf("stock statuses = %q, %q", cards[0].StockStatus, cards[1].StockStatus)
	}
	if cards[0].URL != "/product/a/" {
		t.Errorf("card url = %q", cards[0].URL)
	}
}
