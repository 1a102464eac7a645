package assistant

import (
	"fmt"
	"strings"
)

// Page types reported by the storefront frontend.
const (
	PageHome          = "home"
	PageProductDetail = "product_detail"
	PageCategory      = "category"
	PageSearch        = "search"
	PageCart          = "cart"
)

// PageContext is the raw page context field of a chat request.
type PageContext struct {
	PageType    string `json:"pageType"`
	ProductID   int64  `json:"productId,omitempty"`
	Category    string `json:"category,omitempty"`
	SearchQuery string `json:"searchQuery,omitempty"`
	CartCount   int    `json:"cartCount,omitempty"`
}

// ExtractContext derives a context snapshot from the request's page context.
// It is a pure function: no I/O, no persistence. Unknown page types are kept
// as-is; the model treats them as opaque labels.
func ExtractContext(page PageContext) ContextSnapshot {
	snap := ContextSnapshot{
		PageType:      strings.TrimSpace(page.PageType),
		CartItemCount: page.CartCount,
	}
	if snap.PageType == "" {
		snap.PageType = PageHome
	}
	if snap.CartItemCount < 0 {
		snap.CartItemCount = 0
	}
	if page.ProductID > 0 {
		snap.ProductID = page.ProductID
	}
	snap.CategorySlug = strings.TrimSpace(page.Category)
	snap.SearchQuery = strings.TrimSpace(page.SearchQuery)
	return snap
}

// FactBlock renders the snapshot as the fact block prepended to the system
// prompt. The model uses it to resolve references like "this product".
func (s ContextSnapshot) FactBlock() string {
	var b strings.Builder
	b.WriteString("CURRENT PAGE CONTEXT:\n")
	fmt.Fprintf(&b, "- Page type: %s\n", s.PageType)
	if s.ProductID > 0 {
		fmt.Fprintf(&b, "- Viewing product ID: %d (use get_product_details with this ID when the user says \"this product\")\n", s.ProductID)
	}
	if s.CategorySlug != "" {
		fmt.Fprintf(&b, "- Browsing category: %s\n", s.CategorySlug)
	}
	if s.SearchQuery != "" {
		fmt.Fprintf(&b, "- Active search query: %q\n", s.SearchQuery)
	}
	fmt.Fprintf(&b, "- Items in cart: %d\n", s.CartItemCount)
	return b.String()
}

// Suggestions returns up to three follow-up prompts tailored to the page the
// user is on. Shown as tappable chips in the chat widget.
func Suggestions(snap ContextSnapshot) []string {
	switch snap.PageType {
	case PageProductDetail:
		return []string{
			"What do the reviews say?",
			"Show me similar products",
			"Is this in stock?",
		}
	case PageCategory:
		return []string{
			"What's popular in this category?",
			"Show me the cheapest options",
			"Which one has the best reviews?",
		}
	case PageSearch:
		return []string{
			"Sort these by price",
			"Only show items in stock",
			"Which of these is best rated?",
		}
	case PageCart:
		return []string{
			"Show me popular products",
			"Any accessories to go with my cart?",
			"Browse categories",
		}
	default:
		return []string{
			"Show me popular products",
			"Browse categories",
			"Help me find a gift",
		}
	}
}
