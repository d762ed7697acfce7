package sim

import (
	"fmt"
	"strings"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
)

// Script is one scripted assistant turn
type Script struct {
	Text     string
	Replies  []string
	Products []domain.ProductSuggestion
}

// Responder turns an incoming conversation into a scripted reply.
// Keyword-driven: just enough assistant behavior to exercise a
// storefront chat client end to end.
type Responder struct {
	products []domain.Product
}

// NewResponder creates a responder over a product list
func NewResponder(products []domain.Product) *Responder {
	return &Responder{products: products}
}

// Reply scripts a response to the latest user message
func (r *Responder) Reply(req domain.ChatRequest) Script {
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			last = strings.ToLower(req.Messages[i].Content)
			break
		}
	}

	switch {
	case last == "" || hasAnyWord(last, "hi", "hello", "hey"):
		return Script{
			Text:    "Hi! I'm the shop assistant. I can help you find pieces, check sizes, or answer questions about shipping and returns.",
			Replies: []string{"What's new this week?", "Help me find a jacket"},
		}

	case containsAny(last, "size", "fit", "measurement"):
		s := Script{
			Text:    "Most of our pieces run true to size. If you're between sizes, I'd go one up for a relaxed fit.",
			Replies: []string{"Show me the size chart", "I'll take a medium"},
		}
		if p, ok := r.sizingPick(last); ok {
			s.Text += fmt.Sprintf(" For the %s I'd suggest a medium.", p.Name)
			s.Products = []domain.ProductSuggestion{{ProductID: p.ID, SuggestedSize: "M"}}
		}
		return s

	case containsAny(last, "ship", "delivery", "return", "refund"):
		return Script{
			Text:    "Orders ship within two business days, and returns are free for 30 days.",
			Replies: []string{"How do I start a return?", "Back to shopping"},
		}
	}

	if p, ok := r.matchByName(last); ok {
		return Script{
			Text:     fmt.Sprintf("The %s is a favorite right now, at %.2f %s. Want me to check what sizes are left?", p.Name, p.Price, p.Currency),
			Replies:  []string{"Yes, check sizes", "Show me something similar"},
			Products: []domain.ProductSuggestion{{ProductID: p.ID}},
		}
	}

	return Script{
		Text:    "I can help you find pieces from our latest drop. Tell me what you're shopping for and I'll pull up some options.",
		Replies: []string{"Show me jackets", "What's popular?"},
	}
}

// matchByName finds a product whose name shares a word with the text
func (r *Responder) matchByName(text string) (domain.Product, bool) {
	for _, p := range r.products {
		for _, word := range strings.Fields(strings.ToLower(p.Name)) {
			if strings.Contains(text, word) {
				return p, true
			}
		}
	}
	return domain.Product{}, false
}

// sizingPick resolves the product a sizing question is about, falling
// back to the first product so the answer always names one
func (r *Responder) sizingPick(text string) (domain.Product, bool) {
	if p, ok := r.matchByName(text); ok {
		return p, true
	}
	if len(r.products) > 0 {
		return r.products[0], true
	}
	return domain.Product{}, false
}

func hasAnyWord(text string, words ...string) bool {
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, ".,!?")
		for _, w := range words {
			if field == w {
				return true
			}
		}
	}
	return false
}

func containsAny(text string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// DefaultProducts is the simulator's built-in mini catalog, used when
// no catalog file is configured
func DefaultProducts() []domain.Product {
	return []domain.Product{
		{ID: "jacket-001", Name: "Denim Jacket", Price: 89.95, Currency: "EUR", Sizes: []string{"S", "M", "L", "XL"}},
		{ID: "shirt-014", Name: "Linen Shirt", Price: 49.50, Currency: "EUR", Sizes: []string{"S", "M", "L"}},
		{ID: "sweater-007", Name: "Wool Sweater", Price: 74.00, Currency: "EUR", Sizes: []string{"M", "L"}},
		{ID: "sneaker-023", Name: "Court Sneakers", Price: 99.00, Currency: "EUR", Sizes: []string{"40", "41", "42", "43", "44"}},
	}
}
