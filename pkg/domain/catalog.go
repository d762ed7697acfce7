package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Product is a host-supplied catalog record that product suggestions
// resolve against
type Product struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Currency string   `json:"currency,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Sizes    []string `json:"sizes,omitempty"`
}

// Catalog indexes host products by id for suggestion resolution
type Catalog struct {
	products map[string]Product
}

// NewCatalog creates a catalog from a product list
func NewCatalog(products []Product) *Catalog {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// LoadCatalog reads a JSON product list from disk
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	return NewCatalog(products), nil
}

// Find returns the product for an id
func (c *Catalog) Find(id string) (Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Products returns all products, sorted by id
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of products in the catalog
func (c *Catalog) Len() int {
	return len(c.products)
}
