// Package catalog turns catalog HTML into crawl inputs: the category list from
// the homepage navigation menu and product records from listing pages.
package catalog

import (
	"errors"
	"strings"
)

// Selectors are the CSS matchers that couple the crawler to a site's markup.
type Selectors struct {
	NavContainer string `mapstructure:"nav_container"`
	MenuColumn   string `mapstructure:"menu_column"`
	LeafLinks    string `mapstructure:"leaf_links"`
	IndexLinks   string `mapstructure:"index_links"`
	Heading      string `mapstructure:"heading"`

	ProductCard string `mapstructure:"product_card"`
	NameLink    string `mapstructure:"name_link"`
	Price       string `mapstructure:"price"`
	Image       string `mapstructure:"image"`
	// SKU is optional. When SKUAttr is set the value is read from that attribute
	// of the matched element (or of the card itself when SKU is empty).
	SKU     string `mapstructure:"sku"`
	SKUAttr string `mapstructure:"sku_attr"`

	NextPage string `mapstructure:"next_page"`
	// DecimalSeparator is "," for 1.234,56 style prices and "." for 1,234.56.
	DecimalSeparator string `mapstructure:"decimal_separator"`
}

// DefaultSelectors match the Magento-style storefront the crawler was built for.
func DefaultSelectors() Selectors {
	return Selectors{
		NavContainer:     ".sections.nav-sections",
		MenuColumn:       ".navigation-menu__column",
		LeafLinks:        ".navigation-menu__column ul li a",
		IndexLinks:       ".navigation-menu__column h3 a",
		Heading:          "h3",
		ProductCard:      "div.product-listing__item",
		NameLink:         "a.product-card__name",
		Price:            ".price-wrapper.price-excluding-tax .price",
		Image:            "img.product-image-photo",
		NextPage:         "link[rel='next']",
		DecimalSeparator: ",",
	}
}

// WithDefaults fills every empty field from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&s.NavContainer, d.NavContainer)
	fill(&s.MenuColumn, d.MenuColumn)
	fill(&s.LeafLinks, d.LeafLinks)
	fill(&s.IndexLinks, d.IndexLinks)
	fill(&s.Heading, d.Heading)
	fill(&s.ProductCard, d.ProductCard)
	fill(&s.NameLink, d.NameLink)
	fill(&s.Price, d.Price)
	fill(&s.Image, d.Image)
	fill(&s.NextPage, d.NextPage)
	fill(&s.DecimalSeparator, d.DecimalSeparator)
	return s
}

// Validate checks the selectors needed by the resolver and extractor.
func (s Selectors) Validate() error {
	if s.NavContainer == "" || s.LeafLinks == "" {
		return errors.New("selectors.nav_container and selectors.leaf_links must be set")
	}
	if s.ProductCard == "" || s.NameLink == "" {
		return errors.New("selectors.product_card and selectors.name_link must be set")
	}
	if s.DecimalSeparator != "," && s.DecimalSeparator != "." {
		return errors.New(`selectors.decimal_separator must be "," or "."`)
	}
	return nil
}
