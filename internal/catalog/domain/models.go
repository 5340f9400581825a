package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TagType string

const (
	TagTypeCategory TagType = "category"
	TagTypeFree     TagType = "free"
)

func (t TagType) Valid() bool {
	return t == TagTypeCategory || t == TagTypeFree
}

type Category struct {
	ID        snowflake.ID  `json:"id"`
	CompanyID *snowflake.ID `json:"company_id,omitempty"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type CategoryTag struct {
	ID                snowflake.ID  `json:"id"`
	CompanyID         *snowflake.ID `json:"company_id,omitempty"`
	Name              string        `json:"name"`
	Type              TagType       `json:"type"`
	ProductCategoryID *snowflake.ID `json:"product_category_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Product is a catalog entry. CompanyID is nil for products offered to every tenant.
type Product struct {
	ID                   snowflake.ID    `json:"id"`
	CompanyID            *snowflake.ID   `json:"company_id,omitempty"`
	ParentID             *snowflake.ID   `json:"parent_id,omitempty"`
	IsParent             bool            `json:"is_parent"`
	Name                 string          `json:"name"`
	SKU                  string          `json:"sku" gorm:"column:sku"`
	MerchantSKU          string          `json:"merchant_sku" gorm:"column:merchant_sku"`
	PriceAmount          decimal.Decimal `json:"price_amount"`
	PriceCurrency        string          `json:"price_currency"`
	Color                string          `json:"color"`
	Material             string          `json:"material"`
	Size                 string          `json:"size"`
	MinimumOrderQuantity int             `json:"minimum_order_quantity"`
	IsExceedStockEnabled bool            `json:"is_exceed_stock_enabled"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// GraduatedPrice is a quantity band [FirstUnit, LastUnit] with its unit price.
type GraduatedPrice struct {
	ID        snowflake.ID    `json:"id"`
	ProductID snowflake.ID    `json:"product_id"`
	FirstUnit int             `json:"first_unit"`
	LastUnit  int             `json:"last_unit"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProductTagRow is a live tag assignment joined with its tag.
type ProductTagRow struct {
	ProductID snowflake.ID
	CategoryTag
}

type CatalogRow struct {
	Product
	Tags            []CategoryTag    `json:"tags"`
	GraduatedPrices []GraduatedPrice `json:"graduated_prices"`
}

// PriceRange bounds a price filter; a nil side is open.
type PriceRange struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

func (r PriceRange) IsZero() bool {
	return r.Min == nil && r.Max == nil
}
