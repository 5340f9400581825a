package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accesscontroldomain "github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"github.com/smallbiznis/merchline/pkg/db/pagination"
)

// Filter narrows a catalog listing. Every set field is AND-ed.
type Filter struct {
	Search       string
	Categories   []string
	TagIDs       []snowflake.ID
	Color        string
	Material     string
	Size         string
	Price        PriceRange
	PriceBuckets []PriceRange
	// ShowChildren defaults to true; false hides variants.
	ShowChildren *bool
	IsParent     *bool
	SortBy       string
	OrderBy      string
}

type ListResult struct {
	Rows     []CatalogRow        `json:"data"`
	Count    int64               `json:"count"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type CreateCategoryRequest struct {
	CompanyID *snowflake.ID
	Name      string
}

type CreateTagRequest struct {
	CompanyID  *snowflake.ID
	Name       string
	Type       TagType
	CategoryID *snowflake.ID
}

type CreateProductRequest struct {
	CompanyID            *snowflake.ID
	ParentID             *snowflake.ID
	IsParent             bool
	Name                 string
	SKU                  string
	MerchantSKU          string
	PriceAmount          decimal.Decimal
	PriceCurrency        string
	Color                string
	Material             string
	Size                 string
	MinimumOrderQuantity int
	IsExceedStockEnabled bool
}

type GraduatedPriceInput struct {
	FirstUnit int             `json:"first_unit"`
	LastUnit  int             `json:"last_unit"`
	Price     decimal.Decimal `json:"price"`
}

type Service interface {
	// ListCatalog returns the products visible to the user. It never fails with a permission error.
	ListCatalog(ctx context.Context, user accountdomain.User, filter Filter, page pagination.Pagination) (ListResult, error)
	ListCatalogForTags(ctx context.Context, tags accesscontroldomain.TagSet, role accountdomain.Role, companyID *snowflake.ID, filter Filter, page pagination.Pagination) (ListResult, error)

	CreateCategory(ctx context.Context, actor accountdomain.User, req CreateCategoryRequest) (Category, error)
	CreateTag(ctx context.Context, actor accountdomain.User, req CreateTagRequest) (CategoryTag, error)
	CreateProduct(ctx context.Context, actor accountdomain.User, req CreateProductRequest) (Product, error)
	AttachTag(ctx context.Context, actor accountdomain.User, productID, tagID snowflake.ID) (pkgdb.UpsertResult, error)
	SetGraduatedPrices(ctx context.Context, actor accountdomain.User, productID snowflake.ID, bands []GraduatedPriceInput) ([]GraduatedPrice, error)
}

var (
	ErrNotFound         = errors.New("not_found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidSKU       = errors.New("invalid_sku")
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrInvalidTagType   = errors.New("invalid_tag_type")
	ErrInvalidBand      = errors.New("invalid_graduated_price_band")
	ErrOverlappingBands = errors.New("overlapping_graduated_price_bands")
	ErrCrossTenant      = errors.New("cross_tenant_reference")
	ErrAlreadyExists    = errors.New("already_exists")
)
