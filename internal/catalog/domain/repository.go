package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"gorm.io/gorm"
)

// QuerySpec is a fully resolved catalog query. Unrestricted skips the tag intersection
// and the tenant scope.
type QuerySpec struct {
	Unrestricted bool
	VisibleTags  []snowflake.ID
	CompanyID    *snowflake.ID
	Filter       Filter
	Offset       int
	Limit        int
}

func (s QuerySpec) Visibility() Visibility {
	return Visibility{Unrestricted: s.Unrestricted, VisibleTags: s.VisibleTags, CompanyID: s.CompanyID}
}

// Visibility restricts product reads to one tenant's products plus shared ones, and to
// products that are untagged or carry one of VisibleTags.
type Visibility struct {
	Unrestricted bool
	// AnyTag keeps the tenant restriction but skips the tag check.
	AnyTag      bool
	VisibleTags []snowflake.ID
	CompanyID   *snowflake.ID
}

type Repository interface {
	Query(ctx context.Context, db *gorm.DB, spec QuerySpec) ([]Product, int64, error)
	FindTagsForProducts(ctx context.Context, db *gorm.DB, productIDs []snowflake.ID) ([]ProductTagRow, error)
	FindGraduatedPrices(ctx context.Context, db *gorm.DB, productIDs []snowflake.ID) ([]GraduatedPrice, error)

	// FindByMerchantSKU returns nil when the product is missing or outside vis.
	FindByMerchantSKU(ctx context.Context, db *gorm.DB, sku string, vis Visibility) (*Product, error)
	FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindTagByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CategoryTag, error)
	FindCategoryByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Category, error)

	InsertProduct(ctx context.Context, db *gorm.DB, product *Product) error
	InsertCategory(ctx context.Context, db *gorm.DB, category *Category) error
	InsertTag(ctx context.Context, db *gorm.DB, tag *CategoryTag) error
	UpsertProductTag(ctx context.Context, db *gorm.DB, productID, tagID snowflake.ID, now time.Time) (pkgdb.UpsertResult, error)
	ReplaceGraduatedPrices(ctx context.Context, db *gorm.DB, productID snowflake.ID, bands []GraduatedPrice) error
}
