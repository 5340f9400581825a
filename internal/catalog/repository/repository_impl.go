package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/catalog/domain"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"github.com/smallbiznis/merchline/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const productColumns = `p.id, p.company_id, p.parent_id, p.is_parent, p.name, p.sku, p.merchant_sku,
	p.price_amount, p.price_currency, p.color, p.material, p.size, p.minimum_order_quantity,
	p.is_exceed_stock_enabled, p.created_at, p.updated_at`

// liveTagJoin matches live tag assignments of the outer product row.
const liveTagJoin = `FROM product_tags pt
	JOIN product_category_tags t ON t.id = pt.product_category_tag_id
	WHERE pt.product_id = p.id AND pt.deleted_at IS NULL AND t.deleted_at IS NULL`

var sortFields = map[string]string{
	"createdAt":  "p.created_at",
	"created_at": "p.created_at",
	"name":       "LOWER(p.name)",
	"price":      "p.price_amount",
	"sku":        "p.sku",
}

func (r *repo) Query(ctx context.Context, db *gorm.DB, spec domain.QuerySpec) ([]domain.Product, int64, error) {
	stmt := db.WithContext(ctx).Table("products AS p")
	stmt = applyVisibility(stmt, spec.Visibility())
	stmt = applyFilter(stmt, spec.Filter)
	stmt = stmt.Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	sortBy := option.ValidateSortField(spec.Filter.SortBy, sortFields, "p.created_at")
	orderBy := option.ValidateSortOrder(spec.Filter.OrderBy)

	var items []domain.Product
	err := stmt.
		Select(productColumns).
		Order(sortBy + " " + orderBy).
		Order("p.id " + orderBy).
		Offset(spec.Offset).
		Limit(spec.Limit).
		Scan(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func applyFilter(stmt *gorm.DB, filter domain.Filter) *gorm.DB {
	if len(filter.TagIDs) > 0 {
		stmt = stmt.Where("EXISTS (SELECT 1 "+liveTagJoin+" AND t.id IN ?)", filter.TagIDs)
	}
	if len(filter.Categories) > 0 {
		stmt = stmt.Where(
			"EXISTS (SELECT 1 "+liveTagJoin+" AND t.product_category_id IN (SELECT c.id FROM product_categories c WHERE c.name IN ?))",
			filter.Categories,
		)
	}
	if filter.Color != "" {
		stmt = stmt.Where("p.color = ?", filter.Color)
	}
	if filter.Material != "" {
		stmt = stmt.Where("p.material = ?", filter.Material)
	}
	if filter.Size != "" {
		stmt = stmt.Where("p.size = ?", filter.Size)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where(
			"(LOWER(p.name) LIKE ? OR LOWER(p.sku) LIKE ? OR LOWER(p.merchant_sku) LIKE ?)",
			like, like, like,
		)
	}

	if filter.Price.Min != nil {
		stmt = stmt.Where("p.price_amount >= ?", *filter.Price.Min)
	}
	if filter.Price.Max != nil {
		stmt = stmt.Where("p.price_amount <= ?", *filter.Price.Max)
	}
	if len(filter.PriceBuckets) > 0 {
		clauses := make([]string, 0, len(filter.PriceBuckets))
		args := make([]any, 0, len(filter.PriceBuckets)*2)
		for _, bucket := range filter.PriceBuckets {
			parts := make([]string, 0, 2)
			if bucket.Min != nil {
				parts = append(parts, "p.price_amount >= ?")
				args = append(args, *bucket.Min)
			}
			if bucket.Max != nil {
				parts = append(parts, "p.price_amount <= ?")
				args = append(args, *bucket.Max)
			}
			if len(parts) == 0 {
				continue
			}
			clauses = append(clauses, "("+strings.Join(parts, " AND ")+")")
		}
		if len(clauses) > 0 {
			stmt = stmt.Where("("+strings.Join(clauses, " OR ")+")", args...)
		}
	}

	if filter.ShowChildren != nil && !*filter.ShowChildren {
		stmt = stmt.Where("p.parent_id IS NULL")
	}
	if filter.IsParent != nil {
		stmt = stmt.Where("p.is_parent = ?", *filter.IsParent)
	}
	return stmt
}

func (r *repo) FindTagsForProducts(ctx context.Context, db *gorm.DB, productIDs []snowflake.ID) ([]domain.ProductTagRow, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var rows []domain.ProductTagRow
	err := db.WithContext(ctx).Raw(
		`SELECT pt.product_id, t.id, t.company_id, t.name, t.type, t.product_category_id, t.created_at, t.updated_at
		 FROM product_tags pt
		 JOIN product_category_tags t ON t.id = pt.product_category_tag_id
		 WHERE pt.product_id IN ?
		   AND pt.deleted_at IS NULL
		   AND t.deleted_at IS NULL
		 ORDER BY pt.product_id, t.name, t.id`,
		productIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) FindGraduatedPrices(ctx context.Context, db *gorm.DB, productIDs []snowflake.ID) ([]domain.GraduatedPrice, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	var bands []domain.GraduatedPrice
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, first_unit, last_unit, price, created_at, updated_at
		 FROM product_graduated_prices
		 WHERE product_id IN ?
		 ORDER BY product_id, first_unit, id`,
		productIDs,
	).Scan(&bands).Error
	if err != nil {
		return nil, err
	}
	return bands, nil
}

func (r *repo) FindByMerchantSKU(ctx context.Context, db *gorm.DB, sku string, vis domain.Visibility) (*domain.Product, error) {
	var p domain.Product
	stmt := db.WithContext(ctx).Table("products AS p").Where("p.merchant_sku = ?", sku)
	err := applyVisibility(stmt, vis).Select(productColumns).Limit(1).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func applyVisibility(stmt *gorm.DB, vis domain.Visibility) *gorm.DB {
	if vis.Unrestricted {
		return stmt
	}
	if vis.CompanyID != nil {
		stmt = stmt.Where("(p.company_id = ? OR p.company_id IS NULL)", *vis.CompanyID)
	} else {
		stmt = stmt.Where("p.company_id IS NULL")
	}
	if vis.AnyTag {
		return stmt
	}

	// untagged products are visible to everyone
	if len(vis.VisibleTags) == 0 {
		return stmt.Where("NOT EXISTS (SELECT 1 " + liveTagJoin + ")")
	}
	return stmt.Where(
		"(NOT EXISTS (SELECT 1 "+liveTagJoin+") OR EXISTS (SELECT 1 "+liveTagJoin+" AND t.id IN ?))",
		vis.VisibleTags,
	)
}

func (r *repo) FindProductByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products p WHERE p.id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindTagByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CategoryTag, error) {
	var tag domain.CategoryTag
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, name, type, product_category_id, created_at, updated_at
		 FROM product_category_tags WHERE id = ? AND deleted_at IS NULL`,
		id,
	).Scan(&tag).Error
	if err != nil {
		return nil, err
	}
	if tag.ID == 0 {
		return nil, nil
	}
	return &tag, nil
}

func (r *repo) FindCategoryByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Category, error) {
	var category domain.Category
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, name, created_at, updated_at FROM product_categories WHERE id = ?`,
		id,
	).Scan(&category).Error
	if err != nil {
		return nil, err
	}
	if category.ID == 0 {
		return nil, nil
	}
	return &category, nil
}

func (r *repo) InsertProduct(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, company_id, parent_id, is_parent, name, sku, merchant_sku,
			price_amount, price_currency, color, material, size, minimum_order_quantity,
			is_exceed_stock_enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.CompanyID,
		product.ParentID,
		product.IsParent,
		product.Name,
		product.SKU,
		product.MerchantSKU,
		product.PriceAmount,
		product.PriceCurrency,
		product.Color,
		product.Material,
		product.Size,
		product.MinimumOrderQuantity,
		product.IsExceedStockEnabled,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) InsertCategory(ctx context.Context, db *gorm.DB, category *domain.Category) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_categories (id, company_id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		category.ID,
		category.CompanyID,
		category.Name,
		category.CreatedAt,
		category.UpdatedAt,
	).Error
}

func (r *repo) InsertTag(ctx context.Context, db *gorm.DB, tag *domain.CategoryTag) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_category_tags (id, company_id, name, type, product_category_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tag.ID,
		tag.CompanyID,
		tag.Name,
		string(tag.Type),
		tag.ProductCategoryID,
		tag.CreatedAt,
		tag.UpdatedAt,
	).Error
}

type liveness struct {
	Found     bool
	DeletedAt *time.Time
}

func (r *repo) UpsertProductTag(ctx context.Context, db *gorm.DB, productID, tagID snowflake.ID, now time.Time) (pkgdb.UpsertResult, error) {
	var state liveness
	err := db.WithContext(ctx).Raw(
		`SELECT TRUE AS found, deleted_at FROM product_tags
		 WHERE product_id = ? AND product_category_tag_id = ?`,
		productID, tagID,
	).Scan(&state).Error
	if err != nil {
		return "", err
	}

	switch {
	case !state.Found:
		err := db.WithContext(ctx).Exec(
			`INSERT INTO product_tags (product_id, product_category_tag_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?)`,
			productID, tagID, now, now,
		).Error
		if pkgdb.IsDuplicateKeyErr(err) {
			return pkgdb.UpsertUnchanged, nil
		}
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertCreated, nil
	case state.DeletedAt != nil:
		err := db.WithContext(ctx).Exec(
			`UPDATE product_tags SET deleted_at = NULL, updated_at = ?
			 WHERE product_id = ? AND product_category_tag_id = ?`,
			now, productID, tagID,
		).Error
		if err != nil {
			return "", err
		}
		return pkgdb.UpsertRestored, nil
	default:
		return pkgdb.UpsertUnchanged, nil
	}
}

func (r *repo) ReplaceGraduatedPrices(ctx context.Context, db *gorm.DB, productID snowflake.ID, bands []domain.GraduatedPrice) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM product_graduated_prices WHERE product_id = ?`, productID).Error; err != nil {
			return err
		}
		for _, band := range bands {
			err := tx.Exec(
				`INSERT INTO product_graduated_prices (id, product_id, first_unit, last_unit, price, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				band.ID,
				productID,
				band.FirstUnit,
				band.LastUnit,
				band.Price,
				band.CreatedAt,
				band.UpdatedAt,
			).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
