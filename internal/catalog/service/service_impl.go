package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	accesscontroldomain "github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/authorization"
	"github.com/smallbiznis/merchline/internal/catalog/domain"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"github.com/smallbiznis/merchline/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCurrency = "EUR"

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	AccessControl accesscontroldomain.Service
	Authz         authorization.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	accessControl accesscontroldomain.Service
	authz         authorization.Service
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("catalog.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		accessControl: p.AccessControl,
		authz:         p.Authz,
		metrics:       p.Metrics,
	}
}

func (s *Service) ListCatalog(ctx context.Context, user accountdomain.User, filter domain.Filter, page pagination.Pagination) (domain.ListResult, error) {
	tags, err := s.accessControl.ResolveVisibleTags(ctx, user)
	if err != nil {
		return domain.ListResult{}, err
	}
	return s.ListCatalogForTags(ctx, tags, user.Role, user.CompanyID, filter, page)
}

func (s *Service) ListCatalogForTags(ctx context.Context, tags accesscontroldomain.TagSet, role accountdomain.Role, companyID *snowflake.ID, filter domain.Filter, page pagination.Pagination) (domain.ListResult, error) {
	page = page.Normalize()
	spec := domain.QuerySpec{
		Unrestricted: tags.All(),
		VisibleTags:  tags.IDs(),
		CompanyID:    companyID,
		Filter:       normalizeFilter(filter),
		Offset:       page.Offset(),
		Limit:        page.Limit(),
	}

	products, total, err := s.repo.Query(ctx, s.db, spec)
	if err != nil {
		return domain.ListResult{}, err
	}
	s.metrics.RecordCatalogList(ctx, string(role), spec.Unrestricted)

	rows, err := s.hydrate(ctx, products)
	if err != nil {
		return domain.ListResult{}, err
	}
	return domain.ListResult{
		Rows:     rows,
		Count:    total,
		PageInfo: pagination.BuildPageInfo(page, total),
	}, nil
}

func (s *Service) hydrate(ctx context.Context, products []domain.Product) ([]domain.CatalogRow, error) {
	rows := make([]domain.CatalogRow, 0, len(products))
	if len(products) == 0 {
		return rows, nil
	}

	ids := make([]snowflake.ID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}

	tagRows, err := s.repo.FindTagsForProducts(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	bands, err := s.repo.FindGraduatedPrices(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	tagsByProduct := make(map[snowflake.ID][]domain.CategoryTag, len(products))
	for _, row := range tagRows {
		tagsByProduct[row.ProductID] = append(tagsByProduct[row.ProductID], row.CategoryTag)
	}
	bandsByProduct := make(map[snowflake.ID][]domain.GraduatedPrice, len(products))
	for _, band := range bands {
		bandsByProduct[band.ProductID] = append(bandsByProduct[band.ProductID], band)
	}

	for _, p := range products {
		row := domain.CatalogRow{
			Product:         p,
			Tags:            tagsByProduct[p.ID],
			GraduatedPrices: bandsByProduct[p.ID],
		}
		if row.Tags == nil {
			row.Tags = []domain.CategoryTag{}
		}
		if row.GraduatedPrices == nil {
			row.GraduatedPrices = []domain.GraduatedPrice{}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeFilter(filter domain.Filter) domain.Filter {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Color = strings.TrimSpace(filter.Color)
	filter.Material = strings.TrimSpace(filter.Material)
	filter.Size = strings.TrimSpace(filter.Size)
	filter.SortBy = strings.TrimSpace(filter.SortBy)
	filter.OrderBy = strings.TrimSpace(filter.OrderBy)

	categories := filter.Categories[:0:0]
	for _, name := range filter.Categories {
		if name = strings.TrimSpace(name); name != "" {
			categories = append(categories, name)
		}
	}
	filter.Categories = categories
	return filter
}

func (s *Service) CreateCategory(ctx context.Context, actor accountdomain.User, req domain.CreateCategoryRequest) (domain.Category, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, domain.ErrInvalidName
	}

	now := s.clock.Now()
	category := domain.Category{
		ID:        s.genID.Generate(),
		CompanyID: req.CompanyID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertCategory(ctx, s.db, &category); err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

func (s *Service) CreateTag(ctx context.Context, actor accountdomain.User, req domain.CreateTagRequest) (domain.CategoryTag, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return domain.CategoryTag{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CategoryTag{}, domain.ErrInvalidName
	}
	tagType := req.Type
	if tagType == "" {
		tagType = domain.TagTypeCategory
	}
	if !tagType.Valid() {
		return domain.CategoryTag{}, domain.ErrInvalidTagType
	}

	if req.CategoryID != nil {
		category, err := s.repo.FindCategoryByID(ctx, s.db, *req.CategoryID)
		if err != nil {
			return domain.CategoryTag{}, err
		}
		if category == nil {
			return domain.CategoryTag{}, domain.ErrNotFound
		}
		if !sameTenantOrShared(category.CompanyID, req.CompanyID) {
			return domain.CategoryTag{}, domain.ErrCrossTenant
		}
	}

	now := s.clock.Now()
	tag := domain.CategoryTag{
		ID:                s.genID.Generate(),
		CompanyID:         req.CompanyID,
		Name:              name,
		Type:              tagType,
		ProductCategoryID: req.CategoryID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertTag(ctx, s.db, &tag); err != nil {
		return domain.CategoryTag{}, err
	}
	return tag, nil
}

func (s *Service) CreateProduct(ctx context.Context, actor accountdomain.User, req domain.CreateProductRequest) (domain.Product, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, domain.ErrInvalidName
	}
	merchantSKU := strings.TrimSpace(req.MerchantSKU)
	if merchantSKU == "" {
		return domain.Product{}, domain.ErrInvalidSKU
	}
	if req.PriceAmount.IsNegative() {
		return domain.Product{}, domain.ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.PriceCurrency))
	if currency == "" {
		currency = defaultCurrency
	}
	moq := req.MinimumOrderQuantity
	if moq < 1 {
		moq = 1
	}

	if req.ParentID != nil {
		parent, err := s.repo.FindProductByID(ctx, s.db, *req.ParentID)
		if err != nil {
			return domain.Product{}, err
		}
		if parent == nil {
			return domain.Product{}, domain.ErrNotFound
		}
		if !sameTenantOrShared(parent.CompanyID, req.CompanyID) {
			return domain.Product{}, domain.ErrCrossTenant
		}
	}

	now := s.clock.Now()
	product := domain.Product{
		ID:                   s.genID.Generate(),
		CompanyID:            req.CompanyID,
		ParentID:             req.ParentID,
		IsParent:             req.IsParent,
		Name:                 name,
		SKU:                  strings.TrimSpace(req.SKU),
		MerchantSKU:          merchantSKU,
		PriceAmount:          req.PriceAmount,
		PriceCurrency:        currency,
		Color:                strings.TrimSpace(req.Color),
		Material:             strings.TrimSpace(req.Material),
		Size:                 strings.TrimSpace(req.Size),
		MinimumOrderQuantity: moq,
		IsExceedStockEnabled: req.IsExceedStockEnabled,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.InsertProduct(ctx, s.db, &product); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Product{}, domain.ErrAlreadyExists
		}
		return domain.Product{}, err
	}

	s.log.Info("product created",
		zap.String("product_id", product.ID.String()),
		zap.String("merchant_sku", product.MerchantSKU),
	)
	return product, nil
}

func (s *Service) AttachTag(ctx context.Context, actor accountdomain.User, productID, tagID snowflake.ID) (pkgdb.UpsertResult, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return "", err
	}
	product, err := s.repo.FindProductByID(ctx, s.db, productID)
	if err != nil {
		return "", err
	}
	if product == nil {
		return "", domain.ErrNotFound
	}
	tag, err := s.repo.FindTagByID(ctx, s.db, tagID)
	if err != nil {
		return "", err
	}
	if tag == nil {
		return "", domain.ErrNotFound
	}
	if !sameTenantOrShared(tag.CompanyID, product.CompanyID) {
		return "", domain.ErrCrossTenant
	}

	return s.repo.UpsertProductTag(ctx, s.db, product.ID, tag.ID, s.clock.Now())
}

func (s *Service) SetGraduatedPrices(ctx context.Context, actor accountdomain.User, productID snowflake.ID, inputs []domain.GraduatedPriceInput) ([]domain.GraduatedPrice, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return nil, err
	}
	if err := validateBands(inputs); err != nil {
		return nil, err
	}

	product, err := s.repo.FindProductByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	bands := make([]domain.GraduatedPrice, 0, len(inputs))
	for _, in := range inputs {
		bands = append(bands, domain.GraduatedPrice{
			ID:        s.genID.Generate(),
			ProductID: product.ID,
			FirstUnit: in.FirstUnit,
			LastUnit:  in.LastUnit,
			Price:     in.Price,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].FirstUnit < bands[j].FirstUnit })

	if err := s.repo.ReplaceGraduatedPrices(ctx, s.db, product.ID, bands); err != nil {
		return nil, err
	}
	return bands, nil
}

// validateBands rejects bands starting below one, inverted bands and overlaps.
func validateBands(inputs []domain.GraduatedPriceInput) error {
	sorted := make([]domain.GraduatedPriceInput, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FirstUnit < sorted[j].FirstUnit })

	for i, band := range sorted {
		if band.FirstUnit < 1 || band.LastUnit < band.FirstUnit || band.Price.IsNegative() {
			return domain.ErrInvalidBand
		}
		if i > 0 && band.FirstUnit <= sorted[i-1].LastUnit {
			return domain.ErrOverlappingBands
		}
	}
	return nil
}

func sameTenantOrShared(owner, target *snowflake.ID) bool {
	if owner == nil {
		return true
	}
	return target != nil && *owner == *target
}

func (s *Service) authorizeManage(ctx context.Context, actor accountdomain.User) error {
	err := s.authz.Authorize(ctx, actor, authorization.ObjectCatalog, authorization.ActionCatalogManage)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidActor):
		return domain.ErrForbidden
	default:
		return err
	}
}
