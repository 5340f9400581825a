package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/merchline/internal/catalog/domain"
	"github.com/smallbiznis/merchline/pkg/db/pagination"
)

type catalogQuery struct {
	Search       string   `form:"search"`
	Categories   []string `form:"category"`
	TagIDs       []string `form:"tag_id"`
	Color        string   `form:"color"`
	Material     string   `form:"material"`
	Size         string   `form:"size"`
	PriceMin     string   `form:"price_min"`
	PriceMax     string   `form:"price_max"`
	PriceBuckets []string `form:"price_bucket"`
	ShowChildren string   `form:"show_children"`
	IsParent     string   `form:"is_parent"`
	SortBy       string   `form:"sort_by"`
	OrderBy      string   `form:"order_by"`
}

func (s *Server) ListCatalogProducts(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var query catalogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page", "invalid_page", "invalid page"))
		return
	}

	filter, err := buildCatalogFilter(query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.catalogSvc.ListCatalog(c.Request.Context(), actor, filter, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func buildCatalogFilter(query catalogQuery) (catalogdomain.Filter, error) {
	filter := catalogdomain.Filter{
		Search:     strings.TrimSpace(query.Search),
		Categories: splitList(query.Categories),
		Color:      strings.TrimSpace(query.Color),
		Material:   strings.TrimSpace(query.Material),
		Size:       strings.TrimSpace(query.Size),
		SortBy:     strings.TrimSpace(query.SortBy),
		OrderBy:    strings.TrimSpace(query.OrderBy),
	}

	tagIDs, err := parseSnowflakeIDs(query.TagIDs)
	if err != nil {
		return catalogdomain.Filter{}, newValidationError("tag_id", "invalid_tag_id", "invalid tag id")
	}
	filter.TagIDs = tagIDs

	if filter.Price.Min, err = parseOptionalDecimal(query.PriceMin); err != nil {
		return catalogdomain.Filter{}, newValidationError("price_min", "invalid_price_min", "invalid price_min")
	}
	if filter.Price.Max, err = parseOptionalDecimal(query.PriceMax); err != nil {
		return catalogdomain.Filter{}, newValidationError("price_max", "invalid_price_max", "invalid price_max")
	}

	for _, raw := range splitList(query.PriceBuckets) {
		bucket, err := parsePriceBucket(raw)
		if err != nil {
			return catalogdomain.Filter{}, newValidationError("price_bucket", "invalid_price_bucket", "price_bucket must look like min-max")
		}
		filter.PriceBuckets = append(filter.PriceBuckets, bucket)
	}

	if filter.ShowChildren, err = parseOptionalBool(query.ShowChildren); err != nil {
		return catalogdomain.Filter{}, newValidationError("show_children", "invalid_show_children", "invalid show_children")
	}
	if filter.IsParent, err = parseOptionalBool(query.IsParent); err != nil {
		return catalogdomain.Filter{}, newValidationError("is_parent", "invalid_is_parent", "invalid is_parent")
	}
	return filter, nil
}

type visibleTagsResponse struct {
	All    bool           `json:"all"`
	TagIDs []snowflake.ID `json:"tag_ids"`
}

func (s *Server) GetVisibleTags(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	tags, err := s.accessControlSvc.ResolveVisibleTags(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ids := tags.IDs()
	if ids == nil {
		ids = []snowflake.ID{}
	}
	c.JSON(http.StatusOK, gin.H{"data": visibleTagsResponse{All: tags.All(), TagIDs: ids}})
}

type createCategoryRequest struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
}

func (s *Server) CreateCategory(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	companyID, err := parseOptionalSnowflakeID(req.CompanyID)
	if err != nil {
		AbortWithError(c, newValidationError("company_id", "invalid_company_id", "invalid company id"))
		return
	}

	resp, err := s.catalogSvc.CreateCategory(c.Request.Context(), actor, catalogdomain.CreateCategoryRequest{
		CompanyID: companyID,
		Name:      strings.TrimSpace(req.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type createTagRequest struct {
	CompanyID  string `json:"company_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	CategoryID string `json:"category_id"`
}

func (s *Server) CreateTag(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req createTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	companyID, err := parseOptionalSnowflakeID(req.CompanyID)
	if err != nil {
		AbortWithError(c, newValidationError("company_id", "invalid_company_id", "invalid company id"))
		return
	}
	categoryID, err := parseOptionalSnowflakeID(req.CategoryID)
	if err != nil {
		AbortWithError(c, newValidationError("category_id", "invalid_category_id", "invalid category id"))
		return
	}

	resp, err := s.catalogSvc.CreateTag(c.Request.Context(), actor, catalogdomain.CreateTagRequest{
		CompanyID:  companyID,
		Name:       strings.TrimSpace(req.Name),
		Type:       catalogdomain.TagType(strings.TrimSpace(req.Type)),
		CategoryID: categoryID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type createProductRequest struct {
	CompanyID            string          `json:"company_id"`
	ParentID             string          `json:"parent_id"`
	IsParent             bool            `json:"is_parent"`
	Name                 string          `json:"name"`
	SKU                  string          `json:"sku"`
	MerchantSKU          string          `json:"merchant_sku"`
	PriceAmount          decimal.Decimal `json:"price_amount"`
	PriceCurrency        string          `json:"price_currency"`
	Color                string          `json:"color"`
	Material             string          `json:"material"`
	Size                 string          `json:"size"`
	MinimumOrderQuantity int             `json:"minimum_order_quantity"`
	IsExceedStockEnabled bool            `json:"is_exceed_stock_enabled"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	companyID, err := parseOptionalSnowflakeID(req.CompanyID)
	if err != nil {
		AbortWithError(c, newValidationError("company_id", "invalid_company_id", "invalid company id"))
		return
	}
	parentID, err := parseOptionalSnowflakeID(req.ParentID)
	if err != nil {
		AbortWithError(c, newValidationError("parent_id", "invalid_parent_id", "invalid parent id"))
		return
	}

	resp, err := s.catalogSvc.CreateProduct(c.Request.Context(), actor, catalogdomain.CreateProductRequest{
		CompanyID:            companyID,
		ParentID:             parentID,
		IsParent:             req.IsParent,
		Name:                 strings.TrimSpace(req.Name),
		SKU:                  strings.TrimSpace(req.SKU),
		MerchantSKU:          strings.TrimSpace(req.MerchantSKU),
		PriceAmount:          req.PriceAmount,
		PriceCurrency:        strings.ToUpper(strings.TrimSpace(req.PriceCurrency)),
		Color:                strings.TrimSpace(req.Color),
		Material:             strings.TrimSpace(req.Material),
		Size:                 strings.TrimSpace(req.Size),
		MinimumOrderQuantity: req.MinimumOrderQuantity,
		IsExceedStockEnabled: req.IsExceedStockEnabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type attachTagRequest struct {
	TagID string `json:"tag_id"`
}

func (s *Server) AttachProductTag(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req attachTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tagID, err := parseOptionalSnowflakeID(req.TagID)
	if err != nil || tagID == nil {
		AbortWithError(c, newValidationError("tag_id", "invalid_tag_id", "invalid tag id"))
		return
	}

	result, err := s.catalogSvc.AttachTag(c.Request.Context(), actor, productID, *tagID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(upsertStatus(result), gin.H{"result": result})
}

type setGraduatedPricesRequest struct {
	Bands []catalogdomain.GraduatedPriceInput `json:"bands"`
}

func (s *Server) SetGraduatedPrices(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req setGraduatedPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.SetGraduatedPrices(c.Request.Context(), actor, productID, req.Bands)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
