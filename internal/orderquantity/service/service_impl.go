package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accesscontroldomain "github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	catalogdomain "github.com/smallbiznis/merchline/internal/catalog/domain"
	"github.com/smallbiznis/merchline/internal/config"
	"github.com/smallbiznis/merchline/internal/orderquantity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	CatalogRepo   catalogdomain.Repository
	AccessControl accesscontroldomain.Service
	Ordering      *config.OrderingConfigHolder `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	catalogRepo   catalogdomain.Repository
	accessControl accesscontroldomain.Service
	ordering      *config.OrderingConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("orderquantity.service"),
		catalogRepo:   p.CatalogRepo,
		accessControl: p.AccessControl,
		ordering:      p.Ordering,
	}
}

func (s *Service) ValidateLines(ctx context.Context, scope domain.Scope, lines []domain.Line) (domain.ValidationResult, error) {
	if len(lines) == 0 {
		return domain.ValidationResult{}, domain.ErrEmptyOrder
	}

	vis, err := s.visibility(ctx, scope)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	ceiling := s.ordering.Get().MaxQuantity
	result := domain.ValidationResult{Lines: make([]domain.LineBounds, 0, len(lines))}
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return domain.ValidationResult{}, err
		}

		bounds, err := s.validateLine(ctx, line, vis, ceiling)
		if err != nil {
			s.log.Debug("order line rejected",
				zap.String("article_number", line.ArticleNumber),
				zap.Int("quantity", line.Quantity),
				zap.Error(err),
			)
			return domain.ValidationResult{}, err
		}
		result.Lines = append(result.Lines, bounds)
		result.TotalQuantity += line.Quantity
	}
	return result, nil
}

// visibility mirrors the catalog listing rules so a line can only name a product the
// actor could browse.
func (s *Service) visibility(ctx context.Context, scope domain.Scope) (catalogdomain.Visibility, error) {
	actor := scope.Actor
	if actor.IsAdmin() {
		if scope.CompanyID == nil {
			return catalogdomain.Visibility{Unrestricted: true}, nil
		}
		return catalogdomain.Visibility{AnyTag: true, CompanyID: scope.CompanyID}, nil
	}

	tags, err := s.accessControl.ResolveVisibleTags(ctx, actor)
	if err != nil {
		return catalogdomain.Visibility{}, err
	}
	return catalogdomain.Visibility{
		AnyTag:      tags.All(),
		VisibleTags: tags.IDs(),
		CompanyID:   actor.CompanyID,
	}, nil
}

func (s *Service) validateLine(ctx context.Context, line domain.Line, vis catalogdomain.Visibility, ceiling int) (domain.LineBounds, error) {
	article := strings.TrimSpace(line.ArticleNumber)
	lineErr := func(reason error, bound int) error {
		return &domain.LineError{
			ArticleNumber: article,
			ItemName:      line.ItemName,
			Quantity:      line.Quantity,
			Bound:         bound,
			Reason:        reason,
		}
	}

	if article == "" {
		return domain.LineBounds{}, lineErr(domain.ErrNotFound, 0)
	}
	product, err := s.catalogRepo.FindByMerchantSKU(ctx, s.db, article, vis)
	if err != nil {
		return domain.LineBounds{}, err
	}
	if product == nil {
		return domain.LineBounds{}, lineErr(domain.ErrNotFound, 0)
	}

	bands, err := s.catalogRepo.FindGraduatedPrices(ctx, s.db, []snowflake.ID{product.ID})
	if err != nil {
		return domain.LineBounds{}, err
	}

	bounds := effectiveBounds(*product, bands, ceiling)
	bounds.ArticleNumber = article
	bounds.Quantity = line.Quantity

	if line.Quantity < bounds.Min {
		return domain.LineBounds{}, lineErr(domain.ErrQuantityBelowMinimum, bounds.Min)
	}
	if bounds.MaxEnforced && line.Quantity > bounds.Max {
		return domain.LineBounds{}, lineErr(domain.ErrQuantityAboveMaximum, bounds.Max)
	}
	return bounds, nil
}

// effectiveBounds derives the quantity window from graduated bands when present,
// otherwise from the product minimum and the configured ceiling.
func effectiveBounds(product catalogdomain.Product, bands []catalogdomain.GraduatedPrice, ceiling int) domain.LineBounds {
	bounds := domain.LineBounds{MaxEnforced: product.IsExceedStockEnabled}
	if len(bands) == 0 {
		bounds.Min = product.MinimumOrderQuantity
		if bounds.Min < 1 {
			bounds.Min = 1
		}
		bounds.Max = ceiling
		return bounds
	}

	bounds.Graduated = true
	bounds.Min = bands[0].FirstUnit
	bounds.Max = bands[0].LastUnit
	for _, band := range bands[1:] {
		if band.FirstUnit < bounds.Min {
			bounds.Min = band.FirstUnit
		}
		if band.LastUnit > bounds.Max {
			bounds.Max = band.LastUnit
		}
	}
	return bounds
}
