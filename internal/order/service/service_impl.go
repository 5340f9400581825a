package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/authorization"
	campaigndomain "github.com/smallbiznis/merchline/internal/campaign/domain"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/order/domain"
	orderquantitydomain "github.com/smallbiznis/merchline/internal/orderquantity/domain"
	"github.com/smallbiznis/merchline/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Validator   orderquantitydomain.Service
	CampaignSvc campaigndomain.Service
	Authz       authorization.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	validator   orderquantitydomain.Service
	campaignSvc campaigndomain.Service
	authz       authorization.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		validator:   p.Validator,
		campaignSvc: p.CampaignSvc,
		authz:       p.Authz,
	}
}

// Submit validates the lines, consumes campaign quota and persists the pending order in
// the ledger transaction.
func (s *Service) Submit(ctx context.Context, actor accountdomain.User, req domain.SubmitRequest) (domain.SubmitResponse, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCampaign, authorization.ActionCampaignOrder); err != nil {
		if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
			return domain.SubmitResponse{}, domain.ErrForbidden
		}
		return domain.SubmitResponse{}, err
	}

	campaign, err := s.campaignSvc.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		if errors.Is(err, campaigndomain.ErrNotFound) {
			return domain.SubmitResponse{}, domain.ErrNotFound
		}
		return domain.SubmitResponse{}, err
	}
	if !actor.IsAdmin() && !actor.BelongsTo(campaign.CompanyID) {
		return domain.SubmitResponse{}, domain.ErrForbidden
	}

	validation, err := s.validator.ValidateLines(ctx, orderquantitydomain.Scope{
		Actor:     actor,
		CompanyID: &campaign.CompanyID,
	}, req.Lines)
	if err != nil {
		return domain.SubmitResponse{}, err
	}

	quota := req.Quota
	if quota == 0 {
		quota = int64(validation.TotalQuantity)
	}

	order := domain.PendingOrder{
		ID:                s.genID.Generate(),
		CampaignID:        campaign.ID,
		CompanyID:         campaign.CompanyID,
		UserID:            actor.ID,
		Quota:             quota,
		OrderLineRequests: datatypes.JSONSlice[orderquantitydomain.Line](req.Lines),
	}

	result, err := s.campaignSvc.RecordOrder(ctx, campaigndomain.RecordOrderRequest{
		CampaignID: campaign.ID,
		Role:       actor.Role,
		UserID:     actor.ID,
		Quota:      quota,
		OnAppend: func(ctx context.Context, tx *gorm.DB, entry campaigndomain.QuotaEntry) error {
			order.CreatedAt = entry.OrderedDate
			order.UpdatedAt = entry.OrderedDate
			return s.repo.InsertPendingOrder(ctx, tx, &order)
		},
	})
	if err != nil {
		return domain.SubmitResponse{}, err
	}

	ctxlogger.WithContext(ctx, s.log).Info("order submitted",
		zap.String("order_id", order.ID.String()),
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("user_id", actor.ID.String()),
		zap.Int64("quota", quota),
	)

	return domain.SubmitResponse{
		OrderID:  order.ID,
		Quota:    quota,
		Consumed: result.Consumed,
		Status:   result.Status,
		Notified: result.Notified,
		Lines:    validation.Lines,
	}, nil
}
