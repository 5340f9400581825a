package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/authorization"
	"github.com/smallbiznis/merchline/internal/campaign/domain"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/config"
	"github.com/smallbiznis/merchline/internal/lock"
	"github.com/smallbiznis/merchline/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Locker     lock.Locker
	Dispatcher domain.Dispatcher
	Authz      authorization.Service
	Ordering   *config.OrderingConfigHolder `optional:"true"`
	Metrics    *metrics.Metrics             `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	locker     lock.Locker
	dispatcher domain.Dispatcher
	authz      authorization.Service
	ordering   *config.OrderingConfigHolder
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("campaign.ledger"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		locker:     p.Locker,
		dispatcher: p.Dispatcher,
		authz:      p.Authz,
		ordering:   p.Ordering,
		metrics:    p.Metrics,
	}
}

func (s *Service) GetCampaign(ctx context.Context, id snowflake.ID) (domain.Campaign, error) {
	campaign, err := s.repo.FindCampaignByID(ctx, s.db, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if campaign == nil {
		return domain.Campaign{}, domain.ErrNotFound
	}
	return *campaign, nil
}

func (s *Service) GetQuotaStatus(ctx context.Context, campaignID snowflake.ID) (domain.QuotaStatusView, error) {
	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.QuotaStatusView{}, err
	}

	consumed, err := s.repo.SumQuota(ctx, s.db, campaign.ID)
	if err != nil {
		return domain.QuotaStatusView{}, err
	}
	counts, err := s.repo.CountOrdersByRole(ctx, s.db, campaign.ID)
	if err != nil {
		return domain.QuotaStatusView{}, err
	}
	limits, err := s.repo.ListOrderLimits(ctx, s.db, campaign.ID)
	if err != nil {
		return domain.QuotaStatusView{}, err
	}
	rules, err := s.repo.ListActiveNotificationRules(ctx, s.db, campaign.ID)
	if err != nil {
		return domain.QuotaStatusView{}, err
	}

	usage := make(map[accountdomain.Role]*domain.RoleUsage)
	for _, c := range counts {
		usage[c.Role] = &domain.RoleUsage{Role: c.Role, Orders: c.Orders}
	}
	for _, l := range limits {
		if l.Limit < 0 {
			s.log.Warn("ignoring negative order limit",
				zap.String("campaign_id", campaign.ID.String()),
				zap.String("role", string(l.Role)),
			)
			continue
		}
		u, ok := usage[l.Role]
		if !ok {
			u = &domain.RoleUsage{Role: l.Role}
			usage[l.Role] = u
		}
		limit := l.Limit
		u.Limit = &limit
	}

	roles := make([]domain.RoleUsage, 0, len(usage))
	for _, u := range usage {
		roles = append(roles, *u)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Role < roles[j].Role })

	view := domain.QuotaStatusView{
		CampaignID: campaign.ID,
		Quota:      campaign.Quota,
		Consumed:   consumed,
		Status:     domain.ComputeStatus(consumed, campaign.Quota, s.nearPercent(rules)),
		Roles:      roles,
	}
	if campaign.Quota > 0 {
		remaining := campaign.Quota - consumed
		if remaining < 0 {
			remaining = 0
		}
		view.Remaining = &remaining
	}
	return view, nil
}

// nearPercent is the lowest active percent threshold, or the configured default.
func (s *Service) nearPercent(rules []domain.NotificationRule) int64 {
	near := int64(-1)
	for _, rule := range rules {
		if rule.ThresholdType != domain.ThresholdPercent {
			continue
		}
		if near < 0 || rule.Threshold < near {
			near = rule.Threshold
		}
	}
	if near < 0 {
		return int64(s.ordering.Get().NearThresholdPercent)
	}
	return near
}

func (s *Service) CreateCampaign(ctx context.Context, actor accountdomain.User, req domain.CreateCampaignRequest) (domain.Campaign, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return domain.Campaign{}, err
	}
	if !actor.IsAdmin() && !actor.BelongsTo(req.CompanyID) {
		return domain.Campaign{}, domain.ErrForbidden
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Campaign{}, domain.ErrInvalidName
	}
	if req.Quota < 0 {
		return domain.Campaign{}, domain.ErrInvalidQuota
	}
	campaignType := strings.TrimSpace(req.Type)
	if campaignType == "" {
		campaignType = "onboarding"
	}

	now := s.clock.Now()
	campaign := domain.Campaign{
		ID:        s.genID.Generate(),
		CompanyID: req.CompanyID,
		Name:      name,
		Status:    domain.CampaignStatusDraft,
		Type:      campaignType,
		Quota:     req.Quota,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertCampaign(ctx, s.db, &campaign); err != nil {
		return domain.Campaign{}, err
	}
	return campaign, nil
}

func (s *Service) SetOrderLimit(ctx context.Context, actor accountdomain.User, campaignID snowflake.ID, role accountdomain.Role, limit int64) (pkgdb.UpsertResult, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return "", err
	}
	if !role.Valid() {
		return "", domain.ErrInvalidRole
	}
	if limit < 0 {
		return "", domain.ErrInvalidLimit
	}
	campaign, err := s.loadManagedCampaign(ctx, actor, campaignID)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	row := domain.OrderLimit{
		ID:         s.genID.Generate(),
		CampaignID: campaign.ID,
		Role:       role,
		Limit:      limit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	result, err := s.repo.UpsertOrderLimit(ctx, s.db, &row)
	if err != nil {
		return "", err
	}
	s.log.Info("order limit set",
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("role", string(role)),
		zap.Int64("limit", limit),
		zap.String("result", string(result)),
	)
	return result, nil
}

func (s *Service) CreateNotificationRule(ctx context.Context, actor accountdomain.User, req domain.CreateNotificationRuleRequest) (domain.NotificationRule, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return domain.NotificationRule{}, err
	}

	thresholdType := req.ThresholdType
	if thresholdType == "" {
		thresholdType = domain.ThresholdPercent
	}
	if !thresholdType.Valid() || req.Threshold < 1 {
		return domain.NotificationRule{}, domain.ErrInvalidThreshold
	}
	if thresholdType == domain.ThresholdPercent && req.Threshold > 100 {
		return domain.NotificationRule{}, domain.ErrInvalidThreshold
	}

	unit := req.FrequencyUnit
	if unit == "" {
		unit = domain.FrequencyDay
	}
	frequency := req.Frequency
	if frequency == 0 {
		frequency = 1
	}
	if !unit.Valid() || frequency < 1 {
		return domain.NotificationRule{}, domain.ErrInvalidFrequency
	}

	recipients := make([]string, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if !strings.Contains(r, "@") {
			return domain.NotificationRule{}, domain.ErrNoRecipients
		}
		recipients = append(recipients, r)
	}
	if len(recipients) == 0 {
		return domain.NotificationRule{}, domain.ErrNoRecipients
	}

	campaign, err := s.loadManagedCampaign(ctx, actor, req.CampaignID)
	if err != nil {
		return domain.NotificationRule{}, err
	}

	now := s.clock.Now()
	rule := domain.NotificationRule{
		ID:            s.genID.Generate(),
		CampaignID:    campaign.ID,
		Threshold:     req.Threshold,
		ThresholdType: thresholdType,
		Recipients:    datatypes.JSONSlice[string](recipients),
		Frequency:     frequency,
		FrequencyUnit: unit,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertNotificationRule(ctx, s.db, &rule); err != nil {
		return domain.NotificationRule{}, err
	}
	return rule, nil
}

func (s *Service) authorizeManage(ctx context.Context, actor accountdomain.User) error {
	err := s.authz.Authorize(ctx, actor, authorization.ObjectCampaign, authorization.ActionCampaignManage)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidActor):
		return domain.ErrForbidden
	default:
		return err
	}
}

// loadManagedCampaign hides campaigns of other companies from non-admin managers.
func (s *Service) loadManagedCampaign(ctx context.Context, actor accountdomain.User, id snowflake.ID) (domain.Campaign, error) {
	campaign, err := s.GetCampaign(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if !actor.IsAdmin() && !actor.BelongsTo(campaign.CompanyID) {
		return domain.Campaign{}, domain.ErrNotFound
	}
	return campaign, nil
}
