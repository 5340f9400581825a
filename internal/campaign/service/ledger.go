package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/campaign/domain"
	"github.com/smallbiznis/merchline/internal/lock"
	"github.com/smallbiznis/merchline/pkg/log/ctxlogger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func guardKey(campaignID snowflake.ID) string {
	return fmt.Sprintf("merchline:campaign:%s:ledger", campaignID.String())
}

// RecordOrder checks the role's order limit and the campaign quota, then appends a quota
// entry. The check and the append run under a per-campaign guard and a row lock on the
// campaign, so concurrent submissions for the same campaign are serialized.
func (s *Service) RecordOrder(ctx context.Context, req domain.RecordOrderRequest) (domain.ConsumeResult, error) {
	if req.CampaignID == 0 {
		return domain.ConsumeResult{}, domain.ErrNotFound
	}
	if req.Quota <= 0 {
		return domain.ConsumeResult{}, domain.ErrInvalidQuota
	}
	if !req.Role.Valid() {
		return domain.ConsumeResult{}, domain.ErrInvalidRole
	}

	log := ctxlogger.WithContext(ctx, s.log).With(
		zap.String("campaign_id", req.CampaignID.String()),
		zap.String("role", string(req.Role)),
	)

	release, err := s.locker.Acquire(ctx, guardKey(req.CampaignID))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return domain.ConsumeResult{}, domain.ErrLedgerBusy
		}
		return domain.ConsumeResult{}, err
	}
	unlock := sync.OnceFunc(release)
	defer unlock()

	var (
		campaign domain.Campaign
		entry    domain.QuotaEntry
		limit    *int64
		orders   int64
		consumed int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.LockCampaign(ctx, tx, req.CampaignID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrNotFound
		}
		campaign = *locked

		orders, err = s.repo.CountOrders(ctx, tx, campaign.ID, req.Role)
		if err != nil {
			return err
		}
		row, err := s.repo.FindOrderLimit(ctx, tx, campaign.ID, req.Role)
		if err != nil {
			return err
		}
		switch {
		case row == nil:
		case row.Limit < 0:
			log.Warn("inconsistent order limit treated as unlimited", zap.Int64("limit", row.Limit))
		default:
			limit = &row.Limit
			if orders >= row.Limit {
				return fmt.Errorf("%w: role %s placed %d of %d orders", domain.ErrLimitExceeded, req.Role, orders, row.Limit)
			}
		}

		consumed, err = s.repo.SumQuota(ctx, tx, campaign.ID)
		if err != nil {
			return err
		}
		if campaign.Quota > 0 && consumed+req.Quota > campaign.Quota {
			return fmt.Errorf("%w: %d + %d exceeds %d", domain.ErrQuotaExceeded, consumed, req.Quota, campaign.Quota)
		}

		now := s.clock.Now()
		entry = domain.QuotaEntry{
			ID:           s.genID.Generate(),
			CampaignID:   campaign.ID,
			Role:         req.Role,
			OrderedQuota: req.Quota,
			OrderedDate:  now,
			CreatedBy:    req.UserID,
			UpdatedBy:    req.UserID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.AppendQuota(ctx, tx, &entry); err != nil {
			return err
		}
		if req.OnAppend != nil {
			if err := req.OnAppend(ctx, tx, entry); err != nil {
				return err
			}
		}

		orders++
		consumed += req.Quota
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrLimitExceeded):
			s.metrics.RecordOrderRejected(ctx, string(req.Role), "order_limit")
			log.Info("order rejected", zap.Error(err))
		case errors.Is(err, domain.ErrQuotaExceeded):
			s.metrics.RecordOrderRejected(ctx, string(req.Role), "campaign_quota")
			log.Info("order rejected", zap.Error(err))
		}
		return domain.ConsumeResult{}, err
	}
	unlock()
	s.metrics.RecordOrder(ctx, string(req.Role))

	result := domain.ConsumeResult{
		Entry:    entry,
		Consumed: consumed,
		Quota:    campaign.Quota,
		Orders:   orders,
		Limit:    limit,
	}

	rules, err := s.repo.ListActiveNotificationRules(ctx, s.db, campaign.ID)
	if err != nil {
		log.Warn("failed to load notification rules", zap.Error(err))
	}
	result.Notified = s.evaluate(ctx, campaign, rules, consumed)

	result.Status = domain.ComputeStatus(consumed, campaign.Quota, s.nearPercent(rules))
	if limit != nil && orders >= *limit {
		result.Status = domain.StatusOverLimit
	}

	log.Info("order recorded",
		zap.String("entry_id", entry.ID.String()),
		zap.Int64("quota", req.Quota),
		zap.Int64("consumed", consumed),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}
