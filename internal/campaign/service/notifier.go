package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/campaign/domain"
	"go.uber.org/zap"
)

func (s *Service) RecheckNotifications(ctx context.Context, campaignID snowflake.ID) (int, error) {
	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	consumed, err := s.repo.SumQuota(ctx, s.db, campaign.ID)
	if err != nil {
		return 0, err
	}
	rules, err := s.repo.ListActiveNotificationRules(ctx, s.db, campaign.ID)
	if err != nil {
		return 0, err
	}
	return s.evaluate(ctx, campaign, rules, consumed), nil
}

func (s *Service) evaluate(ctx context.Context, campaign domain.Campaign, rules []domain.NotificationRule, consumed int64) int {
	fired := 0
	for _, rule := range rules {
		ok, err := s.MaybeNotify(ctx, campaign, rule, consumed)
		if err != nil {
			s.log.Warn("notification check failed",
				zap.String("campaign_id", campaign.ID.String()),
				zap.String("rule_id", rule.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			fired++
		}
	}
	return fired
}

// MaybeNotify claims the rule's window with a conditional update before dispatching, so
// concurrent evaluations send at most one message per window. Delivery errors are logged
// and do not undo the claim.
func (s *Service) MaybeNotify(ctx context.Context, campaign domain.Campaign, rule domain.NotificationRule, consumed int64) (bool, error) {
	if !rule.IsActive || !rule.Reached(consumed, campaign.Quota) {
		return false, nil
	}
	now := s.clock.Now()
	if !rule.Due(now) {
		return false, nil
	}

	cutoff := rule.FrequencyUnit.WindowStart(now, rule.Frequency)
	claimed, err := s.repo.ClaimNotification(ctx, s.db, rule.ID, now, cutoff)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	msg := domain.Message{
		CampaignID:    campaign.ID,
		CampaignName:  campaign.Name,
		Consumed:      consumed,
		Quota:         campaign.Quota,
		Threshold:     rule.Threshold,
		ThresholdType: rule.ThresholdType,
	}
	if err := s.dispatcher.Send(ctx, []string(rule.Recipients), msg); err != nil {
		s.log.Warn("quota notification delivery failed",
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("rule_id", rule.ID.String()),
			zap.Error(err),
		)
	}
	s.metrics.RecordNotificationFired(ctx, string(rule.ThresholdType))
	return true, nil
}
