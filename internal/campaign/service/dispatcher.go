package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/merchline/internal/campaign/domain"
	"github.com/smallbiznis/merchline/internal/config"
	"github.com/smallbiznis/merchline/internal/observability/metrics"
	"github.com/smallbiznis/merchline/internal/providers/email"
	"github.com/smallbiznis/merchline/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const quotaTemplate = "quota_threshold"

type DispatcherParams struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Email   email.Provider
	Slack   slack.Provider
	Metrics *metrics.Metrics `optional:"true"`
}

// NotificationDispatcher mails the rule recipients and mirrors the message to the
// configured Slack channel.
type NotificationDispatcher struct {
	log     *zap.Logger
	email   email.Provider
	slack   slack.Provider
	channel string
	metrics *metrics.Metrics
}

func NewDispatcher(p DispatcherParams) domain.Dispatcher {
	return &NotificationDispatcher{
		log:     p.Log.Named("campaign.dispatcher"),
		email:   p.Email,
		slack:   p.Slack,
		channel: p.Config.Slack.Channel,
		metrics: p.Metrics,
	}
}

func (d *NotificationDispatcher) Send(ctx context.Context, recipients []string, msg domain.Message) error {
	var errs []error

	if len(recipients) > 0 && d.email != nil {
		err := d.email.SendTemplate(ctx, recipients, quotaTemplate, map[string]any{
			"campaign_name":  msg.CampaignName,
			"consumed":       msg.Consumed,
			"quota":          msg.Quota,
			"threshold":      msg.Threshold,
			"threshold_type": string(msg.ThresholdType),
		})
		if err != nil {
			d.metrics.RecordNotificationFailed(ctx, "email")
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	if d.channel != "" && d.slack != nil {
		if err := d.slack.PostMessage(ctx, d.channel, slackText(msg)); err != nil {
			d.metrics.RecordNotificationFailed(ctx, "slack")
			errs = append(errs, fmt.Errorf("slack: %w", err))
		}
	}

	return errors.Join(errs...)
}

func slackText(msg domain.Message) string {
	if msg.Quota > 0 {
		return fmt.Sprintf(":package: Campaign *%s* consumed %d of %d units (threshold %d%s).",
			msg.CampaignName, msg.Consumed, msg.Quota, msg.Threshold, thresholdSuffix(msg.ThresholdType))
	}
	return fmt.Sprintf(":package: Campaign *%s* consumed %d units (threshold %d%s).",
		msg.CampaignName, msg.Consumed, msg.Threshold, thresholdSuffix(msg.ThresholdType))
}

func thresholdSuffix(t domain.ThresholdType) string {
	if t == domain.ThresholdPercent {
		return "%"
	}
	return ""
}
