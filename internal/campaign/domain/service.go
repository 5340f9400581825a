package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"gorm.io/gorm"
)

// AppendHook runs inside the ledger transaction right after the quota row is written.
// Returning an error rolls the append back.
type AppendHook func(ctx context.Context, tx *gorm.DB, entry QuotaEntry) error

type RecordOrderRequest struct {
	CampaignID snowflake.ID
	Role       accountdomain.Role
	UserID     snowflake.ID
	Quota      int64
	OnAppend   AppendHook
}

type ConsumeResult struct {
	Entry    QuotaEntry  `json:"entry"`
	Consumed int64       `json:"consumed"`
	Quota    int64       `json:"quota"`
	Orders   int64       `json:"orders"`
	Limit    *int64      `json:"limit,omitempty"`
	Status   QuotaStatus `json:"status"`
	Notified int         `json:"notified"`
}

type QuotaStatusView struct {
	CampaignID snowflake.ID `json:"campaign_id"`
	Quota      int64        `json:"quota"`
	Consumed   int64        `json:"consumed"`
	Remaining  *int64       `json:"remaining,omitempty"`
	Status     QuotaStatus  `json:"status"`
	Roles      []RoleUsage  `json:"roles"`
}

type CreateCampaignRequest struct {
	CompanyID snowflake.ID
	Name      string
	Type      string
	Quota     int64
}

type CreateNotificationRuleRequest struct {
	CampaignID    snowflake.ID
	Threshold     int64
	ThresholdType ThresholdType
	Recipients    []string
	Frequency     int
	FrequencyUnit FrequencyUnit
}

type Service interface {
	// RecordOrder appends one quota entry under the per-campaign guard.
	RecordOrder(ctx context.Context, req RecordOrderRequest) (ConsumeResult, error)
	GetQuotaStatus(ctx context.Context, campaignID snowflake.ID) (QuotaStatusView, error)
	GetCampaign(ctx context.Context, id snowflake.ID) (Campaign, error)

	CreateCampaign(ctx context.Context, actor accountdomain.User, req CreateCampaignRequest) (Campaign, error)
	SetOrderLimit(ctx context.Context, actor accountdomain.User, campaignID snowflake.ID, role accountdomain.Role, limit int64) (pkgdb.UpsertResult, error)
	CreateNotificationRule(ctx context.Context, actor accountdomain.User, req CreateNotificationRuleRequest) (NotificationRule, error)

	// MaybeNotify dispatches the rule when its threshold is met and its window elapsed.
	MaybeNotify(ctx context.Context, campaign Campaign, rule NotificationRule, consumed int64) (bool, error)
	// RecheckNotifications re-evaluates every active rule of the campaign.
	RecheckNotifications(ctx context.Context, campaignID snowflake.ID) (int, error)
}

var (
	ErrNotFound         = errors.New("not_found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidQuota     = errors.New("invalid_quota")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidLimit     = errors.New("invalid_limit")
	ErrInvalidThreshold = errors.New("invalid_threshold")
	ErrInvalidFrequency = errors.New("invalid_frequency")
	ErrNoRecipients     = errors.New("no_recipients")
	ErrLimitExceeded    = errors.New("order_limit_exceeded")
	ErrQuotaExceeded    = errors.New("campaign_quota_exceeded")
	ErrLedgerBusy       = errors.New("ledger_busy")
)
