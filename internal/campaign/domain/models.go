package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"gorm.io/datatypes"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusSubmitted CampaignStatus = "submitted"
)

type Campaign struct {
	ID        snowflake.ID   `json:"id"`
	CompanyID snowflake.ID   `json:"company_id"`
	Name      string         `json:"name"`
	Status    CampaignStatus `json:"status"`
	Type      string         `json:"type"`
	// Quota is the total number of units the campaign may consume. Zero means unlimited.
	Quota     int64     `json:"quota"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuotaEntry is one append-only ledger row written per accepted order.
type QuotaEntry struct {
	ID           snowflake.ID       `json:"id"`
	CampaignID   snowflake.ID       `json:"campaign_id"`
	Role         accountdomain.Role `json:"role"`
	OrderedQuota int64              `json:"ordered_quota"`
	OrderedDate  time.Time          `json:"ordered_date"`
	CreatedBy    snowflake.ID       `json:"created_by"`
	UpdatedBy    snowflake.ID       `json:"updated_by"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// OrderLimit caps how many orders a role may place in a campaign.
type OrderLimit struct {
	ID         snowflake.ID       `json:"id"`
	CampaignID snowflake.ID       `json:"campaign_id"`
	Role       accountdomain.Role `json:"role"`
	Limit      int64              `json:"limit" gorm:"column:order_limit"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

type ThresholdType string

const (
	ThresholdPercent  ThresholdType = "percent"
	ThresholdAbsolute ThresholdType = "absolute"
)

func (t ThresholdType) Valid() bool {
	return t == ThresholdPercent || t == ThresholdAbsolute
}

type FrequencyUnit string

const (
	FrequencyDay   FrequencyUnit = "day"
	FrequencyWeek  FrequencyUnit = "week"
	FrequencyMonth FrequencyUnit = "month"
)

func (u FrequencyUnit) Valid() bool {
	switch u {
	case FrequencyDay, FrequencyWeek, FrequencyMonth:
		return true
	}
	return false
}

// WindowStart returns the latest last-sent time that still allows a new dispatch at now.
func (u FrequencyUnit) WindowStart(now time.Time, frequency int) time.Time {
	if frequency < 1 {
		frequency = 1
	}
	switch u {
	case FrequencyWeek:
		return now.AddDate(0, 0, -7*frequency)
	case FrequencyMonth:
		return now.AddDate(0, -frequency, 0)
	default:
		return now.AddDate(0, 0, -frequency)
	}
}

type NotificationRule struct {
	ID            snowflake.ID                `json:"id"`
	CampaignID    snowflake.ID                `json:"campaign_id"`
	Threshold     int64                       `json:"threshold"`
	ThresholdType ThresholdType               `json:"threshold_type"`
	Recipients    datatypes.JSONSlice[string] `json:"recipients"`
	Frequency     int                         `json:"frequency"`
	FrequencyUnit FrequencyUnit               `json:"frequency_unit"`
	IsActive      bool                        `json:"is_active"`
	LastSentAt    *time.Time                  `json:"last_sent_at,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// Reached reports whether consumed meets the rule threshold. Percent rules fall back to
// an absolute comparison when the campaign has no total quota.
func (r NotificationRule) Reached(consumed, quota int64) bool {
	if r.ThresholdType == ThresholdPercent && quota > 0 {
		return consumed*100 >= r.Threshold*quota
	}
	return consumed >= r.Threshold
}

// Due reports whether the rule's frequency window has elapsed at now.
func (r NotificationRule) Due(now time.Time) bool {
	if r.LastSentAt == nil {
		return true
	}
	return !r.LastSentAt.After(r.FrequencyUnit.WindowStart(now, r.Frequency))
}

type QuotaStatus string

const (
	StatusUnderLimit    QuotaStatus = "UNDER_LIMIT"
	StatusNearThreshold QuotaStatus = "NEAR_THRESHOLD"
	StatusOverLimit     QuotaStatus = "OVER_LIMIT"
)

// ComputeStatus derives the campaign state from consumption. It is never stored.
func ComputeStatus(consumed, quota int64, nearPercent int64) QuotaStatus {
	if quota <= 0 {
		return StatusUnderLimit
	}
	if consumed >= quota {
		return StatusOverLimit
	}
	if consumed*100 >= nearPercent*quota {
		return StatusNearThreshold
	}
	return StatusUnderLimit
}

// RoleUsage is the order count of one role against its optional limit.
type RoleUsage struct {
	Role   accountdomain.Role `json:"role"`
	Orders int64              `json:"orders"`
	Limit  *int64             `json:"limit,omitempty"`
}

func (u RoleUsage) Exhausted() bool {
	return u.Limit != nil && u.Orders >= *u.Limit
}
