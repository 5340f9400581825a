package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	campaigndomain "github.com/smallbiznis/merchline/internal/campaign/domain"
	orderquantitydomain "github.com/smallbiznis/merchline/internal/orderquantity/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PendingOrder is an accepted order waiting for fulfilment.
type PendingOrder struct {
	ID                snowflake.ID                                  `json:"id"`
	CampaignID        snowflake.ID                                  `json:"campaign_id"`
	CompanyID         snowflake.ID                                  `json:"company_id"`
	UserID            snowflake.ID                                  `json:"user_id"`
	Quota             int64                                         `json:"quota"`
	OrderLineRequests datatypes.JSONSlice[orderquantitydomain.Line] `json:"order_line_requests"`
	CreatedAt         time.Time                                     `json:"created_at"`
	UpdatedAt         time.Time                                     `json:"updated_at"`
}

type Repository interface {
	InsertPendingOrder(ctx context.Context, db *gorm.DB, order *PendingOrder) error
	FindPendingOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PendingOrder, error)
}

type SubmitRequest struct {
	CampaignID snowflake.ID               `json:"-"`
	Lines      []orderquantitydomain.Line `json:"lines"`
	// Quota defaults to the sum of line quantities.
	Quota int64 `json:"quota"`
}

type SubmitResponse struct {
	OrderID  snowflake.ID                     `json:"order_id"`
	Quota    int64                            `json:"quota"`
	Consumed int64                            `json:"consumed"`
	Status   campaigndomain.QuotaStatus       `json:"status"`
	Notified int                              `json:"notified"`
	Lines    []orderquantitydomain.LineBounds `json:"lines"`
}

type Service interface {
	Submit(ctx context.Context, actor accountdomain.User, req SubmitRequest) (SubmitResponse, error)
}

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not_found")
)
