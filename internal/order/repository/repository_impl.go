package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPendingOrder(ctx context.Context, db *gorm.DB, order *domain.PendingOrder) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pending_orders (id, campaign_id, company_id, user_id, quota, order_line_requests, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.CampaignID,
		order.CompanyID,
		order.UserID,
		order.Quota,
		order.OrderLineRequests,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindPendingOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PendingOrder, error) {
	var order domain.PendingOrder
	err := db.WithContext(ctx).Raw(
		`SELECT id, campaign_id, company_id, user_id, quota, order_line_requests, created_at, updated_at
		 FROM pending_orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}
