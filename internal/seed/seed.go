package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"gorm.io/gorm"
)

var (
	ErrEmailRequired = errors.New("seed_email_required")
	ErrRoleConflict  = errors.New("seed_user_not_admin")
)

// EnsurePlatformAdmin seeds the platform admin used for startup bootstrap.
// An existing user with the same email is returned unchanged when it is already an admin.
func EnsurePlatformAdmin(ctx context.Context, db *gorm.DB, node *snowflake.Node, repo accountdomain.Repository, email string) (accountdomain.User, error) {
	if db == nil || node == nil || repo == nil {
		return accountdomain.User{}, errors.New("seed dependencies are required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return accountdomain.User{}, ErrEmailRequired
	}

	var user accountdomain.User
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).Table("users").Where("email = ?", email).Take(&user).Error
		if err == nil {
			if !user.IsAdmin() {
				return ErrRoleConflict
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		user = accountdomain.User{
			ID:        node.Generate(),
			Role:      accountdomain.RoleAdmin,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return repo.InsertUser(ctx, tx, &user)
	})
	if err != nil {
		return accountdomain.User{}, err
	}
	return user, nil
}
