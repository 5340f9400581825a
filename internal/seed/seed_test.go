package seed

import (
	"context"
	"testing"
	"time"

	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	accountrepo "github.com/smallbiznis/merchline/internal/account/repository"
	"github.com/smallbiznis/merchline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePlatformAdminIsIdempotent(t *testing.T) {
	db := testutil.OpenSQLite(t)
	node := testutil.Node(t)
	repo := accountrepo.Provide()
	ctx := context.Background()

	first, err := EnsurePlatformAdmin(ctx, db, node, repo, " Admin@Merchline.Test ")
	require.NoError(t, err)
	assert.Equal(t, accountdomain.RoleAdmin, first.Role)
	assert.Equal(t, "admin@merchline.test", first.Email)
	assert.Nil(t, first.CompanyID)

	second, err := EnsurePlatformAdmin(ctx, db, node, repo, "admin@merchline.test")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Table("users").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnsurePlatformAdminRejectsNonAdmin(t *testing.T) {
	db := testutil.OpenSQLite(t)
	node := testutil.Node(t)
	repo := accountrepo.Provide()
	ctx := context.Background()

	companyID := node.Generate()
	now := time.Now().UTC()
	require.NoError(t, repo.InsertUser(ctx, db, &accountdomain.User{
		ID: node.Generate(), CompanyID: &companyID, Role: accountdomain.RoleEmployee,
		Email: "staff@merchline.test", CreatedAt: now, UpdatedAt: now,
	}))

	_, err := EnsurePlatformAdmin(ctx, db, node, repo, "staff@merchline.test")
	assert.ErrorIs(t, err, ErrRoleConflict)

	_, err = EnsurePlatformAdmin(ctx, db, node, repo, "  ")
	assert.ErrorIs(t, err, ErrEmailRequired)
}
