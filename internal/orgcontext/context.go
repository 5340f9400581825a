package orgcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
)

type userContextKey struct{}

// WithUser stores the authenticated actor in the context.
func WithUser(ctx context.Context, user accountdomain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the authenticated actor, if set.
func UserFromContext(ctx context.Context) (accountdomain.User, bool) {
	if ctx == nil {
		return accountdomain.User{}, false
	}
	user, ok := ctx.Value(userContextKey{}).(accountdomain.User)
	if !ok || user.ID == 0 {
		return accountdomain.User{}, false
	}
	return user, true
}

// CompanyIDFromContext returns the actor's company, if the actor belongs to one.
func CompanyIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	user, ok := UserFromContext(ctx)
	if !ok || user.CompanyID == nil {
		return 0, false
	}
	return *user.CompanyID, true
}
