package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	"github.com/smallbiznis/merchline/internal/accesscontrol/repository"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	accountrepo "github.com/smallbiznis/merchline/internal/account/repository"
	accountservice "github.com/smallbiznis/merchline/internal/account/service"
	"github.com/smallbiznis/merchline/internal/authorization"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/config"
	"github.com/smallbiznis/merchline/internal/testutil"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	accounts accountdomain.Service
	svc      domain.Service

	acme, globex                accountdomain.Company
	admin, acmeAdmin, globexAdm accountdomain.User
	alice, bob, carol           accountdomain.User
	vip                         accountdomain.CompanyUserGroup
	basicTag, premiumTag        snowflake.ID
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	ctx := context.Background()

	db := testutil.OpenSQLite(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))

	events := accountdomain.NewMembershipEvents()
	accounts := accountservice.New(accountservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: accountrepo.Provide(), Events: events,
	})
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	f := &fixture{db: db, node: node, clock: clk, accounts: accounts}
	f.svc = New(Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Config: cfg,
		Repo: repository.Provide(), AccountSvc: accounts, Authz: authz, Membership: events,
	})

	f.acme, err = accounts.CreateCompany(ctx, accountdomain.CreateCompanyRequest{Name: "Acme"})
	require.NoError(t, err)
	f.globex, err = accounts.CreateCompany(ctx, accountdomain.CreateCompanyRequest{Name: "Globex"})
	require.NoError(t, err)

	mkUser := func(company *snowflake.ID, role accountdomain.Role, email string) accountdomain.User {
		u, err := accounts.CreateUser(ctx, accountdomain.CreateUserRequest{CompanyID: company, Role: role, Email: email})
		require.NoError(t, err)
		return u
	}
	f.admin = mkUser(nil, accountdomain.RoleAdmin, "root@merchline.test")
	f.acmeAdmin = mkUser(&f.acme.ID, accountdomain.RoleCompanyAdministrator, "boss@acme.test")
	f.globexAdm = mkUser(&f.globex.ID, accountdomain.RoleCompanyAdministrator, "boss@globex.test")
	f.alice = mkUser(&f.acme.ID, accountdomain.RoleEmployee, "alice@acme.test")
	f.bob = mkUser(&f.acme.ID, accountdomain.RoleEmployee, "bob@acme.test")
	f.carol = mkUser(&f.globex.ID, accountdomain.RoleEmployee, "carol@globex.test")

	f.vip, err = accounts.CreateGroup(ctx, accountdomain.CreateGroupRequest{CompanyID: f.acme.ID, Name: "VIP"})
	require.NoError(t, err)
	require.NoError(t, accounts.AddGroupMember(ctx, f.vip.ID, f.alice.ID))

	f.basicTag = f.insertTag(t, nil, "basic")
	f.premiumTag = f.insertTag(t, nil, "premium")
	return f
}

func (f *fixture) insertTag(t *testing.T, companyID *snowflake.ID, name string) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO product_category_tags (id, company_id, name, type, created_at, updated_at) VALUES (?, ?, ?, 'category', ?, ?)`,
		id, companyID, name, f.clock.Now(), f.clock.Now(),
	).Error)
	return id
}

func (f *fixture) grant(t *testing.T, owner *snowflake.ID, name string, member domain.MemberRef, tags ...snowflake.ID) domain.Group {
	t.Helper()
	ctx := context.Background()
	group, err := f.svc.CreateGroup(ctx, f.admin, domain.CreateGroupRequest{CompanyID: owner, Name: name})
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, f.admin, group.ID, member)
	require.NoError(t, err)
	for _, tag := range tags {
		_, err = f.svc.GrantTag(ctx, f.admin, group.ID, tag)
		require.NoError(t, err)
	}
	return group
}

func TestResolveAdminSeesEverything(t *testing.T) {
	f := newFixture(t, config.Config{})
	set, err := f.svc.ResolveVisibleTags(context.Background(), f.admin)
	require.NoError(t, err)
	assert.True(t, set.All())
	assert.True(t, set.Contains(snowflake.ID(123456)))
}

func TestResolveWithoutGrantsIsEmpty(t *testing.T) {
	f := newFixture(t, config.Config{})
	set, err := f.svc.ResolveVisibleTags(context.Background(), f.alice)
	require.NoError(t, err)
	assert.False(t, set.All())
	assert.True(t, set.IsEmpty())
}

func TestResolveUnionsUserCompanyAndGroupGrants(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	direct := f.insertTag(t, nil, "direct")

	f.grant(t, &f.acme.ID, "Premium for VIP", domain.GroupRef(f.vip.ID), f.premiumTag)
	f.grant(t, &f.acme.ID, "All Acme staff", domain.CompanyRef(f.acme.ID), f.basicTag)
	f.grant(t, nil, "Bob personal", domain.UserRef(f.bob.ID), direct)

	alice, err := f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{f.basicTag, f.premiumTag}, alice.IDs())

	bob, err := f.svc.ResolveVisibleTags(ctx, f.bob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{f.basicTag, direct}, bob.IDs())

	carol, err := f.svc.ResolveVisibleTags(ctx, f.carol)
	require.NoError(t, err)
	assert.True(t, carol.IsEmpty())
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.grant(t, &f.acme.ID, "VIP", domain.GroupRef(f.vip.ID), f.premiumTag)

	first, err := f.svc.ResolveVisibleTags(context.Background(), f.alice)
	require.NoError(t, err)
	second, err := f.svc.ResolveVisibleTags(context.Background(), f.alice)
	require.NoError(t, err)
	assert.Equal(t, first.IDs(), second.IDs())
}

func TestResolveIgnoresForeignCompanyGroups(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()

	// A Globex-owned group wrongly listing Acme as member, written around the service checks.
	acgID := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO product_access_control_groups (id, company_id, name, slug, description, created_at, updated_at) VALUES (?, ?, 'leak', 'leak', '', ?, ?)`,
		acgID, f.globex.ID, now, now,
	).Error)
	require.NoError(t, f.db.Exec(
		`INSERT INTO product_access_control_group_members (acg_id, member_type, member_id, created_at, updated_at) VALUES (?, 'company', ?, ?, ?)`,
		acgID, f.acme.ID, now, now,
	).Error)
	require.NoError(t, f.db.Exec(
		`INSERT INTO product_access_control_group_tags (acg_id, product_category_tag_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		acgID, f.premiumTag, now, now,
	).Error)

	set, err := f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
}

func TestResolveExcludesSoftDeletedRows(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	group := f.grant(t, &f.acme.ID, "VIP", domain.GroupRef(f.vip.ID), f.premiumTag, f.basicTag)

	require.NoError(t, f.svc.RevokeTag(ctx, f.admin, group.ID, f.basicTag))
	set, err := f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{f.premiumTag}, set.IDs())

	require.NoError(t, f.db.Exec(`UPDATE product_category_tags SET deleted_at = ? WHERE id = ?`, f.clock.Now(), f.premiumTag).Error)
	set, err = f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())

	require.NoError(t, f.accounts.RemoveGroupMember(ctx, f.vip.ID, f.alice.ID))
	require.NoError(t, f.db.Exec(`UPDATE product_category_tags SET deleted_at = NULL WHERE id = ?`, f.premiumTag).Error)
	set, err = f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())
}

func TestAddMemberReportsUpsertResult(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	group, err := f.svc.CreateGroup(ctx, f.acmeAdmin, domain.CreateGroupRequest{Name: "Field team"})
	require.NoError(t, err)
	require.NotNil(t, group.CompanyID)
	assert.Equal(t, f.acme.ID, *group.CompanyID)
	assert.Equal(t, "field-team", group.Slug)

	ref := domain.UserRef(f.alice.ID)
	result, err := f.svc.AddMember(ctx, f.acmeAdmin, group.ID, ref)
	require.NoError(t, err)
	assert.Equal(t, pkgdb.UpsertCreated, result)

	result, err = f.svc.AddMember(ctx, f.acmeAdmin, group.ID, ref)
	require.NoError(t, err)
	assert.Equal(t, pkgdb.UpsertUnchanged, result)

	require.NoError(t, f.svc.RemoveMember(ctx, f.acmeAdmin, group.ID, ref))
	result, err = f.svc.AddMember(ctx, f.acmeAdmin, group.ID, ref)
	require.NoError(t, err)
	assert.Equal(t, pkgdb.UpsertRestored, result)

	detail, err := f.svc.GetGroup(ctx, f.acmeAdmin, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.MemberRef{ref}, detail.Members)
}

func TestManagementIsTenantScoped(t *testing.T) {
	f := newFixture(t, config.Config{})
	ctx := context.Background()
	group, err := f.svc.CreateGroup(ctx, f.acmeAdmin, domain.CreateGroupRequest{Name: "Acme only"})
	require.NoError(t, err)

	_, err = f.svc.CreateGroup(ctx, f.alice, domain.CreateGroupRequest{Name: "nope"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CreateGroup(ctx, f.acmeAdmin, domain.CreateGroupRequest{CompanyID: &f.globex.ID, Name: "hijack"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.AddMember(ctx, f.globexAdm, group.ID, domain.UserRef(f.carol.ID))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.AddMember(ctx, f.acmeAdmin, group.ID, domain.UserRef(f.carol.ID))
	assert.ErrorIs(t, err, domain.ErrCrossTenant)

	_, err = f.svc.AddMember(ctx, f.acmeAdmin, group.ID, domain.CompanyRef(f.globex.ID))
	assert.ErrorIs(t, err, domain.ErrCrossTenant)

	_, err = f.svc.AddMember(ctx, f.acmeAdmin, group.ID, domain.MemberRef{Kind: "team", ID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidMember)

	globexTag := f.insertTag(t, &f.globex.ID, "globex-only")
	_, err = f.svc.GrantTag(ctx, f.acmeAdmin, group.ID, globexTag)
	assert.ErrorIs(t, err, domain.ErrCrossTenant)

	_, err = f.svc.CreateGroup(ctx, f.acmeAdmin, domain.CreateGroupRequest{Name: "Acme Only"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	acmeGroups, err := f.svc.ListGroups(ctx, f.acmeAdmin)
	require.NoError(t, err)
	assert.Len(t, acmeGroups, 1)

	globexGroups, err := f.svc.ListGroups(ctx, f.globexAdm)
	require.NoError(t, err)
	assert.Empty(t, globexGroups)
}

func TestResolveCacheIsInvalidatedByMutations(t *testing.T) {
	f := newFixture(t, config.Config{ACLCacheTTL: time.Minute})
	ctx := context.Background()
	group := f.grant(t, &f.acme.ID, "VIP", domain.GroupRef(f.vip.ID), f.premiumTag)

	set, err := f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{f.premiumTag}, set.IDs())

	// writes bypassing the service are hidden by the cache
	require.NoError(t, f.db.Exec(`UPDATE product_access_control_group_tags SET deleted_at = ? WHERE acg_id = ?`, f.clock.Now(), group.ID).Error)
	set, err = f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{f.premiumTag}, set.IDs())

	result, err := f.svc.GrantTag(ctx, f.admin, group.ID, f.basicTag)
	require.NoError(t, err)
	assert.Equal(t, pkgdb.UpsertCreated, result)

	set, err = f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{f.basicTag}, set.IDs())

	// company user group membership changes made through the account service
	require.NoError(t, f.accounts.RemoveGroupMember(ctx, f.vip.ID, f.alice.ID))
	set, err = f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.True(t, set.IsEmpty())

	require.NoError(t, f.accounts.AddGroupMember(ctx, f.vip.ID, f.alice.ID))
	set, err = f.svc.ResolveVisibleTags(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{f.basicTag}, set.IDs())

	// bob's cached entry is untouched by alice's membership change
	bobSet, err := f.svc.ResolveVisibleTags(ctx, f.bob)
	require.NoError(t, err)
	assert.True(t, bobSet.IsEmpty())
}
