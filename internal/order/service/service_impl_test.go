package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accesscontroldomain "github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	accesscontrolrepo "github.com/smallbiznis/merchline/internal/accesscontrol/repository"
	accesscontrolservice "github.com/smallbiznis/merchline/internal/accesscontrol/service"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	accountrepo "github.com/smallbiznis/merchline/internal/account/repository"
	accountservice "github.com/smallbiznis/merchline/internal/account/service"
	"github.com/smallbiznis/merchline/internal/authorization"
	campaigndomain "github.com/smallbiznis/merchline/internal/campaign/domain"
	campaignrepo "github.com/smallbiznis/merchline/internal/campaign/repository"
	campaignservice "github.com/smallbiznis/merchline/internal/campaign/service"
	catalogdomain "github.com/smallbiznis/merchline/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/merchline/internal/catalog/repository"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/config"
	"github.com/smallbiznis/merchline/internal/lock"
	"github.com/smallbiznis/merchline/internal/order/domain"
	"github.com/smallbiznis/merchline/internal/order/repository"
	orderquantitydomain "github.com/smallbiznis/merchline/internal/orderquantity/domain"
	orderquantityservice "github.com/smallbiznis/merchline/internal/orderquantity/service"
	"github.com/smallbiznis/merchline/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingDispatcher struct {
	sent []campaigndomain.Message
}

func (d *recordingDispatcher) Send(_ context.Context, _ []string, msg campaigndomain.Message) error {
	d.sent = append(d.sent, msg)
	return nil
}

type orderFixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	clock       *clock.FakeClock
	svc         domain.Service
	campaigns   campaigndomain.Service
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
	aclRepo     accesscontroldomain.Repository
	dispatcher  *recordingDispatcher

	acme     snowflake.ID
	globex   snowflake.ID
	manager  accountdomain.User
	employee accountdomain.User
	outsider accountdomain.User
	admin    accountdomain.User
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db := testutil.OpenSQLite(t)
	node := testutil.Node(t)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))

	f := &orderFixture{
		db:          db,
		node:        node,
		clock:       clk,
		repo:        repository.Provide(),
		catalogRepo: catalogrepo.Provide(),
		aclRepo:     accesscontrolrepo.Provide(),
		dispatcher:  &recordingDispatcher{},
		acme:        snowflake.ID(1001),
		globex:      snowflake.ID(1002),
	}
	f.admin = accountdomain.User{ID: 1, Role: accountdomain.RoleAdmin}
	f.manager = accountdomain.User{ID: 2, CompanyID: &f.acme, Role: accountdomain.RoleCampaignManager}
	f.employee = accountdomain.User{ID: 3, CompanyID: &f.acme, Role: accountdomain.RoleEmployee}
	f.outsider = accountdomain.User{ID: 4, CompanyID: &f.globex, Role: accountdomain.RoleEmployee}

	catalogRepo := f.catalogRepo
	accounts := accountservice.New(accountservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: accountrepo.Provide(),
	})
	acl := accesscontrolservice.New(accesscontrolservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Config: config.Config{},
		Repo: f.aclRepo, AccountSvc: accounts, Authz: authz,
	})
	f.campaigns = campaignservice.New(campaignservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Repo:       campaignrepo.Provide(),
		Locker:     lock.NewKeyedMutex(),
		Dispatcher: f.dispatcher,
		Authz:      authz,
	})
	f.svc = New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  f.repo,
		Validator: orderquantityservice.New(orderquantityservice.Params{
			DB: db, Log: zap.NewNop(), CatalogRepo: catalogRepo, AccessControl: acl,
		}),
		CampaignSvc: f.campaigns,
		Authz:       authz,
	})

	now := clk.Now()
	for _, sku := range []string{"TEE-01", "MUG-01"} {
		require.NoError(t, catalogRepo.InsertProduct(context.Background(), db, &catalogdomain.Product{
			ID:                   node.Generate(),
			Name:                 sku,
			SKU:                  sku,
			MerchantSKU:          sku,
			PriceAmount:          decimal.NewFromInt(12),
			PriceCurrency:        "EUR",
			MinimumOrderQuantity: 2,
			CreatedAt:            now,
			UpdatedAt:            now,
		}))
	}
	return f
}

func (f *orderFixture) product(t *testing.T, companyID *snowflake.ID, sku string) snowflake.ID {
	t.Helper()
	now := f.clock.Now()
	p := catalogdomain.Product{
		ID:                   f.node.Generate(),
		CompanyID:            companyID,
		Name:                 sku,
		SKU:                  sku,
		MerchantSKU:          sku,
		PriceAmount:          decimal.NewFromInt(12),
		PriceCurrency:        "EUR",
		MinimumOrderQuantity: 1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(t, f.catalogRepo.InsertProduct(context.Background(), f.db, &p))
	return p.ID
}

func (f *orderFixture) tag(t *testing.T, productID snowflake.ID, name string) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO product_category_tags (id, name, type, created_at, updated_at) VALUES (?, ?, 'category', ?, ?)`,
		id, name, now, now,
	).Error)
	_, err := f.catalogRepo.UpsertProductTag(context.Background(), f.db, productID, id, now)
	require.NoError(t, err)
	return id
}

func (f *orderFixture) grant(t *testing.T, member accesscontroldomain.MemberRef, tagID snowflake.ID) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	group := accesscontroldomain.Group{
		ID: f.node.Generate(), CompanyID: &f.acme, Name: "VIP", Slug: "vip", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.aclRepo.InsertGroup(ctx, f.db, &group))
	_, err := f.aclRepo.UpsertMember(ctx, f.db, group.ID, member, now)
	require.NoError(t, err)
	_, err = f.aclRepo.UpsertTag(ctx, f.db, group.ID, tagID, now)
	require.NoError(t, err)
}

func (f *orderFixture) campaign(t *testing.T, quota int64) campaigndomain.Campaign {
	t.Helper()
	c, err := f.campaigns.CreateCampaign(context.Background(), f.manager, campaigndomain.CreateCampaignRequest{
		CompanyID: f.acme, Name: "Welcome kit", Quota: quota,
	})
	require.NoError(t, err)
	return c
}

func (f *orderFixture) countOrders(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM pending_orders`).Scan(&n).Error)
	return n
}

func TestSubmitPersistsPendingOrder(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 100)
	lines := []orderquantitydomain.Line{
		{ArticleNumber: "TEE-01", Quantity: 3, ItemName: "Tee"},
		{ArticleNumber: "MUG-01", Quantity: 2},
	}

	resp, err := f.svc.Submit(context.Background(), f.employee, domain.SubmitRequest{CampaignID: c.ID, Lines: lines})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Quota)
	assert.Equal(t, int64(5), resp.Consumed)
	assert.Equal(t, campaigndomain.StatusUnderLimit, resp.Status)
	assert.Len(t, resp.Lines, 2)

	stored, err := f.repo.FindPendingOrderByID(context.Background(), f.db, resp.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, c.ID, stored.CampaignID)
	assert.Equal(t, f.acme, stored.CompanyID)
	assert.Equal(t, f.employee.ID, stored.UserID)
	assert.Equal(t, []orderquantitydomain.Line(stored.OrderLineRequests), lines)
}

func TestSubmitExplicitQuota(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 0)

	resp, err := f.svc.Submit(context.Background(), f.employee, domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "TEE-01", Quantity: 4}},
		Quota:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Quota)
	assert.Equal(t, int64(1), resp.Consumed)
}

func TestSubmitRejectsInvalidLinesWithoutConsuming(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 100)

	_, err := f.svc.Submit(context.Background(), f.employee, domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "TEE-01", Quantity: 1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, orderquantitydomain.ErrQuantityBelowMinimum)
	var lineErr *orderquantitydomain.LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, "TEE-01", lineErr.ArticleNumber)

	_, err = f.svc.Submit(context.Background(), f.employee, domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "NOPE", Quantity: 3}},
	})
	assert.ErrorIs(t, err, orderquantitydomain.ErrNotFound)

	status, err := f.campaigns.GetQuotaStatus(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Consumed)
	assert.Equal(t, int64(0), f.countOrders(t))
}

func TestSubmitQuotaExceededLeavesNoPendingOrder(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 4)

	_, err := f.svc.Submit(context.Background(), f.employee, domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "TEE-01", Quantity: 5}},
	})
	assert.ErrorIs(t, err, campaigndomain.ErrQuotaExceeded)
	assert.Equal(t, int64(0), f.countOrders(t))
}

func TestSubmitEnforcesRoleLimit(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 0)
	_, err := f.campaigns.SetOrderLimit(context.Background(), f.manager, c.ID, accountdomain.RoleEmployee, 1)
	require.NoError(t, err)
	req := domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "MUG-01", Quantity: 2}},
	}

	resp, err := f.svc.Submit(context.Background(), f.employee, req)
	require.NoError(t, err)
	assert.Equal(t, campaigndomain.StatusOverLimit, resp.Status)

	_, err = f.svc.Submit(context.Background(), f.employee, req)
	assert.ErrorIs(t, err, campaigndomain.ErrLimitExceeded)
	assert.Equal(t, int64(1), f.countOrders(t))
}

func TestSubmitTenancy(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 0)
	req := domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "MUG-01", Quantity: 2}},
	}

	_, err := f.svc.Submit(context.Background(), f.outsider, req)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Submit(context.Background(), f.admin, req)
	assert.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), accountdomain.User{}, req)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Submit(context.Background(), f.employee, domain.SubmitRequest{CampaignID: snowflake.ID(99), Lines: req.Lines})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitFiresThresholdNotification(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 10)
	_, err := f.campaigns.CreateNotificationRule(context.Background(), f.manager, campaigndomain.CreateNotificationRuleRequest{
		CampaignID: c.ID,
		Threshold:  50,
		Recipients: []string{"ops@acme.test"},
	})
	require.NoError(t, err)

	resp, err := f.svc.Submit(context.Background(), f.employee, domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "TEE-01", Quantity: 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Notified)
	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, int64(6), f.dispatcher.sent[0].Consumed)
}

func TestSubmitRejectsProductsOfAnotherCompany(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 100)
	f.product(t, &f.globex, "GLOBEX-ONLY")
	f.product(t, &f.acme, "ACME-ONLY")
	ctx := context.Background()

	foreign := []orderquantitydomain.Line{{ArticleNumber: "GLOBEX-ONLY", Quantity: 3}}
	_, err := f.svc.Submit(ctx, f.employee, domain.SubmitRequest{CampaignID: c.ID, Lines: foreign})
	assert.ErrorIs(t, err, orderquantitydomain.ErrNotFound)

	// admins order on behalf of the campaign's company only
	_, err = f.svc.Submit(ctx, f.admin, domain.SubmitRequest{CampaignID: c.ID, Lines: foreign})
	assert.ErrorIs(t, err, orderquantitydomain.ErrNotFound)

	status, err := f.campaigns.GetQuotaStatus(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Consumed)
	assert.Equal(t, int64(0), f.countOrders(t))

	resp, err := f.svc.Submit(ctx, f.employee, domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "ACME-ONLY", Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Consumed)
}

func TestSubmitRequiresCatalogVisibility(t *testing.T) {
	f := newOrderFixture(t)
	c := f.campaign(t, 0)
	productID := f.product(t, nil, "PREMIUM-HOODIE")
	premium := f.tag(t, productID, "premium")
	req := domain.SubmitRequest{
		CampaignID: c.ID,
		Lines:      []orderquantitydomain.Line{{ArticleNumber: "PREMIUM-HOODIE", Quantity: 1}},
	}
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.employee, req)
	assert.ErrorIs(t, err, orderquantitydomain.ErrNotFound)
	assert.Equal(t, int64(0), f.countOrders(t))

	// admins see every tag
	_, err = f.svc.Submit(ctx, f.admin, req)
	require.NoError(t, err)

	f.grant(t, accesscontroldomain.UserRef(f.employee.ID), premium)
	_, err = f.svc.Submit(ctx, f.employee, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.countOrders(t))
}
