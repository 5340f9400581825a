package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/authorization"
	"github.com/smallbiznis/merchline/internal/campaign/domain"
	"github.com/smallbiznis/merchline/internal/campaign/repository"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/lock"
	"github.com/smallbiznis/merchline/internal/testutil"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Send(ctx context.Context, recipients []string, msg domain.Message) error {
	args := m.Called(ctx, recipients, msg)
	return args.Error(0)
}

type ledgerFixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	dispatcher *mockDispatcher
	svc        domain.Service

	acme     snowflake.ID
	admin    accountdomain.User
	manager  accountdomain.User
	outsider accountdomain.User
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := testutil.OpenSQLite(t)
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)

	f := &ledgerFixture{
		db:         db,
		clock:      clock.NewFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)),
		dispatcher: &mockDispatcher{},
		acme:       snowflake.ID(1001),
	}
	globex := snowflake.ID(1002)
	f.admin = accountdomain.User{ID: 1, Role: accountdomain.RoleAdmin}
	f.manager = accountdomain.User{ID: 2, CompanyID: &f.acme, Role: accountdomain.RoleCampaignManager}
	f.outsider = accountdomain.User{ID: 3, CompanyID: &globex, Role: accountdomain.RoleCompanyAdministrator}

	f.svc = New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      testutil.Node(t),
		Clock:      f.clock,
		Repo:       repository.Provide(),
		Locker:     lock.NewKeyedMutex(),
		Dispatcher: f.dispatcher,
		Authz:      authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	})
	return f
}

func (f *ledgerFixture) campaign(t *testing.T, quota int64) domain.Campaign {
	t.Helper()
	c, err := f.svc.CreateCampaign(context.Background(), f.manager, domain.CreateCampaignRequest{
		CompanyID: f.acme, Name: "Onboarding 2026", Quota: quota,
	})
	require.NoError(t, err)
	return c
}

func (f *ledgerFixture) rule(t *testing.T, req domain.CreateNotificationRuleRequest) domain.NotificationRule {
	t.Helper()
	if len(req.Recipients) == 0 {
		req.Recipients = []string{"ops@acme.test"}
	}
	rule, err := f.svc.CreateNotificationRule(context.Background(), f.manager, req)
	require.NoError(t, err)
	return rule
}

func (f *ledgerFixture) order(campaignID snowflake.ID, quota int64) (domain.ConsumeResult, error) {
	return f.svc.RecordOrder(context.Background(), domain.RecordOrderRequest{
		CampaignID: campaignID,
		Role:       accountdomain.RoleEmployee,
		UserID:     snowflake.ID(42),
		Quota:      quota,
	})
}

func TestRecordOrderConcurrentLimitOfOne(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)
	_, err := f.svc.SetOrderLimit(context.Background(), f.manager, c.ID, accountdomain.RoleEmployee, 1)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]error, 2)
	)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = f.order(c.ID, 1)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrLimitExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	status, err := f.svc.GetQuotaStatus(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Consumed)
	require.Len(t, status.Roles, 1)
	assert.Equal(t, int64(1), status.Roles[0].Orders)
	assert.True(t, status.Roles[0].Exhausted())
}

func TestRecordOrderLimitIsPerRole(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)
	_, err := f.svc.SetOrderLimit(context.Background(), f.manager, c.ID, accountdomain.RoleEmployee, 1)
	require.NoError(t, err)

	result, err := f.order(c.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverLimit, result.Status)
	require.NotNil(t, result.Limit)
	assert.Equal(t, int64(1), *result.Limit)

	_, err = f.order(c.ID, 3)
	assert.ErrorIs(t, err, domain.ErrLimitExceeded)

	other, err := f.svc.RecordOrder(context.Background(), domain.RecordOrderRequest{
		CampaignID: c.ID, Role: accountdomain.RoleUser, UserID: 7, Quota: 2,
	})
	require.NoError(t, err)
	assert.Nil(t, other.Limit)
	assert.Equal(t, int64(5), other.Consumed)
	assert.Equal(t, domain.StatusUnderLimit, other.Status)
}

func TestRecordOrderNegativeLimitIsUnlimited(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)
	now := f.clock.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO campaign_order_limits (id, campaign_id, role, order_limit, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		99, c.ID, string(accountdomain.RoleEmployee), -1, now, now,
	).Error)

	for i := 0; i < 3; i++ {
		_, err := f.order(c.ID, 1)
		require.NoError(t, err)
	}
}

func TestRecordOrderCampaignQuota(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 10)

	result, err := f.order(c.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderLimit, result.Status)

	_, err = f.order(c.ID, 4)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)

	result, err = f.order(c.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(9), result.Consumed)
	assert.Equal(t, domain.StatusNearThreshold, result.Status)

	result, err = f.order(c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverLimit, result.Status)

	status, err := f.svc.GetQuotaStatus(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, int64(0), *status.Remaining)
}

func TestRecordOrderValidation(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)

	_, err := f.order(c.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuota)
	_, err = f.order(snowflake.ID(404), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.RecordOrder(context.Background(), domain.RecordOrderRequest{CampaignID: c.ID, Role: "intern", Quota: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestRecordOrderHookFailureRollsBack(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)
	boom := errors.New("boom")

	var seen domain.QuotaEntry
	_, err := f.svc.RecordOrder(context.Background(), domain.RecordOrderRequest{
		CampaignID: c.ID, Role: accountdomain.RoleEmployee, UserID: 42, Quota: 5,
		OnAppend: func(ctx context.Context, tx *gorm.DB, entry domain.QuotaEntry) error {
			seen = entry
			return boom
		},
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(5), seen.OrderedQuota)
	assert.Equal(t, snowflake.ID(42), seen.CreatedBy)

	status, err := f.svc.GetQuotaStatus(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Consumed)
	assert.Empty(t, status.Roles)
}

func TestNotificationFiresOnceWhenThresholdCrossed(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 100)

	_, err := f.order(c.ID, 85)
	require.NoError(t, err)
	f.rule(t, domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 80, Recipients: []string{" Ops@Acme.test "}})

	f.dispatcher.On("Send", mock.Anything, []string{"ops@acme.test"}, mock.MatchedBy(func(msg domain.Message) bool {
		return msg.Consumed == 90 && msg.Quota == 100 && msg.Threshold == 80
	})).Return(nil).Once()

	result, err := f.order(c.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
	assert.Equal(t, int64(90), result.Consumed)
	assert.Equal(t, domain.StatusNearThreshold, result.Status)
	f.dispatcher.AssertExpectations(t)
}

func TestNotificationSkippedInsideWindow(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 100)

	_, err := f.order(c.ID, 85)
	require.NoError(t, err)
	rule := f.rule(t, domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 80})
	require.NoError(t, f.db.Exec(
		`UPDATE campaign_quota_notifications SET last_sent_at = ? WHERE id = ?`,
		f.clock.Now().Add(-time.Hour), rule.ID,
	).Error)

	result, err := f.order(c.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Notified)
	f.dispatcher.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestDailyNotificationWindow(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)
	f.rule(t, domain.CreateNotificationRuleRequest{
		CampaignID: c.ID, Threshold: 1, ThresholdType: domain.ThresholdAbsolute,
		Frequency: 1, FrequencyUnit: domain.FrequencyDay,
	})
	f.dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.order(c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)

	f.clock.Advance(6 * time.Hour)
	result, err = f.order(c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Notified)

	f.clock.Advance(18 * time.Hour)
	result, err = f.order(c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)

	f.dispatcher.AssertNumberOfCalls(t, "Send", 2)
}

func TestNotificationDispatchFailureIsIsolated(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)
	f.rule(t, domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 1, ThresholdType: domain.ThresholdAbsolute})
	f.dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	result, err := f.order(c.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)

	status, err := f.svc.GetQuotaStatus(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), status.Consumed)
}

func TestPercentRuleWithoutQuotaUsesAbsoluteThreshold(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)
	f.rule(t, domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 10})
	f.dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := f.order(c.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Notified)

	fired, err := f.svc.RecheckNotifications(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	result, err = f.order(c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Notified)
}

func TestRecheckNotificationsHonoursWindow(t *testing.T) {
	f := newLedgerFixture(t)
	c := f.campaign(t, 0)
	_, err := f.order(c.ID, 5)
	require.NoError(t, err)

	f.rule(t, domain.CreateNotificationRuleRequest{
		CampaignID: c.ID, Threshold: 5, ThresholdType: domain.ThresholdAbsolute,
		Frequency: 1, FrequencyUnit: domain.FrequencyWeek,
	})
	f.dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	fired, err := f.svc.RecheckNotifications(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	f.clock.Advance(6 * 24 * time.Hour)
	fired, err = f.svc.RecheckNotifications(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	f.clock.Advance(24 * time.Hour)
	fired, err = f.svc.RecheckNotifications(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	_, err = f.svc.RecheckNotifications(context.Background(), snowflake.ID(404))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetOrderLimitUpsert(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 0)

	result, err := f.svc.SetOrderLimit(ctx, f.manager, c.ID, accountdomain.RoleEmployee, 2)
	require.NoError(t, err)
	assert.Equal(t, pkgdb.UpsertCreated, result)

	result, err = f.svc.SetOrderLimit(ctx, f.manager, c.ID, accountdomain.RoleEmployee, 2)
	require.NoError(t, err)
	assert.Equal(t, pkgdb.UpsertUnchanged, result)

	result, err = f.svc.SetOrderLimit(ctx, f.admin, c.ID, accountdomain.RoleEmployee, 3)
	require.NoError(t, err)
	assert.Equal(t, pkgdb.UpsertUpdated, result)

	_, err = f.svc.SetOrderLimit(ctx, f.manager, c.ID, accountdomain.RoleEmployee, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)

	_, err = f.svc.SetOrderLimit(ctx, f.outsider, c.ID, accountdomain.RoleEmployee, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	employee := accountdomain.User{ID: 9, CompanyID: &f.acme, Role: accountdomain.RoleEmployee}
	_, err = f.svc.SetOrderLimit(ctx, employee, c.ID, accountdomain.RoleEmployee, 1)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	status, err := f.svc.GetQuotaStatus(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, status.Roles, 1)
	require.NotNil(t, status.Roles[0].Limit)
	assert.Equal(t, int64(3), *status.Roles[0].Limit)
	assert.Equal(t, int64(0), status.Roles[0].Orders)
}

func TestCreateNotificationRuleValidation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 100)

	cases := []struct {
		name string
		req  domain.CreateNotificationRuleRequest
		err  error
	}{
		{name: "zero threshold", req: domain.CreateNotificationRuleRequest{CampaignID: c.ID, Recipients: []string{"a@b.c"}}, err: domain.ErrInvalidThreshold},
		{name: "percent above 100", req: domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 120, Recipients: []string{"a@b.c"}}, err: domain.ErrInvalidThreshold},
		{name: "unknown unit", req: domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 50, FrequencyUnit: "hour", Recipients: []string{"a@b.c"}}, err: domain.ErrInvalidFrequency},
		{name: "no recipients", req: domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 50, Recipients: []string{" "}}, err: domain.ErrNoRecipients},
		{name: "bad recipient", req: domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 50, Recipients: []string{"ops"}}, err: domain.ErrNoRecipients},
		{name: "missing campaign", req: domain.CreateNotificationRuleRequest{CampaignID: 404, Threshold: 50, Recipients: []string{"a@b.c"}}, err: domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateNotificationRule(ctx, f.manager, tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	rule := f.rule(t, domain.CreateNotificationRuleRequest{CampaignID: c.ID, Threshold: 75})
	assert.Equal(t, domain.ThresholdPercent, rule.ThresholdType)
	assert.Equal(t, domain.FrequencyDay, rule.FrequencyUnit)
	assert.Equal(t, 1, rule.Frequency)

	// the lowest active percent rule drives NEAR_THRESHOLD
	f.dispatcher.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	_, err := f.order(c.ID, 75)
	require.NoError(t, err)
	status, err := f.svc.GetQuotaStatus(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNearThreshold, status.Status)
}

func TestCreateCampaignTenancy(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCampaign(ctx, f.outsider, domain.CreateCampaignRequest{CompanyID: f.acme, Name: "x"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CreateCampaign(ctx, f.admin, domain.CreateCampaignRequest{CompanyID: f.acme, Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	c, err := f.svc.CreateCampaign(ctx, f.admin, domain.CreateCampaignRequest{CompanyID: f.acme, Name: "Winter", Quota: 5})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignStatusDraft, c.Status)
	assert.Equal(t, "onboarding", c.Type)

	got, err := f.svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, int64(5), got.Quota)
}
