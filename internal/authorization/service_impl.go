package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectCatalog            = "catalog"
	ObjectAccessControlGroup = "access_control_group"
	ObjectCampaign           = "campaign"
)

const (
	ActionCatalogViewAll = "catalog.view_all"
	ActionCatalogManage  = "catalog.manage"

	ActionAccessControlGroupManage = "access_control_group.manage"

	ActionCampaignManage  = "campaign.manage"
	ActionCampaignOrder   = "campaign.order"
	ActionCampaignViewAny = "campaign.view_any"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, user accountdomain.User, object string, action string) error {
	if user.ID == 0 || !user.Role.Valid() {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(user.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("user_id", user.ID.String()),
			zap.String("role", string(user.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// Can reports whether the role holds the capability. Enforcer errors deny.
func (s *ServiceImpl) Can(role accountdomain.Role, object string, action string) bool {
	if !role.Valid() {
		return false
	}
	allowed, err := s.enforcer.Enforce(roleSubject(role), object, action)
	if err != nil {
		s.log.Warn("policy evaluation failed", zap.Error(err))
		return false
	}
	return allowed
}

func roleSubject(role accountdomain.Role) string {
	return "role:" + string(role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	admin := roleSubject(accountdomain.RoleAdmin)
	companyAdmin := roleSubject(accountdomain.RoleCompanyAdministrator)
	campaignManager := roleSubject(accountdomain.RoleCampaignManager)
	employee := roleSubject(accountdomain.RoleEmployee)
	user := roleSubject(accountdomain.RoleUser)

	policies := [][]string{
		// Platform admin bypasses catalog ACLs
		{admin, ObjectCatalog, ActionCatalogViewAll},
		{admin, ObjectCatalog, ActionCatalogManage},
		{admin, ObjectAccessControlGroup, ActionAccessControlGroupManage},
		{admin, ObjectCampaign, ActionCampaignManage},
		{admin, ObjectCampaign, ActionCampaignViewAny},

		{companyAdmin, ObjectAccessControlGroup, ActionAccessControlGroupManage},
		{companyAdmin, ObjectCampaign, ActionCampaignManage},

		{campaignManager, ObjectCampaign, ActionCampaignManage},
	}

	// Every role may order through a campaign of its own company.
	for _, role := range []string{admin, companyAdmin, campaignManager, employee, user} {
		policies = append(policies, []string{role, ObjectCampaign, ActionCampaignOrder})
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
