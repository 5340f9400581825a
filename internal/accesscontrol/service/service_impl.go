package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/authorization"
	"github.com/smallbiznis/merchline/internal/cache"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/config"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       domain.Repository
	AccountSvc accountdomain.Service
	Authz      authorization.Service
	Membership *accountdomain.MembershipEvents `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	accountSvc accountdomain.Service
	authz      authorization.Service

	cfg       config.Config
	tagsCache cache.Cache[snowflake.ID, domain.TagSet]
}

func New(p Params) domain.Service {
	svc := &Service{
		db:         p.DB,
		log:        p.Log.Named("accesscontrol.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		accountSvc: p.AccountSvc,
		authz:      p.Authz,
		cfg:        p.Config,
		tagsCache:  cache.NewTTLCache[snowflake.ID, domain.TagSet](),
	}
	p.Membership.Subscribe(func(_ context.Context, _, userID snowflake.ID) {
		svc.tagsCache.Delete(userID)
	})
	return svc
}

func (s *Service) ResolveVisibleTags(ctx context.Context, user accountdomain.User) (domain.TagSet, error) {
	if s.authz.Can(user.Role, authorization.ObjectCatalog, authorization.ActionCatalogViewAll) {
		return domain.AllTags(), nil
	}

	if cached, ok := s.tagsCache.Get(user.ID); ok {
		return cached, nil
	}

	refs := []domain.MemberRef{domain.UserRef(user.ID)}
	if user.CompanyID != nil {
		refs = append(refs, domain.CompanyRef(*user.CompanyID))

		groupIDs, err := s.accountSvc.GroupIDsForUser(ctx, user)
		if err != nil {
			return domain.TagSet{}, err
		}
		for _, id := range groupIDs {
			refs = append(refs, domain.GroupRef(id))
		}
	}

	groups, err := s.repo.FindGroupsForMembers(ctx, s.db, refs)
	if err != nil {
		return domain.TagSet{}, err
	}

	groupIDs := make([]snowflake.ID, 0, len(groups))
	for _, group := range groups {
		// a company-owned group never leaks to users of another tenant
		if group.CompanyID != nil && !user.BelongsTo(*group.CompanyID) {
			s.log.Warn("ignoring foreign access control group",
				zap.String("user_id", user.ID.String()),
				zap.String("acg_id", group.ID.String()),
			)
			continue
		}
		groupIDs = append(groupIDs, group.ID)
	}

	tagIDs, err := s.repo.FindGrantedTagIDs(ctx, s.db, groupIDs)
	if err != nil {
		return domain.TagSet{}, err
	}

	set := domain.NewTagSet(tagIDs...)
	s.tagsCache.Set(user.ID, set, s.cfg.ACLCacheTTL)
	return set, nil
}

func (s *Service) CreateGroup(ctx context.Context, actor accountdomain.User, req domain.CreateGroupRequest) (domain.Group, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return domain.Group{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Group{}, domain.ErrInvalidName
	}

	companyID := req.CompanyID
	if !actor.IsAdmin() {
		if actor.CompanyID == nil {
			return domain.Group{}, domain.ErrForbidden
		}
		if companyID != nil && *companyID != *actor.CompanyID {
			return domain.Group{}, domain.ErrForbidden
		}
		companyID = actor.CompanyID
	}
	if companyID != nil {
		if _, err := s.accountSvc.GetCompany(ctx, *companyID); err != nil {
			return domain.Group{}, mapAccountErr(err)
		}
	}

	now := s.clock.Now()
	group := domain.Group{
		ID:          s.genID.Generate(),
		CompanyID:   companyID,
		Name:        name,
		Slug:        slug.Make(name),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertGroup(ctx, s.db, &group); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.Group{}, domain.ErrAlreadyExists
		}
		return domain.Group{}, err
	}

	s.log.Info("access control group created",
		zap.String("acg_id", group.ID.String()),
		zap.String("slug", group.Slug),
		zap.String("actor_id", actor.ID.String()),
	)
	return group, nil
}

func (s *Service) GetGroup(ctx context.Context, actor accountdomain.User, id snowflake.ID) (domain.GroupDetail, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return domain.GroupDetail{}, err
	}
	group, err := s.loadManagedGroup(ctx, actor, id)
	if err != nil {
		return domain.GroupDetail{}, err
	}
	members, err := s.repo.ListMembers(ctx, s.db, group.ID)
	if err != nil {
		return domain.GroupDetail{}, err
	}
	return domain.GroupDetail{Group: group, Members: members}, nil
}

func (s *Service) ListGroups(ctx context.Context, actor accountdomain.User) ([]domain.Group, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return nil, err
	}
	var scope *snowflake.ID
	if !actor.IsAdmin() {
		if actor.CompanyID == nil {
			return nil, domain.ErrForbidden
		}
		scope = actor.CompanyID
	}
	return s.repo.ListGroups(ctx, s.db, scope)
}

func (s *Service) AddMember(ctx context.Context, actor accountdomain.User, groupID snowflake.ID, ref domain.MemberRef) (pkgdb.UpsertResult, error) {
	if !ref.Valid() {
		return "", domain.ErrInvalidMember
	}
	if err := s.authorizeManage(ctx, actor); err != nil {
		return "", err
	}
	group, err := s.loadManagedGroup(ctx, actor, groupID)
	if err != nil {
		return "", err
	}
	if err := s.checkMemberTenancy(ctx, group, ref); err != nil {
		return "", err
	}

	result, err := s.repo.UpsertMember(ctx, s.db, group.ID, ref, s.clock.Now())
	if err != nil {
		return "", err
	}
	s.invalidate(result)
	return result, nil
}

func (s *Service) RemoveMember(ctx context.Context, actor accountdomain.User, groupID snowflake.ID, ref domain.MemberRef) error {
	if !ref.Valid() {
		return domain.ErrInvalidMember
	}
	if err := s.authorizeManage(ctx, actor); err != nil {
		return err
	}
	group, err := s.loadManagedGroup(ctx, actor, groupID)
	if err != nil {
		return err
	}
	removed, err := s.repo.SoftDeleteMember(ctx, s.db, group.ID, ref, s.clock.Now())
	if err != nil {
		return err
	}
	if removed {
		s.tagsCache.Purge()
	}
	return nil
}

func (s *Service) GrantTag(ctx context.Context, actor accountdomain.User, groupID, tagID snowflake.ID) (pkgdb.UpsertResult, error) {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return "", err
	}
	group, err := s.loadManagedGroup(ctx, actor, groupID)
	if err != nil {
		return "", err
	}

	tag, err := s.repo.FindTagByID(ctx, s.db, tagID)
	if err != nil {
		return "", err
	}
	if tag == nil {
		return "", domain.ErrNotFound
	}
	if tag.CompanyID != nil && (group.CompanyID == nil || *group.CompanyID != *tag.CompanyID) {
		return "", domain.ErrCrossTenant
	}

	result, err := s.repo.UpsertTag(ctx, s.db, group.ID, tag.ID, s.clock.Now())
	if err != nil {
		return "", err
	}
	s.invalidate(result)
	return result, nil
}

func (s *Service) RevokeTag(ctx context.Context, actor accountdomain.User, groupID, tagID snowflake.ID) error {
	if err := s.authorizeManage(ctx, actor); err != nil {
		return err
	}
	group, err := s.loadManagedGroup(ctx, actor, groupID)
	if err != nil {
		return err
	}
	removed, err := s.repo.SoftDeleteTag(ctx, s.db, group.ID, tagID, s.clock.Now())
	if err != nil {
		return err
	}
	if removed {
		s.tagsCache.Purge()
	}
	return nil
}

func (s *Service) authorizeManage(ctx context.Context, actor accountdomain.User) error {
	err := s.authz.Authorize(ctx, actor, authorization.ObjectAccessControlGroup, authorization.ActionAccessControlGroupManage)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, authorization.ErrInvalidActor):
		return domain.ErrForbidden
	default:
		return err
	}
}

// loadManagedGroup fetches the group and enforces that non-admins only touch their own company's groups.
func (s *Service) loadManagedGroup(ctx context.Context, actor accountdomain.User, id snowflake.ID) (domain.Group, error) {
	group, err := s.repo.FindGroupByID(ctx, s.db, id)
	if err != nil {
		return domain.Group{}, err
	}
	if group == nil {
		return domain.Group{}, domain.ErrNotFound
	}
	if actor.IsAdmin() {
		return *group, nil
	}
	if group.CompanyID == nil || !actor.BelongsTo(*group.CompanyID) {
		return domain.Group{}, domain.ErrNotFound
	}
	return *group, nil
}

func (s *Service) checkMemberTenancy(ctx context.Context, group domain.Group, ref domain.MemberRef) error {
	switch ref.Kind {
	case domain.MemberUser:
		user, err := s.accountSvc.GetUser(ctx, ref.ID)
		if err != nil {
			return mapAccountErr(err)
		}
		if group.CompanyID != nil && !user.BelongsTo(*group.CompanyID) {
			return domain.ErrCrossTenant
		}
	case domain.MemberCompany:
		company, err := s.accountSvc.GetCompany(ctx, ref.ID)
		if err != nil {
			return mapAccountErr(err)
		}
		if group.CompanyID != nil && *group.CompanyID != company.ID {
			return domain.ErrCrossTenant
		}
	case domain.MemberCompanyUserGroup:
		userGroup, err := s.accountSvc.GetGroup(ctx, ref.ID)
		if err != nil {
			return mapAccountErr(err)
		}
		if group.CompanyID != nil && *group.CompanyID != userGroup.CompanyID {
			return domain.ErrCrossTenant
		}
	default:
		return domain.ErrInvalidMember
	}
	return nil
}

func (s *Service) invalidate(result pkgdb.UpsertResult) {
	if result.Changed() {
		s.tagsCache.Purge()
	}
}

func mapAccountErr(err error) error {
	if errors.Is(err, accountdomain.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}
