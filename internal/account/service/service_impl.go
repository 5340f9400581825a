package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Events *domain.MembershipEvents `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	events *domain.MembershipEvents
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("account.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		events: p.Events,
	}
}

func (s *Service) CreateCompany(ctx context.Context, req domain.CreateCompanyRequest) (domain.Company, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Company{}, domain.ErrInvalidName
	}

	now := s.clock.Now()
	company := domain.Company{
		ID:        s.genID.Generate(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertCompany(ctx, s.db, &company); err != nil {
		return domain.Company{}, err
	}
	return company, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (domain.User, error) {
	if !req.Role.Valid() {
		return domain.User{}, domain.ErrInvalidRole
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, domain.ErrInvalidEmail
	}
	if req.CompanyID != nil {
		if _, err := s.GetCompany(ctx, *req.CompanyID); err != nil {
			return domain.User{}, err
		}
	} else if req.Role != domain.RoleAdmin {
		return domain.User{}, domain.ErrInvalidCompany
	}

	now := s.clock.Now()
	user := domain.User{
		ID:        s.genID.Generate(),
		CompanyID: req.CompanyID,
		Role:      req.Role,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertUser(ctx, s.db, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (domain.CompanyUserGroup, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CompanyUserGroup{}, domain.ErrInvalidName
	}
	if _, err := s.GetCompany(ctx, req.CompanyID); err != nil {
		return domain.CompanyUserGroup{}, err
	}

	now := s.clock.Now()
	group := domain.CompanyUserGroup{
		ID:        s.genID.Generate(),
		CompanyID: req.CompanyID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertGroup(ctx, s.db, &group); err != nil {
		return domain.CompanyUserGroup{}, err
	}
	return group, nil
}

func (s *Service) AddGroupMember(ctx context.Context, groupID, userID snowflake.ID) error {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.BelongsTo(group.CompanyID) {
		return domain.ErrCrossTenant
	}

	changed, err := s.repo.UpsertGroupMember(ctx, s.db, groupID, userID, s.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		s.log.Debug("group member added",
			zap.String("group_id", groupID.String()),
			zap.String("user_id", userID.String()),
		)
		s.events.Publish(ctx, groupID, userID)
	}
	return nil
}

func (s *Service) RemoveGroupMember(ctx context.Context, groupID, userID snowflake.ID) error {
	changed, err := s.repo.SoftDeleteGroupMember(ctx, s.db, groupID, userID, s.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		s.events.Publish(ctx, groupID, userID)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (domain.User, error) {
	user, err := s.repo.FindUserByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) GetCompany(ctx context.Context, id snowflake.ID) (domain.Company, error) {
	company, err := s.repo.FindCompanyByID(ctx, s.db, id)
	if err != nil {
		return domain.Company{}, err
	}
	if company == nil {
		return domain.Company{}, domain.ErrNotFound
	}
	return *company, nil
}

func (s *Service) GetGroup(ctx context.Context, id snowflake.ID) (domain.CompanyUserGroup, error) {
	group, err := s.repo.FindGroupByID(ctx, s.db, id)
	if err != nil {
		return domain.CompanyUserGroup{}, err
	}
	if group == nil {
		return domain.CompanyUserGroup{}, domain.ErrNotFound
	}
	return *group, nil
}

func (s *Service) GroupIDsForUser(ctx context.Context, user domain.User) ([]snowflake.ID, error) {
	if user.CompanyID == nil {
		return nil, nil
	}
	return s.repo.FindGroupIDsForUser(ctx, s.db, user.ID, *user.CompanyID)
}
