package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/models"
	"gorm.io/gorm"
)

// IdentityService maps authenticated Auth0 subjects to users, roles and businesses
type IdentityService struct {
	db       *gorm.DB
	userInfo UserInfoFetcher
	log      *logger.Logger
}

func NewIdentityService(db *gorm.DB, userInfo UserInfoFetcher, log *logger.Logger) *IdentityService {
	return &IdentityService{db: db, userInfo: userInfo, log: log.With("service", "IdentityService")}
}

// ActorFor builds the command call context of a user
func ActorFor(user *models.User) Actor {
	return Actor{UserID: user.ID, Roles: []string{user.Role}, BusinessID: user.BusinessID}
}

// ResolveActor loads the user behind an Auth0 subject
func (s *IdentityService) ResolveActor(ctx context.Context, auth0ID string) (Actor, *models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		return Actor{}, nil, mapDBError(err, "user profile", CodeConflict)
	}
	return ActorFor(&user), &user, nil
}

// RegisterUser creates the profile of an authenticated subject from its Auth0 userinfo
func (s *IdentityService) RegisterUser(ctx context.Context, auth0ID, accessToken, role string) (*models.User, error) {
	if role == "" {
		role = models.RoleCustomer
	}
	if !models.IsValidRole(role) {
		return nil, validationFailed("unknown role %q", role)
	}
	if s.userInfo == nil {
		return nil, newError(CodeInternal, "user info lookup is not configured")
	}
	info, err := s.userInfo.GetUserInfo(ctx, accessToken)
	if err != nil {
		s.log.Error("userinfo lookup failed", "auth0_id", auth0ID, "error", err)
		return nil, &ServiceError{Code: CodeInternal, Message: "failed to fetch user information from Auth0", Err: err}
	}
	if strings.TrimSpace(info.Email) == "" {
		return nil, validationFailed("email not provided by Auth0")
	}
	if info.Sub != auth0ID {
		s.log.Warn("userinfo subject does not match token", "auth0_id", auth0ID, "userinfo_sub", info.Sub)
		return nil, newError(CodeForbidden, "access token does not belong to the authenticated subject")
	}
	name := info.DisplayName()
	if name == "" {
		return nil, validationFailed("name not provided by Auth0")
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    name,
		Email:   strings.TrimSpace(info.Email),
		Role:    role,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, mapDBError(err, "user with this Auth0 ID or email", CodeConflict)
	}
	return &user, nil
}

// UpdateProfile changes the name and/or email of a user; empty values are kept
func (s *IdentityService) UpdateProfile(ctx context.Context, userID uuid.UUID, name, email string) (*models.User, error) {
	updates := map[string]interface{}{}
	if name = strings.TrimSpace(name); name != "" {
		updates["name"] = name
	}
	if email = strings.TrimSpace(email); email != "" {
		updates["email"] = email
	}
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, mapDBError(err, "user profile", CodeConflict)
	}
	if len(updates) == 0 {
		return &user, nil
	}
	if err := db.Model(&user).Updates(updates).Error; err != nil {
		return nil, mapDBError(err, "user with this email", CodeConflict)
	}
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, mapDBError(err, "user profile", CodeConflict)
	}
	return &user, nil
}

// CreateBusiness registers a print shop owned by the actor and binds the owner to it
func (s *IdentityService) CreateBusiness(ctx context.Context, actor Actor, name string) (*models.Business, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationFailed("business name is required")
	}
	if actor.UserID == uuid.Nil {
		return nil, newError(CodeForbidden, "a user is required to own a business")
	}
	if actor.BusinessID != nil {
		return nil, preconditionNotMet("user already belongs to a business")
	}
	biz := models.Business{Name: name, OwnerID: actor.UserID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&biz).Error; err != nil {
			return mapDBError(err, "business", CodeConflict)
		}
		return mapDBError(tx.Model(&models.User{}).Where("id = ?", actor.UserID).
			Updates(map[string]interface{}{"business_id": biz.ID, "role": models.RoleBusinessOwner}).Error, "user", CodeConflict)
	})
	if err != nil {
		return nil, err
	}
	return &biz, nil
}

// AddStaff binds an existing user to the owner's business with a shop role
func (s *IdentityService) AddStaff(ctx context.Context, owner Actor, userID uuid.UUID, role string) (*models.User, error) {
	if owner.BusinessID == nil || !owner.HasRole(models.RoleBusinessOwner) {
		return nil, newError(CodeForbidden, "only a business owner can add staff")
	}
	if role != models.RoleDesigner && role != models.RoleWorkshopManager {
		return nil, validationFailed("staff role must be %s or %s", models.RoleDesigner, models.RoleWorkshopManager)
	}
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, mapDBError(err, "user", CodeConflict)
	}
	if user.BusinessID != nil && *user.BusinessID != *owner.BusinessID {
		return nil, preconditionNotMet("user belongs to another business")
	}
	user.BusinessID = owner.BusinessID
	user.Role = role
	if err := db.Model(&user).Select("business_id", "role").Updates(&user).Error; err != nil {
		return nil, mapDBError(err, "user", CodeConflict)
	}
	return &user, nil
}
