package service

import (
	"context"
	"errors"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService 处理用户相关的业务逻辑
type UserService struct {
	UserRepo *repository.UserRepository
}

// NewUserService 创建一个新的用户服务实例
func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{
		UserRepo: userRepo,
	}
}

// GetUsers 获取用户列表，支持按角色筛选和分页
func (s *UserService) GetUsers(ctx context.Context, role model.UserRole, page, limit int) ([]model.User, int64, error) {
	if role != "" && !role.Valid() {
		return nil, 0, util.ErrValidation
	}
	if page < 1 {
		page = 1
	}
	return s.UserRepo.List(ctx, role, page, limit)
}

// GetUserByID 根据ID获取用户信息
func (s *UserService) GetUserByID(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, util.ErrUserNotFound)
	}
	return user, nil
}

type UpdateProfileReq struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Password  *string `json:"password" binding:"omitempty,min=6"`
}

// UpdateProfile 更新当前用户资料
func (s *UserService) UpdateProfile(ctx context.Context, userID uint, req UpdateProfileReq) (*model.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != user.Email {
			existing, err := s.UserRepo.FindByEmail(ctx, email)
			if err == nil && existing.ID != user.ID {
				return nil, util.ErrEmailRegistered
			} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			user.Email = email
		}
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.Password = string(hashed)
	}

	if err := s.UserRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetDisabled 管理员禁用或启用账号
func (s *UserService) SetDisabled(ctx context.Context, actor util.Actor, id uint, disabled bool) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, util.ErrPermissionDenied
	}
	if id == actor.UserID && disabled {
		return nil, util.ErrValidation
	}
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Disabled = disabled
	if err := s.UserRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
