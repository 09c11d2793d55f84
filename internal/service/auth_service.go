package service

import (
	"context"
	"errors"
	"fmt"
	"mylms_backend/internal/config"
	"mylms_backend/internal/model"
	"mylms_backend/internal/repository"
	"mylms_backend/internal/util"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
	Log      *zap.Logger
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
		Log:      log,
	}
}

type RegisterReq struct {
	Username  string         `json:"username" binding:"required,min=3,max=100"`
	Email     string         `json:"email" binding:"required,email"`
	Password  string         `json:"password" binding:"required,min=6"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Role      model.UserRole `json:"role"`
}

type LoginReq struct {
	// 用户名或邮箱
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResp struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, req RegisterReq) (*model.User, error) {
	role := req.Role
	if role == "" {
		role = model.Student
	}
	// 管理员账号不能自助注册
	if role != model.Student && role != model.Teacher {
		return nil, fmt.Errorf("%w: role must be student or teacher", util.ErrValidation)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if _, err := s.UserRepo.FindByEmail(ctx, email); err == nil {
		return nil, util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if _, err := s.UserRepo.FindByUsername(ctx, username); err == nil {
		return nil, util.ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:  username,
		Email:     email,
		Password:  string(hashedPassword),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      role,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.Log.Info("User registered", zap.Uint("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, login, password string) (*LoginResp, error) {
	user, err := s.UserRepo.FindByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Disabled {
		return nil, util.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}

	if err := s.UserRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.Log.Warn("Failed to update last login", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return &LoginResp{Token: token, User: user}, nil
}
