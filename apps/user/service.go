// Package user holds accounts, profiles and avatars.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"go-storefront/apps/product"
	"go-storefront/apps/user/model"
	"go-storefront/pkg/jwt"
	"go-storefront/pkg/response"
	"go-storefront/pkg/validate"
)

var (
	ErrNotFound           = errors.New("profile not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const revokedPrefix = "jwt:revoked:"

// ValidationError carries field-keyed messages for the client.
type ValidationError struct {
	Fields response.FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid account data: %d field(s)", len(e.Fields))
}

type AvatarView struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

type ProfileView struct {
	FullName string     `json:"fullName"`
	Email    string     `json:"email"`
	Phone    string     `json:"phone"`
	Avatar   AvatarView `json:"avatar"`
}

type SignUpInput struct {
	Name     string `json:"name" validate:"max=128"`
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type ProfileInput struct {
	FullName string `json:"fullName" validate:"required,max=128"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

type Service struct {
	db       *gorm.DB
	tokens   *jwt.Manager
	rdb      *redis.Client
	media    MediaStorage
	mediaURL string
}

func NewService(db *gorm.DB, tokens *jwt.Manager, rdb *redis.Client, media MediaStorage, mediaURL string) *Service {
	return &Service{db: db, tokens: tokens, rdb: rdb, media: media, mediaURL: mediaURL}
}

// SignUp creates a user together with its profile and returns a token for it.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (string, error) {
	in.Username = strings.TrimSpace(in.Username)
	if fields := validate.Struct(in); fields != nil {
		return "", &ValidationError{Fields: fields}
	}

	// 密码加密存储
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	u := model.User{Username: in.Username, Password: string(hashed), Role: model.RoleUser}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&model.User{}).Where("username = ?", in.Username).Count(&cnt).Error; err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if cnt > 0 {
			return &ValidationError{Fields: response.FieldErrors{"username": {"A user with that username already exists."}}}
		}
		if err := tx.Create(&u).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		if err := tx.Create(&model.Profile{UserID: u.ID, FullName: in.Name}).Error; err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Info().Uint("user_id", u.ID).Str("username", u.Username).Msg("user signed up")
	return s.tokens.GenerateToken(u.ID, u.Username, u.Role)
}

// SignIn checks the credentials and returns a fresh token.
func (s *Service) SignIn(ctx context.Context, username, password string) (string, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	// 密码比对 (数据库里的 Hash vs 输入的明文)
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.tokens.GenerateToken(u.ID, u.Username, u.Role)
}

// SignOut revokes the token the claims were parsed from until it expires.
func (s *Service) SignOut(ctx context.Context, claims *jwt.Claims) error {
	if claims.ID == "" {
		return nil
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedPrefix+claims.ID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was signed out.
func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *Service) load(ctx context.Context, userID uint) (*model.Profile, error) {
	var p model.Profile
	err := s.db.WithContext(ctx).Preload("User").Preload("Avatar").Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load profile of user %d: %w", userID, err)
	}
	return &p, nil
}

// ProfileID maps an authenticated user to its profile.
func (s *Service) ProfileID(ctx context.Context, userID uint) (uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&model.Profile{}).Where("user_id = ?", userID).Limit(1).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("lookup profile of user %d: %w", userID, err)
	}
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	return ids[0], nil
}

func (s *Service) Profile(ctx context.Context, userID uint) (*ProfileView, error) {
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(p), nil
}

// UpdateProfile sets name and phone on the profile and the email on the user.
func (s *Service) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (*ProfileView, error) {
	if fields := validate.Struct(in); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(p).Updates(map[string]any{"full_name": in.FullName, "phone": in.Phone}).Error; err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		if err := tx.Model(&model.User{}).Where("id = ?", userID).Update("email", in.Email).Error; err != nil {
			return fmt.Errorf("update email: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.FullName, p.Phone = in.FullName, in.Phone
	if p.User != nil {
		p.User.Email = in.Email
	}
	return s.view(p), nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	// 1. 验证旧密码
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(current)); err != nil {
		return &ValidationError{Fields: response.FieldErrors{"currentPassword": {"Wrong password."}}}
	}
	if n := len(next); n < 6 || n > 72 {
		return &ValidationError{Fields: response.FieldErrors{"newPassword": {"Ensure this field has between 6 and 72 characters."}}}
	}

	// 2. 加密新密码
	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&u).Update("password", string(hashed)).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *Service) view(p *model.Profile) *ProfileView {
	v := &ProfileView{FullName: p.FullName, Phone: p.Phone}
	if p.User != nil {
		v.Email = p.User.Email
	}
	if p.Avatar != nil {
		v.Avatar = AvatarView{Src: product.MediaURL(s.mediaURL, p.Avatar.Src), Alt: p.Avatar.Alt}
	} else {
		v.Avatar = AvatarView{Src: product.MediaURL(s.mediaURL, model.DefaultAvatarSrc), Alt: model.DefaultAvatarAlt}
	}
	return v
}
