package model

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	DefaultAvatarSrc = "profiles/avatars/default.png"
	DefaultAvatarAlt = "default avatar"
)

type User struct {
	gorm.Model        // 包含了 ID, CreatedAt, UpdatedAt, DeletedAt
	Username   string `gorm:"type:varchar(100);unique;not null"`
	Password   string `gorm:"type:varchar(255);not null"`
	Email      string `gorm:"type:varchar(254)"`
	Role       string `gorm:"type:varchar(20);default:'user'"` // 是否为管理员角色
	Profile    *Profile
}

// Profile 用户资料, one per user.
type Profile struct {
	ID       uint            `gorm:"primaryKey"`
	UserID   uint            `gorm:"uniqueIndex;not null"`
	User     *User           `gorm:"constraint:OnDelete:CASCADE"`
	FullName string          `gorm:"type:varchar(128)"`
	Phone    string          `gorm:"type:varchar(32)"`
	Balance  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	AvatarID *uint
	Avatar   *Avatar `gorm:"constraint:OnDelete:SET NULL"`
}

// Avatar 头像文件. Src is relative to the media root.
type Avatar struct {
	ID  uint   `gorm:"primaryKey"`
	Src string `gorm:"type:varchar(255);not null"`
	Alt string `gorm:"type:varchar(128)"`
}

// IsDefault reports whether the avatar is the shared placeholder file.
func (a *Avatar) IsDefault() bool {
	return a == nil || a.Src == DefaultAvatarSrc
}

// BeforeCreate attaches the default avatar when none was given.
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.AvatarID != nil || p.Avatar != nil {
		return nil
	}
	p.Avatar = &Avatar{Src: DefaultAvatarSrc, Alt: DefaultAvatarAlt}
	return nil
}

// TableName 指定表名
func (User) TableName() string    { return "users" }
func (Profile) TableName() string { return "profiles" }
func (Avatar) TableName() string  { return "avatars" }

func All() []any {
	return []any{&Avatar{}, &User{}, &Profile{}}
}
