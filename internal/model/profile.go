package model

import "time"

// Profile 用户公开资料（由身份服务写入，这里只读）
type Profile struct {
	ID            string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username      string     `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	AvatarURL     *string    `json:"avatar_url,omitempty" gorm:"type:text"`
	Bio           *string    `json:"bio,omitempty" gorm:"type:text"`
	Location      *string    `json:"location,omitempty" gorm:"type:varchar(128)"`
	IsClubMember  bool       `json:"is_club_member" gorm:"not null;default:false"`
	ClubExpiresAt *time.Time `json:"club_expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }
