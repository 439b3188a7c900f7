package models

type User struct {
	Base
	Name     string   `gorm:"not null" json:"name"`
	Email    string   `gorm:"uniqueIndex;not null" json:"email"`
	Password string   `gorm:"not null" json:"-"`
	Role     UserRole `gorm:"not null;default:'user'" json:"role"`
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
