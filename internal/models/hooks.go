package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// PasswordCost is the bcrypt cost used for new hashes.
var PasswordCost = bcrypt.DefaultCost

// BeforeCreate assigns the id and hashes the password. The value is always
// treated as plaintext, whatever it looks like.
// Empty passwords are left to the not-null constraint.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if err := u.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if u.Password == "" {
		return nil
	}
	hashed, err := hashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hashed
	return nil
}

// BeforeUpdate hashes the password only when the update writes that
// column, so role or name changes leave the stored hash alone.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	if !tx.Statement.Changed("Password") {
		return nil
	}
	key, plain, ok := passwordIn(tx.Statement.Dest)
	if !ok || plain == "" {
		return nil
	}
	hashed, err := hashPassword(plain)
	if err != nil {
		return err
	}
	tx.Statement.SetColumn(key, hashed)
	return nil
}

// CheckPassword reports whether plain matches the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

func hashPassword(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// passwordIn returns the new password carried by an update destination and
// the key it is stored under.
func passwordIn(dest interface{}) (string, string, bool) {
	switch d := dest.(type) {
	case map[string]interface{}:
		for _, key := range []string{"password", "Password"} {
			if v, ok := d[key].(string); ok {
				return key, v, true
			}
		}
	case *User:
		return "Password", d.Password, true
	case User:
		return "Password", d.Password, true
	}
	return "", "", false
}
