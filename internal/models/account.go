package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a custodial user balance. Rows are provisioned by the user service.
type Account struct {
	ID              uint64          `json:"id" gorm:"primaryKey"`
	Name            string          `json:"name" gorm:"type:varchar(255)"`
	Email           string          `json:"email" gorm:"type:varchar(255);index"`
	Balance         decimal.Decimal `json:"balance" gorm:"type:numeric(36,18);not null;default:0;check:chk_users_balance_non_negative,balance >= 0"`
	WalletAddress   string          `json:"wallet_address" gorm:"type:varchar(255);default:'0'"`
	TwoFactorSecret string          `json:"-" gorm:"column:google2fa_secret;type:varchar(255)"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Account) TableName() string {
	return "users"
}

// HasTwoFactor reports whether a second-factor secret is enrolled.
func (a *Account) HasTwoFactor() bool {
	return a.TwoFactorSecret != ""
}
