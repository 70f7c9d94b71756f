package models

import (
	"time"

	"lumina_studio_go_backend/internal/wallet"

	"github.com/google/uuid"
)

// Profile is the durable balance record of one account. ID is the user id
// issued by the hosted auth service.
type Profile struct {
	ID               uuid.UUID   `gorm:"type:uuid;primary_key" json:"id"`
	Diamonds         int         `gorm:"not null" json:"diamonds"`
	Plan             wallet.Plan `gorm:"type:varchar(20);not null;default:free" json:"plan"`
	LastRewardClaim  *time.Time  `json:"last_reward_claim"`
	LastDailyRefresh *time.Time  `json:"last_daily_refresh"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

func (p *Profile) State() wallet.State {
	return wallet.State{
		Diamonds:         p.Diamonds,
		Plan:             p.Plan,
		LastWeeklyClaim:  p.LastRewardClaim,
		LastDailyRefresh: p.LastDailyRefresh,
	}
}

// WithState returns a copy of the profile carrying s.
func (p Profile) WithState(s wallet.State) Profile {
	p.Diamonds = s.Diamonds
	p.Plan = s.Plan
	p.LastRewardClaim = s.LastWeeklyClaim
	p.LastDailyRefresh = s.LastDailyRefresh
	return p
}
