package services

import (
	"context"
	"errors"
	"fmt"

	"lumina_studio_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileServiceDB is the gorm backed ProfileStore.
type ProfileServiceDB struct {
	db *gorm.DB
}

func NewProfileServiceDB(db *gorm.DB) *ProfileServiceDB {
	return &ProfileServiceDB{db: db}
}

func (s *ProfileServiceDB) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (s *ProfileServiceDB) CreateProfile(ctx context.Context, profile *models.Profile) error {
	return s.db.WithContext(ctx).Create(profile).Error
}

// UpdateProfile writes the balance columns of an existing row.
func (s *ProfileServiceDB) UpdateProfile(ctx context.Context, profile *models.Profile) error {
	result := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]interface{}{
			"diamonds":           profile.Diamonds,
			"plan":               profile.Plan,
			"last_reward_claim":  profile.LastRewardClaim,
			"last_daily_refresh": profile.LastDailyRefresh,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update profile %s: %w", profile.ID, ErrProfileNotFound)
	}
	return nil
}
