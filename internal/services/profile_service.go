package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lumina_studio_go_backend/internal/metrics"
	"lumina_studio_go_backend/internal/models"
	"lumina_studio_go_backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ProfileUpdateTopic is the broker topic carrying a user's fresh profile.
func ProfileUpdateTopic(userID uuid.UUID) string {
	return "profile_update_" + userID.String()
}

// RewardStatus is what the rewards view renders.
type RewardStatus struct {
	Diamonds        int         `json:"diamonds"`
	Plan            wallet.Plan `json:"plan"`
	LastRewardClaim *time.Time  `json:"last_reward_claim"`
	CanClaim        bool        `json:"can_claim"`
	NextClaimAt     *time.Time  `json:"next_claim_at"`
	WeeklyAmount    int         `json:"weekly_amount"`
}

// ProfileService runs wallet transitions against the stored profile. A
// transition is only adopted, cached and published once its write succeeded.
type ProfileService struct {
	policy          wallet.Policy
	store           ProfileStore
	cache           ProfileCache
	publisher       EventPublisher
	initialDiamonds int
	now             func() time.Time

	locksMu sync.Mutex
	locks   map[uuid.UUID]*userLock
}

// userLock is dropped from the map once nobody holds or waits for it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewProfileService(policy wallet.Policy, store ProfileStore, cache ProfileCache, publisher EventPublisher, initialDiamonds int) *ProfileService {
	return &ProfileService{
		policy:          policy,
		store:           store,
		cache:           cache,
		publisher:       publisher,
		initialDiamonds: initialDiamonds,
		now:             time.Now,
		locks:           make(map[uuid.UUID]*userLock),
	}
}

// SetClock replaces the time source. Used by tests.
func (s *ProfileService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ProfileService) Policy() wallet.Policy {
	return s.policy
}

func (s *ProfileService) lock(userID uuid.UUID) func() {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.locksMu.Unlock()
	}
}

// GetProfile loads the profile, creating it on first access, and applies the
// daily refresh.
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	unlock := s.lock(userID)
	defer unlock()
	return s.load(ctx, userID)
}

func (s *ProfileService) Spend(ctx context.Context, userID uuid.UUID, amount int, action string) (*models.Profile, error) {
	profile, err := s.apply(ctx, userID, wallet.Spend{Amount: amount})
	if err != nil {
		return nil, err
	}
	if profile.Plan != wallet.PlanUnlimited {
		metrics.DiamondsSpent.WithLabelValues(action).Add(float64(amount))
	}
	return profile, nil
}

func (s *ProfileService) ClaimWeekly(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, err := s.apply(ctx, userID, wallet.ClaimWeekly{})
	if err != nil {
		return nil, err
	}
	metrics.DiamondsGranted.WithLabelValues("weekly").Add(float64(s.policy.WeeklyAmount))
	return profile, nil
}

func (s *ProfileService) ChangePlan(ctx context.Context, userID uuid.UUID, plan wallet.Plan) (*models.Profile, error) {
	return s.apply(ctx, userID, wallet.ChangePlan{Plan: plan})
}

func (s *ProfileService) RewardStatus(ctx context.Context, userID uuid.UUID) (*RewardStatus, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	status := &RewardStatus{
		Diamonds:        profile.Diamonds,
		Plan:            profile.Plan,
		LastRewardClaim: profile.LastRewardClaim,
		CanClaim:        wallet.CanClaim(s.policy, profile.State(), now),
		WeeklyAmount:    s.policy.WeeklyAmount,
	}
	if next := wallet.NextClaimAt(s.policy, profile.State(), now); !next.IsZero() {
		status.NextClaimAt = &next
	}
	return status, nil
}

func (s *ProfileService) apply(ctx context.Context, userID uuid.UUID, ev wallet.Event) (*models.Profile, error) {
	unlock := s.lock(userID)
	defer unlock()

	profile, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, effect, err := wallet.Transition(s.policy, profile.State(), ev, s.now())
	if err != nil {
		metrics.TransitionsRejected.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}
	if !effect.Persist {
		return profile, nil
	}

	updated, err := s.commit(ctx, profile, next)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("userID", userID.String()).
		Str("event", fmt.Sprintf("%T", ev)).
		Int("diamonds", updated.Diamonds).
		Str("plan", string(updated.Plan)).
		Msg("Profile transition committed")
	return updated, nil
}

// load must be called with the user's lock held.
func (s *ProfileService) load(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userID", userID.String()).Msg("Profile cache read failed")
		ok = false
	}

	if !ok {
		profile, err = s.store.GetProfile(ctx, userID)
		if errors.Is(err, ErrProfileNotFound) {
			profile, err = s.create(ctx, userID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		s.cacheProfile(ctx, profile)
	}

	next, effect, err := wallet.Transition(s.policy, profile.State(), wallet.Observe{}, s.now())
	if err != nil {
		return nil, err
	}
	if !effect.Persist {
		return profile, nil
	}
	if profile.Diamonds < next.Diamonds {
		metrics.DiamondsGranted.WithLabelValues("daily").Add(float64(next.Diamonds - profile.Diamonds))
	}
	return s.commit(ctx, profile, next)
}

func (s *ProfileService) create(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile := &models.Profile{
		ID:       userID,
		Diamonds: s.initialDiamonds,
		Plan:     wallet.PlanFree,
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	metrics.DiamondsGranted.WithLabelValues("signup").Add(float64(s.initialDiamonds))
	log.Info().Str("userID", userID.String()).Msg("Created profile")
	return profile, nil
}

func (s *ProfileService) commit(ctx context.Context, current *models.Profile, next wallet.State) (*models.Profile, error) {
	updated := current.WithState(next)
	if err := s.store.UpdateProfile(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	s.cacheProfile(ctx, &updated)
	if s.publisher != nil {
		s.publisher.Publish(ProfileUpdateTopic(updated.ID), updated)
	}
	return &updated, nil
}

func (s *ProfileService) cacheProfile(ctx context.Context, profile *models.Profile) {
	if err := s.cache.Set(ctx, profile); err != nil {
		// A stale entry is worse than none.
		log.Warn().Err(err).Str("userID", profile.ID.String()).Msg("Profile cache write failed")
		_ = s.cache.Delete(ctx, profile.ID)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, wallet.ErrInsufficientDiamonds):
		return "insufficient"
	case errors.Is(err, wallet.ErrClaimCooldown):
		return "cooldown"
	case errors.Is(err, wallet.ErrUnknownPlan):
		return "unknown_plan"
	default:
		return "invalid"
	}
}
