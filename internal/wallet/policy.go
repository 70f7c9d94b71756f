// Package wallet holds the diamond balance and plan policy.
//
// Transition is a pure function: it never performs I/O and never mutates its
// input. Callers persist the returned state when Effect.Persist is set and
// only adopt it once the write succeeded.
package wallet

import (
	"errors"
	"fmt"
	"time"
)

// Plan is a subscription tier. The string values are the ones stored in the
// profiles table.
type Plan string

const (
	PlanFree      Plan = "free"
	PlanDailyCap  Plan = "daily200"
	PlanUnlimited Plan = "unlimited"
)

var (
	ErrInsufficientDiamonds = errors.New("not enough diamonds")
	ErrClaimCooldown        = errors.New("weekly reward already claimed")
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrInvalidAmount        = errors.New("amount must not be negative")
	ErrUnknownEvent         = errors.New("unknown event")
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanDailyCap, PlanUnlimited:
		return true
	}
	return false
}

func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
	return p, nil
}

// State mirrors one profile row.
type State struct {
	Diamonds         int
	Plan             Plan
	LastWeeklyClaim  *time.Time
	LastDailyRefresh *time.Time
}

type Policy struct {
	WeeklyAmount   int
	WeeklyCooldown time.Duration
	DailyCap       int
	// Location decides where a calendar day starts for the daily refresh.
	Location *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		WeeklyAmount:   50,
		WeeklyCooldown: 7 * 24 * time.Hour,
		DailyCap:       200,
		Location:       time.UTC,
	}
}

// Event is one of Spend, ClaimWeekly, Observe or ChangePlan.
type Event interface {
	event()
}

type Spend struct {
	Amount int
}

type ClaimWeekly struct{}

// Observe runs the daily refresh check. It is applied on every read of a
// profile.
type Observe struct{}

type ChangePlan struct {
	Plan Plan
}

func (Spend) event()       {}
func (ClaimWeekly) event() {}
func (Observe) event()     {}
func (ChangePlan) event()  {}

// Effect tells the caller what has to happen before the next state may be
// adopted.
type Effect struct {
	Persist bool
}

func Transition(p Policy, s State, ev Event, now time.Time) (State, Effect, error) {
	switch e := ev.(type) {
	case Spend:
		return spend(s, e.Amount)
	case ClaimWeekly:
		return claimWeekly(p, s, now)
	case Observe:
		return observe(p, s, now)
	case ChangePlan:
		return changePlan(p, s, e.Plan)
	default:
		return s, Effect{}, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

func spend(s State, amount int) (State, Effect, error) {
	if amount < 0 {
		return s, Effect{}, ErrInvalidAmount
	}
	if s.Plan == PlanUnlimited {
		return s, Effect{}, nil
	}
	if s.Diamonds < amount {
		return s, Effect{}, ErrInsufficientDiamonds
	}
	s.Diamonds -= amount
	return s, Effect{Persist: true}, nil
}

func claimWeekly(p Policy, s State, now time.Time) (State, Effect, error) {
	if !CanClaim(p, s, now) {
		return s, Effect{}, ErrClaimCooldown
	}
	s.Diamonds += p.WeeklyAmount
	s.LastWeeklyClaim = timePtr(now)
	return s, Effect{Persist: true}, nil
}

func observe(p Policy, s State, now time.Time) (State, Effect, error) {
	if s.Plan != PlanDailyCap {
		return s, Effect{}, nil
	}
	if s.LastDailyRefresh != nil && !dayBefore(*s.LastDailyRefresh, now, p.location()) {
		return s, Effect{}, nil
	}
	s.Diamonds = max(s.Diamonds, p.DailyCap)
	s.LastDailyRefresh = timePtr(now)
	return s, Effect{Persist: true}, nil
}

func changePlan(p Policy, s State, plan Plan) (State, Effect, error) {
	if !plan.Valid() {
		return s, Effect{}, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	s.Plan = plan
	if plan == PlanDailyCap {
		s.Diamonds = max(s.Diamonds, p.DailyCap)
	}
	return s, Effect{Persist: true}, nil
}

// CanClaim reports whether the weekly reward is available at now.
func CanClaim(p Policy, s State, now time.Time) bool {
	return s.LastWeeklyClaim == nil || now.Sub(*s.LastWeeklyClaim) >= p.WeeklyCooldown
}

// NextClaimAt returns when the weekly reward becomes available. The zero time
// means it can be claimed now.
func NextClaimAt(p Policy, s State, now time.Time) time.Time {
	if CanClaim(p, s, now) {
		return time.Time{}
	}
	return s.LastWeeklyClaim.Add(p.WeeklyCooldown)
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// dayBefore reports whether t falls on a calendar day strictly before the
// day of now, both read in loc.
func dayBefore(t, now time.Time, loc *time.Location) bool {
	ty, tm, td := t.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return time.Date(ty, tm, td, 0, 0, 0, 0, loc).Before(time.Date(ny, nm, nd, 0, 0, 0, 0, loc))
}

func timePtr(t time.Time) *time.Time {
	return &t
}
