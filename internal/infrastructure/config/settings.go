package config

import (
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultThrottle = 200 * time.Millisecond
	MaxThrottle     = 2 * time.Second
)

// Settings are the process-wide mutable tunables shared by every worker
// thread and the scheduler, and edited live through the API. Every access
// is short; a readers-writer lock suffices. The lock is never held across
// I/O.
type Settings struct {
	mu sync.RWMutex

	throttle            time.Duration
	randomErrorChance   float64
	randomNotSaveChance float64
	paused              bool
}

// SettingsSnapshot is a plain copy of the current values, for the API view.
type SettingsSnapshot struct {
	Throttle            time.Duration `json:"-"`
	ThrottleMS          int64         `json:"throttle_ms"`
	RandomErrorChance   float64       `json:"random_error_chance"`
	RandomNotSaveChance float64       `json:"random_not_save_chance"`
	Paused              bool          `json:"paused"`
}

// SettingsUpdate carries a partial edit; nil fields are left untouched.
type SettingsUpdate struct {
	ThrottleMS          *int64   `json:"throttle_ms"`
	RandomErrorChance   *float64 `json:"random_error_chance"`
	RandomNotSaveChance *float64 `json:"random_not_save_chance"`
	Paused              *bool    `json:"paused"`
}

func NewSettings() *Settings {
	return &Settings{throttle: DefaultThrottle}
}

func (s *Settings) Throttle() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.throttle
}

// SetThrottle clamps the interval to [0, MaxThrottle].
func (s *Settings) SetThrottle(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if d > MaxThrottle {
		d = MaxThrottle
	}
	s.mu.Lock()
	s.throttle = d
	s.mu.Unlock()
}

func (s *Settings) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func (s *Settings) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
}

func (s *Settings) SetRandomErrorChance(p float64) {
	s.mu.Lock()
	s.randomErrorChance = clampChance(p)
	s.mu.Unlock()
}

func (s *Settings) SetRandomNotSaveChance(p float64) {
	s.mu.Lock()
	s.randomNotSaveChance = clampChance(p)
	s.mu.Unlock()
}

// ShouldCrash rolls the injected-fault die for one task. A true result
// means the worker thread should abort as a simulated crash.
func (s *Settings) ShouldCrash() bool {
	s.mu.RLock()
	chance := s.randomErrorChance
	s.mu.RUnlock()
	return chance > 0 && rand.Float64() < chance
}

// ShouldSkipSave rolls the artifact-suppression die for one task.
func (s *Settings) ShouldSkipSave() bool {
	s.mu.RLock()
	chance := s.randomNotSaveChance
	s.mu.RUnlock()
	return chance > 0 && rand.Float64() < chance
}

func (s *Settings) Snapshot() SettingsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SettingsSnapshot{
		Throttle:            s.throttle,
		ThrottleMS:          s.throttle.Milliseconds(),
		RandomErrorChance:   s.randomErrorChance,
		RandomNotSaveChance: s.randomNotSaveChance,
		Paused:              s.paused,
	}
}

// Apply merges a partial update.
func (s *Settings) Apply(update SettingsUpdate) {
	if update.ThrottleMS != nil {
		s.SetThrottle(time.Duration(*update.ThrottleMS) * time.Millisecond)
	}
	if update.RandomErrorChance != nil {
		s.SetRandomErrorChance(*update.RandomErrorChance)
	}
	if update.RandomNotSaveChance != nil {
		s.SetRandomNotSaveChance(*update.RandomNotSaveChance)
	}
	if update.Paused != nil {
		s.SetPaused(*update.Paused)
	}
}

func clampChance(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
