package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettingsDefaults(t *testing.T) {
	settings := NewSettings()

	assert.Equal(t, DefaultThrottle, settings.Throttle())
	assert.False(t, settings.Paused())
	assert.False(t, settings.ShouldCrash())
	assert.False(t, settings.ShouldSkipSave())
}

func TestSetThrottleClamps(t *testing.T) {
	settings := NewSettings()

	settings.SetThrottle(-time.Second)
	assert.Equal(t, time.Duration(0), settings.Throttle())

	settings.SetThrottle(10 * time.Second)
	assert.Equal(t, MaxThrottle, settings.Throttle())

	settings.SetThrottle(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, settings.Throttle())
}

func TestChanceClamping(t *testing.T) {
	settings := NewSettings()

	settings.SetRandomErrorChance(-0.5)
	assert.False(t, settings.ShouldCrash())

	settings.SetRandomErrorChance(2)
	assert.True(t, settings.ShouldCrash())

	settings.SetRandomNotSaveChance(1)
	assert.True(t, settings.ShouldSkipSave())
}

func TestApplyPartialUpdate(t *testing.T) {
	settings := NewSettings()
	settings.SetPaused(true)

	throttle := int64(50)
	settings.Apply(SettingsUpdate{ThrottleMS: &throttle})

	// untouched fields keep their values
	assert.True(t, settings.Paused())
	assert.Equal(t, 50*time.Millisecond, settings.Throttle())

	paused := false
	chance := 0.25
	settings.Apply(SettingsUpdate{Paused: &paused, RandomErrorChance: &chance})
	assert.False(t, settings.Paused())

	snapshot := settings.Snapshot()
	assert.Equal(t, int64(50), snapshot.ThrottleMS)
	assert.Equal(t, 0.25, snapshot.RandomErrorChance)
	assert.False(t, snapshot.Paused)
}
