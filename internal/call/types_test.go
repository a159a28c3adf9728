package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudioConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultAudioConfig().Validate())
	assert.NoError(t, HighQualityAudioConfig().Validate())
	assert.NoError(t, LowBandwidthAudioConfig().Validate())
	assert.NoError(t, VoiceCallAudioConfig().Validate())

	bad := DefaultAudioConfig()
	bad.Bitrate = 1000
	assert.Error(t, bad.Validate())

	bad = DefaultAudioConfig()
	bad.SampleRate = 44100
	assert.Error(t, bad.Validate())

	bad = DefaultAudioConfig()
	bad.Channels = 3
	assert.Error(t, bad.Validate())
}

func TestVideoConfigValidate(t *testing.T) {
	assert.NoError(t, HD720pVideoConfig().Validate())
	assert.NoError(t, FullHD1080pVideoConfig().Validate())
	assert.NoError(t, LowQualityVideoConfig().Validate())
	assert.NoError(t, MobileOptimizedVideoConfig().Validate())

	bad := HD720pVideoConfig()
	bad.Width = 0
	assert.Error(t, bad.Validate())

	bad = HD720pVideoConfig()
	bad.Fps = 120
	assert.Error(t, bad.Validate())

	bad = HD720pVideoConfig()
	bad.Bitrate = 0
	assert.Error(t, bad.Validate())
}

func TestParticipantHasVideo(t *testing.T) {
	assert.False(t, Participant{}.HasVideo())
	assert.True(t, Participant{HasCamera: true}.HasVideo())
	assert.True(t, Participant{IsScreenSharing: true}.HasVideo())
}

func TestNewSessionDefaultsAudioOnly(t *testing.T) {
	s := NewSession(123)
	assert.Equal(t, StateIdle, s.State)
	assert.False(t, s.VideoEnabled)
	assert.Equal(t, 1.0, s.Volume)
}
