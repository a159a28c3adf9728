// Package call implements the per-chat call lifecycle controller: session
// state, participant bookkeeping, and the connect/reconnect state machine.
package call

import "time"

// State is a CallSession's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateConnecting
	StateConnected
	StateActive
	StatePaused
	StateEnding
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Terminal reports whether s has no further transitions (ended or error
// reached only via ended afterward, per the state graph: from error only
// ended is reachable).
func (s State) Terminal() bool { return s == StateEnded }

// AudioQuality names a coarse audio preset.
type AudioQuality int

const (
	AudioQualityStudio AudioQuality = iota
	AudioQualityHigh
	AudioQualityMedium
	AudioQualityLow
)

// AudioConfig governs the audio leg of a call. Named constructors below
// mirror the original implementation's presets.
type AudioConfig struct {
	Bitrate    int
	SampleRate int
	Channels   int
	Quality    AudioQuality
}

// DefaultAudioConfig is a general-purpose voice/music balance.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{Bitrate: 64000, SampleRate: 48000, Channels: 2, Quality: AudioQualityHigh}
}

// HighQualityAudioConfig favors fidelity over bandwidth.
func HighQualityAudioConfig() AudioConfig {
	return AudioConfig{Bitrate: 128000, SampleRate: 48000, Channels: 2, Quality: AudioQualityStudio}
}

// LowBandwidthAudioConfig favors reliability on constrained links.
func LowBandwidthAudioConfig() AudioConfig {
	return AudioConfig{Bitrate: 32000, SampleRate: 24000, Channels: 1, Quality: AudioQualityLow}
}

// VoiceCallAudioConfig is tuned for speech intelligibility over music
// fidelity.
func VoiceCallAudioConfig() AudioConfig {
	return AudioConfig{Bitrate: 48000, SampleRate: 16000, Channels: 1, Quality: AudioQualityMedium}
}

// Validate enforces the same ranges the original implementation's
// post-construction validation checked.
func (c AudioConfig) Validate() error {
	if c.Bitrate < 8000 || c.Bitrate > 320000 {
		return errInvalidConfig("audio bitrate out of range")
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 && c.SampleRate != 24000 && c.SampleRate != 48000 {
		return errInvalidConfig("unsupported audio sample rate")
	}
	if c.Channels != 1 && c.Channels != 2 {
		return errInvalidConfig("audio channels must be 1 or 2")
	}
	return nil
}

// VideoQuality names a coarse video preset.
type VideoQuality int

const (
	VideoQualityFullHD VideoQuality = iota
	VideoQualityHD
	VideoQualitySD
	VideoQualityLow
)

// VideoConfig governs the video leg of a call.
type VideoConfig struct {
	Width   int
	Height  int
	Fps     int
	Bitrate int
	Quality VideoQuality
}

// HD720pVideoConfig is the standard conferencing preset.
func HD720pVideoConfig() VideoConfig {
	return VideoConfig{Width: 1280, Height: 720, Fps: 30, Bitrate: 1500000, Quality: VideoQualityHD}
}

// FullHD1080pVideoConfig favors fidelity for screen share or high-motion
// content.
func FullHD1080pVideoConfig() VideoConfig {
	return VideoConfig{Width: 1920, Height: 1080, Fps: 30, Bitrate: 3000000, Quality: VideoQualityFullHD}
}

// LowQualityVideoConfig favors reliability.
func LowQualityVideoConfig() VideoConfig {
	return VideoConfig{Width: 640, Height: 360, Fps: 15, Bitrate: 400000, Quality: VideoQualityLow}
}

// MobileOptimizedVideoConfig balances battery and bandwidth for handsets.
func MobileOptimizedVideoConfig() VideoConfig {
	return VideoConfig{Width: 854, Height: 480, Fps: 24, Bitrate: 700000, Quality: VideoQualitySD}
}

// Validate enforces basic dimension/rate sanity.
func (c VideoConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errInvalidConfig("video dimensions must be positive")
	}
	if c.Fps <= 0 || c.Fps > 60 {
		return errInvalidConfig("video fps out of range")
	}
	if c.Bitrate <= 0 {
		return errInvalidConfig("video bitrate must be positive")
	}
	return nil
}

// ParticipantAction names the kinds of participant update. Participant
// updates that Lifecycle dispatches carry the Participant value only, not
// an action.
type ParticipantAction int

const (
	ParticipantJoined ParticipantAction = iota
	ParticipantLeft
	ParticipantUpdated
	ParticipantKicked
	ParticipantMuted
	ParticipantUnmuted
)

// Participant is one conference member tracked by a CallSession.
type Participant struct {
	UserID          int64
	Muted           bool
	MutedByAdmin    bool
	HasCamera       bool
	IsScreenSharing bool
	JoinedAt        time.Time
	Metadata        map[string]any
}

// HasVideo is derived: a participant has video if their camera is on or
// they are screen sharing.
func (p Participant) HasVideo() bool { return p.HasCamera || p.IsScreenSharing }

// StreamEndReason classifies why a stream stopped.
type StreamEndReason int

const (
	StreamEndFinished StreamEndReason = iota
	StreamEndStopped
	StreamEndError
	StreamEndDisconnected
	StreamEndReplaced
	StreamEndTimeout
)

func (r StreamEndReason) String() string {
	switch r {
	case StreamEndStopped:
		return "stopped"
	case StreamEndError:
		return "error"
	case StreamEndDisconnected:
		return "disconnected"
	case StreamEndReplaced:
		return "replaced"
	case StreamEndTimeout:
		return "timeout"
	default:
		return "finished"
	}
}

// StreamEnded is the payload of an on_stream_end event.
type StreamEnded struct {
	ChatID int64
	Reason StreamEndReason
}

// Session is a per-chat stateful object owned exclusively by one
// Lifecycle.
type Session struct {
	ChatID    int64
	State     State
	AudioCfg  AudioConfig
	VideoCfg  VideoConfig
	CreatedAt time.Time

	ConnectedAt time.Time
	EndedAt     time.Time

	StreamID        string
	StreamPosition  int
	Volume          float64
	Muted           bool
	VideoEnabled    bool
	InPresentation  bool
	MutedByAdmin    bool

	Participants map[int64]*Participant

	BytesSent       int64
	BytesReceived   int64
	FramesSent      int64
	FramesReceived  int64
}

// NewSession builds a fresh idle session for chatID.
func NewSession(chatID int64) *Session {
	return &Session{
		ChatID:       chatID,
		State:        StateIdle,
		Volume:       1.0,
		CreatedAt:    time.Now(),
		Participants: make(map[int64]*Participant),
	}
}

func errInvalidConfig(msg string) error { return &configError{msg: msg} }

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }
