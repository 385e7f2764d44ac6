package transcoder

import (
	"fmt"
	"strings"
	"time"
)

// VideoMode selects how stage 1 treats the source video stream.
type VideoMode string

const (
	// ModeAuto picks ModeCopy or ModeReencode from the probe result.
	ModeAuto VideoMode = "auto"
	// ModeCopy re-packages the existing streams into segments without re-encoding.
	ModeCopy VideoMode = "copy"
	// ModeReencode encodes H.264/AAC with a fixed profile.
	ModeReencode VideoMode = "reencode"
)

// ParseVideoMode validates a video mode name. An empty string means ModeAuto.
func ParseVideoMode(s string) (VideoMode, error) {
	switch VideoMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeCopy:
		return ModeCopy, nil
	case ModeReencode:
		return ModeReencode, nil
	default:
		return "", fmt.Errorf("unknown video mode %q", s)
	}
}

// PlaylistMode is the HLS playlist completeness mode.
type PlaylistMode string

const (
	// PlaylistVOD is a bounded playlist with every segment and an end marker.
	PlaylistVOD PlaylistMode = "vod"
	// PlaylistEvent is an append-only playlist.
	PlaylistEvent PlaylistMode = "event"
)

// MediaDescriptor is the set of encode parameters applied by stream generation.
type MediaDescriptor struct {
	VideoMode       VideoMode
	VideoCodec      string
	Preset          string
	Profile         string
	CRF             int
	AudioCodec      string
	AudioBitrate    string
	AudioChannels   int
	AudioSampleRate int
	NormalizeAudio  bool
	SegmentDuration time.Duration
	PlaylistMode    PlaylistMode
	// ScaleHeight is the target height when re-encoding; 0 keeps the source size.
	ScaleHeight int
}

// DefaultMediaDescriptor returns the descriptor used when nothing is configured.
func DefaultMediaDescriptor() MediaDescriptor {
	return MediaDescriptor{
		VideoMode:       ModeAuto,
		VideoCodec:      "libx264",
		Preset:          "veryfast",
		Profile:         "high",
		CRF:             23,
		AudioCodec:      "aac",
		AudioBitrate:    "128k",
		AudioChannels:   2,
		AudioSampleRate: 48000,
		NormalizeAudio:  true,
		SegmentDuration: 10 * time.Second,
		PlaylistMode:    PlaylistVOD,
	}
}

// ThumbnailSpec describes the single frame extracted by stage 2.
type ThumbnailSpec struct {
	Offset  time.Duration
	Width   int
	Height  int
	Quality int
}

// DefaultThumbnailSpec returns a 320x180 frame taken one second in.
func DefaultThumbnailSpec() ThumbnailSpec {
	return ThumbnailSpec{
		Offset:  time.Second,
		Width:   320,
		Height:  180,
		Quality: 85,
	}
}
