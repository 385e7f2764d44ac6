package transcoder

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SegmentPattern is the file name pattern of generated media segments.
const SegmentPattern = "segment_%03d.ts"

// ErrInvalidCommand is returned when a command cannot be built from its options.
var ErrInvalidCommand = errors.New("invalid engine command")

// StreamCommand describes a segmented stream encode.
type StreamCommand struct {
	Input      string
	Playlist   string
	Mode       VideoMode
	Descriptor MediaDescriptor
}

// Args validates the command and returns the engine arguments.
func (c StreamCommand) Args() ([]string, error) {
	d := c.Descriptor
	if c.Input == "" || c.Playlist == "" {
		return nil, fmt.Errorf("%w: input and playlist are required", ErrInvalidCommand)
	}
	if d.SegmentDuration < time.Second {
		return nil, fmt.Errorf("%w: segment duration %v is below 1s", ErrInvalidCommand, d.SegmentDuration)
	}

	var listType string
	switch d.PlaylistMode {
	case PlaylistVOD, "":
		listType = "vod"
	case PlaylistEvent:
		listType = "event"
	default:
		return nil, fmt.Errorf("%w: unknown playlist mode %q", ErrInvalidCommand, d.PlaylistMode)
	}

	args := []string{"-hide_banner", "-nostdin", "-y", "-i", c.Input}

	switch c.Mode {
	case ModeCopy:
		if d.ScaleHeight > 0 {
			return nil, fmt.Errorf("%w: scaling requires re-encoding", ErrInvalidCommand)
		}
		args = append(args, "-map", "0:v:0", "-map", "0:a:0?", "-c", "copy")
	case ModeReencode:
		if d.VideoCodec == "" || d.AudioCodec == "" {
			return nil, fmt.Errorf("%w: codecs are required for re-encoding", ErrInvalidCommand)
		}
		if d.CRF < 0 || d.CRF > 51 {
			return nil, fmt.Errorf("%w: crf %d out of range 0-51", ErrInvalidCommand, d.CRF)
		}
		if d.ScaleHeight < 0 || d.ScaleHeight%2 != 0 {
			return nil, fmt.Errorf("%w: scale height %d must be even and non-negative", ErrInvalidCommand, d.ScaleHeight)
		}
		args = append(args, "-map", "0:v:0", "-map", "0:a:0?", "-c:v", d.VideoCodec)
		if d.Preset != "" {
			args = append(args, "-preset", d.Preset)
		}
		if d.Profile != "" {
			args = append(args, "-profile:v", d.Profile)
		}
		args = append(args, "-crf", strconv.Itoa(d.CRF), "-pix_fmt", "yuv420p")
		if d.ScaleHeight > 0 {
			args = append(args, "-vf", "scale=-2:"+strconv.Itoa(d.ScaleHeight))
		}
		// Keyframes on segment boundaries so every segment starts decodable.
		segSeconds := strconv.FormatFloat(d.SegmentDuration.Seconds(), 'f', -1, 64)
		args = append(args, "-force_key_frames", "expr:gte(t,n_forced*"+segSeconds+")")
		args = append(args, "-c:a", d.AudioCodec)
		if d.AudioBitrate != "" {
			args = append(args, "-b:a", d.AudioBitrate)
		}
		if d.AudioChannels > 0 {
			args = append(args, "-ac", strconv.Itoa(d.AudioChannels))
		}
		if d.AudioSampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(d.AudioSampleRate))
		}
		if d.NormalizeAudio {
			args = append(args, "-af", "loudnorm=I=-16:TP=-1.5:LRA=11")
		}
	default:
		return nil, fmt.Errorf("%w: video mode %q must be resolved before building", ErrInvalidCommand, c.Mode)
	}

	args = append(args,
		"-start_number", "0",
		"-hls_time", strconv.FormatFloat(d.SegmentDuration.Seconds(), 'f', -1, 64),
		"-hls_list_size", "0",
		"-hls_playlist_type", listType,
		"-hls_segment_filename", filepath.Join(filepath.Dir(c.Playlist), SegmentPattern),
		"-f", "hls",
		c.Playlist,
	)
	return args, nil
}

// ThumbnailCommand describes a single-frame extraction.
type ThumbnailCommand struct {
	Input  string
	Output string
	Spec   ThumbnailSpec
}

// Args validates the command and returns the engine arguments. The frame is
// written at source size; NormalizeThumbnail fits it to the spec afterwards.
func (c ThumbnailCommand) Args() ([]string, error) {
	s := c.Spec
	if c.Input == "" || c.Output == "" {
		return nil, fmt.Errorf("%w: input and output are required", ErrInvalidCommand)
	}
	if !strings.EqualFold(filepath.Ext(c.Output), ".jpg") {
		return nil, fmt.Errorf("%w: thumbnail output must be a .jpg file", ErrInvalidCommand)
	}
	if s.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %v", ErrInvalidCommand, s.Offset)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("%w: thumbnail size %dx%d", ErrInvalidCommand, s.Width, s.Height)
	}

	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-ss", formatOffset(s.Offset),
		"-i", c.Input,
		"-frames:v", "1",
		"-q:v", "2",
		"-update", "1",
		"-f", "image2",
		c.Output,
	}, nil
}

// ProbeCommand describes a metadata probe.
type ProbeCommand struct {
	Input string
}

// Args returns the prober arguments.
func (c ProbeCommand) Args() ([]string, error) {
	if c.Input == "" {
		return nil, fmt.Errorf("%w: input is required", ErrInvalidCommand)
	}
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		c.Input,
	}, nil
}

// formatOffset renders d as seconds with millisecond precision.
func formatOffset(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
