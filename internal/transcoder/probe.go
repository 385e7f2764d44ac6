package transcoder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ProbeResult is the subset of prober output used to choose a video mode.
type ProbeResult struct {
	FormatName  string
	Duration    float64
	VideoCodec  string
	PixelFormat string
	Width       int
	Height      int
	AudioCodec  string
	HasAudio    bool
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		PixFmt    string `json:"pix_fmt"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// ParseProbe decodes prober JSON output.
func ParseProbe(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode probe output: %w", err)
	}

	res := &ProbeResult{FormatName: out.Format.FormatName}
	if out.Format.Duration != "" {
		res.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	}

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if res.VideoCodec == "" {
				res.VideoCodec = s.CodecName
				res.PixelFormat = s.PixFmt
				res.Width = s.Width
				res.Height = s.Height
			}
		case "audio":
			if !res.HasAudio {
				res.HasAudio = true
				res.AudioCodec = s.CodecName
			}
		}
	}

	if res.VideoCodec == "" {
		return nil, fmt.Errorf("no video stream found")
	}
	return res, nil
}

var copyVideoCodecs = map[string]bool{
	"h264": true,
}

var copyAudioCodecs = map[string]bool{
	"aac": true,
	"mp3": true,
	"ac3": true,
}

var copyContainers = map[string]bool{
	"mov":      true,
	"mp4":      true,
	"m4a":      true,
	"mpegts":   true,
	"flv":      true,
	"matroska": true,
}

// CanCopy reports whether the probed source can be segmented without
// re-encoding under descriptor d.
func (p *ProbeResult) CanCopy(d MediaDescriptor) bool {
	if !copyVideoCodecs[p.VideoCodec] {
		return false
	}
	if p.PixelFormat != "" && p.PixelFormat != "yuv420p" && p.PixelFormat != "yuvj420p" {
		return false
	}
	if p.HasAudio && !copyAudioCodecs[p.AudioCodec] {
		return false
	}
	// scale=-2:H resizes both ways, so any scale target needs the encoder.
	if d.ScaleHeight > 0 {
		return false
	}

	// format_name is a comma list such as "mov,mp4,m4a,3gp,3g2,mj2".
	for _, name := range strings.Split(p.FormatName, ",") {
		if copyContainers[strings.TrimSpace(name)] {
			return true
		}
	}
	return false
}

// ResolveMode turns ModeAuto into a concrete mode. A nil probe result means
// the source could not be probed and is re-encoded.
func ResolveMode(d MediaDescriptor, probe *ProbeResult) VideoMode {
	switch d.VideoMode {
	case ModeCopy, ModeReencode:
		return d.VideoMode
	}
	if probe != nil && probe.CanCopy(d) {
		return ModeCopy
	}
	return ModeReencode
}
