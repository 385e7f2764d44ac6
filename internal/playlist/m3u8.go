package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const header = "#EXTM3U"

var (
	// ErrNotPlaylist is returned when the input does not start with #EXTM3U.
	ErrNotPlaylist = errors.New("not an HLS playlist")
	// ErrEmptyPlaylist is returned when a playlist lists no segments.
	ErrEmptyPlaylist = errors.New("playlist has no segments")
	// ErrMissingSegment is returned when a referenced segment file does not exist.
	ErrMissingSegment = errors.New("playlist references a missing segment")
)

// MediaPlaylist is an HLS media playlist: an ordered list of segments.
type MediaPlaylist struct {
	Version        int       `json:"version"`
	TargetDuration int       `json:"targetDuration"`
	MediaSequence  int       `json:"mediaSequence"`
	PlaylistType   string    `json:"playlistType,omitempty"`
	Ended          bool      `json:"ended"`
	Segments       []Segment `json:"segments"`
}

// Segment is a single media segment entry.
type Segment struct {
	URI      string  `json:"uri"`
	Duration float64 `json:"duration"`
	Title    string  `json:"title,omitempty"`
}

// Duration returns the sum of all segment durations in seconds.
func (p *MediaPlaylist) Duration() float64 {
	var total float64
	for _, s := range p.Segments {
		total += s.Duration
	}
	return total
}

// Parse reads a media playlist. Unknown tags are ignored.
func Parse(r io.Reader) (*MediaPlaylist, error) {
	scanner := bufio.NewScanner(r)
	p := &MediaPlaylist{}

	sawHeader := false
	var pending *Segment
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !sawHeader {
			if line != header {
				return nil, ErrNotPlaylist
			}
			sawHeader = true
			continue
		}

		if !strings.HasPrefix(line, "#") {
			seg := Segment{URI: line}
			if pending != nil {
				seg.Duration = pending.Duration
				seg.Title = pending.Title
				pending = nil
			}
			p.Segments = append(p.Segments, seg)
			continue
		}

		tag, value, _ := strings.Cut(line, ":")
		var err error
		switch tag {
		case "#EXT-X-VERSION":
			p.Version, err = strconv.Atoi(value)
		case "#EXT-X-TARGETDURATION":
			p.TargetDuration, err = strconv.Atoi(value)
		case "#EXT-X-MEDIA-SEQUENCE":
			p.MediaSequence, err = strconv.Atoi(value)
		case "#EXT-X-PLAYLIST-TYPE":
			p.PlaylistType = value
		case "#EXT-X-ENDLIST":
			p.Ended = true
		case "#EXTINF":
			durStr, title, _ := strings.Cut(value, ",")
			var d float64
			d, err = strconv.ParseFloat(strings.TrimSpace(durStr), 64)
			pending = &Segment{Duration: d, Title: title}
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s value %q: %w", lineNo, tag, value, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, ErrNotPlaylist
	}
	return p, nil
}

// ParseFile reads the media playlist at path.
func ParseFile(path string) (*MediaPlaylist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Verify parses the playlist at path and checks that every segment it
// references is a regular file inside the playlist's directory.
func Verify(path string) (*MediaPlaylist, error) {
	p, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	if len(p.Segments) == 0 {
		return nil, ErrEmptyPlaylist
	}

	dir := filepath.Dir(path)
	for _, seg := range p.Segments {
		if strings.Contains(seg.URI, "://") || strings.ContainsAny(seg.URI, `/\`) {
			return nil, fmt.Errorf("%w: %s is not a sibling file", ErrMissingSegment, seg.URI)
		}
		info, err := os.Stat(filepath.Join(dir, seg.URI))
		if err != nil || !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s", ErrMissingSegment, seg.URI)
		}
	}
	return p, nil
}
