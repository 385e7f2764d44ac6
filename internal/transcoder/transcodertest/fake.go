// Package transcodertest provides a fake engine Runner for tests.
//
// The fake recognises the three engine invocations by their arguments and
// writes the files a real engine would produce: a playlist with segment files
// for stream generation and a JPEG for thumbnail extraction.
package transcodertest

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Op identifies an engine invocation.
type Op string

// Engine invocations recognised by Runner.
const (
	OpProbe     Op = "probe"
	OpStream    Op = "stream"
	OpThumbnail Op = "thumbnail"
	OpVersion   Op = "version"
	OpUnknown   Op = "unknown"
)

// ErrExit is returned for invocations configured to fail.
var ErrExit = errors.New("exit status 1")

// Call records one invocation.
type Call struct {
	Op   Op
	Name string
	Args []string
}

// Runner is a fake transcoder.Runner.
type Runner struct {
	// Fail makes the given invocations exit non-zero with Diagnostic.
	Fail       map[Op]bool
	Diagnostic string
	// ProbeJSON is returned as prober output. Empty means an h264/aac mp4.
	ProbeJSON string
	// Segments is the number of segments written per stream. Defaults to 2.
	Segments int
	// SkipThumbnailOutput exits zero without writing a frame.
	SkipThumbnailOutput bool
	// Delay is applied to stream and thumbnail invocations.
	Delay time.Duration
	// Hook, if set, runs before each invocation is handled.
	Hook func(Call)

	mu        sync.Mutex
	calls     []Call
	active    int
	maxActive int
}

// DefaultProbeJSON describes a source that can be segmented without re-encoding.
const DefaultProbeJSON = `{"streams":[{"codec_type":"video","codec_name":"h264","pix_fmt":"yuv420p","width":1280,"height":720},{"codec_type":"audio","codec_name":"aac"}],"format":{"format_name":"mov,mp4,m4a,3gp,3g2,mj2","duration":"21.000000"}}`

// Run implements transcoder.Runner.
func (r *Runner) Run(ctx context.Context, name string, args []string) ([]byte, string, error) {
	call := Call{Op: classify(name, args), Name: name, Args: slices.Clone(args)}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	if r.Hook != nil {
		r.Hook(call)
	}

	if call.Op == OpStream || call.Op == OpThumbnail {
		if r.Delay > 0 {
			select {
			case <-time.After(r.Delay):
			case <-ctx.Done():
				return nil, "killed", ctx.Err()
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, "killed", err
	}

	if r.Fail[call.Op] {
		return nil, r.Diagnostic, ErrExit
	}

	switch call.Op {
	case OpProbe:
		if r.ProbeJSON != "" {
			return []byte(r.ProbeJSON), "", nil
		}
		return []byte(DefaultProbeJSON), "", nil
	case OpStream:
		return nil, "", r.writeStream(args)
	case OpThumbnail:
		if r.SkipThumbnailOutput {
			return nil, "", nil
		}
		return nil, "", writeFrame(args[len(args)-1])
	}
	return nil, "", nil
}

// Calls returns the recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Ops returns the recorded invocation kinds in order.
func (r *Runner) Ops() []Op {
	calls := r.Calls()
	ops := make([]Op, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// MaxActive returns the highest number of overlapping invocations observed.
func (r *Runner) MaxActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}

func classify(name string, args []string) Op {
	switch {
	case slices.Contains(args, "-version"):
		return OpVersion
	case strings.Contains(filepath.Base(name), "ffprobe"):
		return OpProbe
	case slices.Contains(args, "-hls_time"):
		return OpStream
	case slices.Contains(args, "-frames:v"):
		return OpThumbnail
	}
	return OpUnknown
}

func (r *Runner) writeStream(args []string) error {
	i := slices.Index(args, "-hls_segment_filename")
	if i < 0 || i+1 >= len(args) {
		return fmt.Errorf("fake: no segment pattern in %v", args)
	}
	pattern := args[i+1]
	playlistPath := args[len(args)-1]

	n := r.Segments
	if n <= 0 {
		n = 2
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:10\n#EXT-X-MEDIA-SEQUENCE:0\n#EXT-X-PLAYLIST-TYPE:VOD\n")
	for seg := 0; seg < n; seg++ {
		segPath := fmt.Sprintf(pattern, seg)
		if err := os.WriteFile(segPath, []byte("segment"), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(&b, "#EXTINF:10.000000,\n%s\n", filepath.Base(segPath))
	}
	b.WriteString("#EXT-X-ENDLIST\n")

	return os.WriteFile(playlistPath, []byte(b.String()), 0o644)
}

func writeFrame(path string) error {
	img := imaging.New(640, 360, color.NRGBA{R: 32, G: 96, B: 160, A: 255})
	return imaging.Save(img, path)
}
