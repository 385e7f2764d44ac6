package identity

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// hashSuffixLen is the number of hex characters of the content hash appended
// by StrategyHash.
const hashSuffixLen = 12

// PlaylistName is the file name of the media playlist inside a job's output directory.
const PlaylistName = "index.m3u8"

// ErrOutsideRoot is returned when a derived path would escape its root.
var ErrOutsideRoot = errors.New("path escapes configured root")

// Roots are the three filesystem roots shared by all jobs.
type Roots struct {
	Uploads    string
	Videos     string
	Thumbnails string
}

// Paths are the per-job locations derived from a base name.
type Paths struct {
	BaseName      string
	OutputDir     string
	PlaylistPath  string
	ThumbnailPath string
	StreamURL     string
	ThumbnailURL  string
}

// Namespace derives job identities and allocates their output locations.
// It performs no filesystem writes; callers create directories they own.
type Namespace struct {
	roots    Roots
	strategy Strategy
	counter  atomic.Uint64
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

// NewNamespace creates a namespace over the given roots.
func NewNamespace(roots Roots, strategy Strategy) *Namespace {
	if strategy == "" {
		strategy = StrategyNone
	}
	return &Namespace{
		roots:    roots,
		strategy: strategy,
		now:      time.Now,
		locks:    make(map[string]*nameLock),
	}
}

// Roots returns the configured roots.
func (n *Namespace) Roots() Roots {
	return n.roots
}

// Strategy returns the configured disambiguation strategy.
func (n *Namespace) Strategy() Strategy {
	return n.strategy
}

// Resolve computes the base name for an upload. contentHash is the hex
// digest of the upload and is only consulted by StrategyHash.
func (n *Namespace) Resolve(originalFilename, contentHash string) (string, error) {
	name, err := BaseName(originalFilename)
	if err != nil {
		return "", err
	}

	switch n.strategy {
	case StrategyTimestamp:
		return strconv.FormatInt(n.now().UnixMilli(), 10) + "-" + name, nil
	case StrategyCounter:
		return strconv.FormatUint(n.counter.Add(1), 10) + "-" + name, nil
	case StrategyHash:
		if contentHash == "" {
			return "", fmt.Errorf("hash naming requires a content hash")
		}
		h := strings.ToLower(contentHash)
		if len(h) > hashSuffixLen {
			h = h[:hashSuffixLen]
		}
		return name + "-" + h, nil
	default:
		return name, nil
	}
}

// Allocate returns the output locations for baseName.
func (n *Namespace) Allocate(baseName string) (Paths, error) {
	if baseName == "" || strings.ContainsAny(baseName, `/\`) || baseName == "." || baseName == ".." {
		return Paths{}, fmt.Errorf("%w: %q", ErrOutsideRoot, baseName)
	}

	outputDir, err := within(n.roots.Videos, baseName)
	if err != nil {
		return Paths{}, err
	}
	thumbnailPath, err := within(n.roots.Thumbnails, baseName+".jpg")
	if err != nil {
		return Paths{}, err
	}

	escaped := url.PathEscape(baseName)
	return Paths{
		BaseName:      baseName,
		OutputDir:     outputDir,
		PlaylistPath:  filepath.Join(outputDir, PlaylistName),
		ThumbnailPath: thumbnailPath,
		StreamURL:     "/videos/" + escaped + "/" + PlaylistName,
		ThumbnailURL:  "/thumbnails/" + escaped + ".jpg",
	}, nil
}

// UploadPath returns a location for a temporary input inside the uploads root.
func (n *Namespace) UploadPath(name string) (string, error) {
	return within(n.roots.Uploads, name)
}

// Lock serialises jobs that share a base name. The returned function
// releases the lock and must be called exactly once.
func (n *Namespace) Lock(baseName string) func() {
	n.mu.Lock()
	l, ok := n.locks[baseName]
	if !ok {
		l = &nameLock{}
		n.locks[baseName] = l
	}
	l.refs++
	n.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			n.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(n.locks, baseName)
			}
			n.mu.Unlock()
		})
	}
}

// within joins name onto root and rejects any result outside root.
func within(root, name string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty root", ErrOutsideRoot)
	}
	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, name)
	rel, err := filepath.Rel(cleanRoot, joined)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}
	return joined, nil
}
