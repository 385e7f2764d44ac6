package transcoder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// NormalizeThumbnail decodes the frame at path, fits it into the box given by
// spec and rewrites it as JPEG. The original is replaced atomically.
func NormalizeThumbnail(path string, spec ThumbnailSpec) error {
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("failed to decode thumbnail: %w", err)
	}

	b := img.Bounds()
	if b.Dx() > spec.Width || b.Dy() > spec.Height {
		img = imaging.Fit(img, spec.Width, spec.Height, imaging.Lanczos)
	}

	quality := spec.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultThumbnailSpec().Quality
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp.jpg")
	if err := imaging.Save(img, tmp, imaging.JPEGQuality(quality)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace thumbnail: %w", err)
	}
	return nil
}
