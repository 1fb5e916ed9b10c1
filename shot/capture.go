package shot

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/models"
)

// Crop writes the region of the PNG at src to dst.
func Crop(src, dst string, region models.ScreenshotRegion) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	img, err := png.Decode(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}

	rect := image.Rect(region.Left, region.Top, region.Right, region.Bottom).
		Add(img.Bounds().Min).
		Intersect(img.Bounds())
	if rect.Empty() {
		rect = img.Bounds()
	}

	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := png.Encode(f, out); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", dst, err)
	}
	return f.Close()
}

// Capturer captures viewport screenshots cropped to a content container.
type Capturer struct {
	// Root is the directory holding one folder per listing.
	Root string
	// MinSize is the minimum viable crop edge in device pixels.
	MinSize int
	// TwoShotFraction is the viewport fraction above which a block is
	// captured in two shots.
	TwoShotFraction float64
	// Settle is slept after scrolling, before capturing.
	Settle time.Duration

	Log *slog.Logger
}

// NewCapturer returns a Capturer with default geometry settings.
func NewCapturer(root string) *Capturer {
	return &Capturer{
		Root:            root,
		MinSize:         DefaultMinSize,
		TwoShotFraction: 0.9,
		Settle:          500 * time.Millisecond,
		Log:             slog.Default(),
	}
}

// Dir creates and returns the folder of one listing.
func (c *Capturer) Dir(title, address string) (string, error) {
	dir := filepath.Join(c.Root, FolderName(title, address))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", models.NewExtractError(models.ErrCodeCaptureFailed, "create screenshot folder", err)
	}
	return dir, nil
}

// Shoot captures the viewport and stores it as dir/name, cropped to
// container. A nil container, a container without geometry or a
// degenerate crop all store the full image.
func (c *Capturer) Shoot(ctx context.Context, s engine.Surface, dir, name string, container engine.Element) (string, error) {
	tmp := filepath.Join(dir, "_tmp_"+name)
	defer os.Remove(tmp)

	w, h, err := s.Capture(ctx, tmp)
	if err != nil {
		return "", models.NewExtractError(models.ErrCodeCaptureFailed, "capture viewport", err)
	}

	region := FullImage(w, h)
	if container != nil {
		region = c.region(s, container, w, h, name)
	}

	final := filepath.Join(dir, name)
	if err := Crop(tmp, final, region); err != nil {
		return "", models.NewExtractError(models.ErrCodeCaptureFailed, "crop screenshot", err)
	}
	return final, nil
}

func (c *Capturer) region(s engine.Surface, container engine.Element, w, h int, name string) models.ScreenshotRegion {
	rect, err := container.Rect()
	if err != nil {
		c.log().Warn("container geometry unavailable, keeping full image", "file", name, "error", err)
		return FullImage(w, h)
	}
	dpr, err := s.DevicePixelRatio()
	if err != nil {
		dpr = 1
	}
	region, fallback := ComputeCropRect(rect, dpr, w, h, c.minSize())
	if fallback {
		c.log().Info("degenerate crop, keeping full image",
			"file", name, "code", models.ErrCodeGeometryDegenerate,
			"left", rect.Left, "top", rect.Top, "width", rect.Width, "height", rect.Height,
		)
	}
	return region
}

// ShootBlock captures block, in two shots when it is taller than the
// viewport fraction: first with its top near the viewport top, then with
// its bottom near the viewport bottom. Each shot is cropped to container.
func (c *Capturer) ShootBlock(ctx context.Context, s engine.Surface, dir string, block, container engine.Element, single, first, second string) ([]string, error) {
	rect, err := block.Rect()
	if err != nil {
		return nil, models.NewExtractError(models.ErrCodeGeometryDegenerate, "measure block", err)
	}
	_, vh, err := s.Viewport()
	if err != nil {
		return nil, models.NewExtractError(models.ErrCodeGeometryDegenerate, "measure viewport", err)
	}

	fraction := c.fraction()
	if !NeedsTwoShots(rect.Height, vh, fraction) {
		path, err := c.Shoot(ctx, s, dir, single, container)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	margin := vh * (1 - fraction)
	if err := s.ScrollBy(rect.Top - margin); err != nil {
		return nil, models.NewExtractError(models.ErrCodeCaptureFailed, "scroll to block top", err)
	}
	if err := engine.Pause(ctx, c.Settle); err != nil {
		return nil, err
	}
	top, err := c.Shoot(ctx, s, dir, first, container)
	if err != nil {
		return nil, err
	}

	if rect, err = block.Rect(); err != nil {
		return []string{top}, models.NewExtractError(models.ErrCodeGeometryDegenerate, "measure block", err)
	}
	if err := s.ScrollBy(rect.Bottom() - vh*fraction); err != nil {
		return []string{top}, models.NewExtractError(models.ErrCodeCaptureFailed, "scroll to block bottom", err)
	}
	if err := engine.Pause(ctx, c.Settle); err != nil {
		return []string{top}, err
	}
	bottom, err := c.Shoot(ctx, s, dir, second, container)
	if err != nil {
		return []string{top}, err
	}
	return []string{top, bottom}, nil
}

func (c *Capturer) minSize() int {
	if c.MinSize <= 0 {
		return DefaultMinSize
	}
	return c.MinSize
}

func (c *Capturer) fraction() float64 {
	if c.TwoShotFraction <= 0 || c.TwoShotFraction > 1 {
		return 0.9
	}
	return c.TwoShotFraction
}

func (c *Capturer) log() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}
