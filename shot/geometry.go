// Package shot computes device-pixel crop regions and writes the cropped
// screenshot evidence of a listing.
package shot

import (
	"strings"
	"unicode"

	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/models"
)

// Fixed evidence file names inside a listing folder.
const (
	FilePriceHistory      = "история цены.png"
	FileTitle             = "титул.png"
	FileDescription       = "описание.png"
	FileDescriptionFirst  = "описание_1.png"
	FileDescriptionSecond = "описание_2.png"
	FilePublicationDate   = "дата_публикации.png"
)

// DefaultMinSize is the minimum viable crop edge in device pixels.
const DefaultMinSize = 100

// FullImage is the region covering a whole w x h raster.
func FullImage(w, h int) models.ScreenshotRegion {
	return models.ScreenshotRegion{Left: 0, Top: 0, Right: w, Bottom: h}
}

// ComputeCropRect converts a CSS-pixel rect to a device-pixel region inside
// a w x h image. The region is clamped so that 0 <= left < right <= w and
// 0 <= top < bottom <= h. When the clamped region is narrower or shorter
// than minSize the full image is returned instead and fallback is true.
func ComputeCropRect(r engine.Rect, dpr float64, w, h, minSize int) (region models.ScreenshotRegion, fallback bool) {
	if w <= 0 || h <= 0 {
		return FullImage(w, h), true
	}
	if dpr <= 0 {
		dpr = 1
	}

	left := int(r.Left * dpr)
	top := int(r.Top * dpr)
	right := left + int(r.Width*dpr)
	bottom := top + int(r.Height*dpr)

	left = clamp(left, 0, w-1)
	top = clamp(top, 0, h-1)
	right = clamp(right, left+1, w)
	bottom = clamp(bottom, top+1, h)

	region = models.ScreenshotRegion{Left: left, Top: top, Right: right, Bottom: bottom}
	if region.Width() < minSize || region.Height() < minSize {
		return FullImage(w, h), true
	}
	return region, false
}

// NeedsTwoShots reports whether a block taller than fraction of the
// viewport has to be captured top and bottom separately.
func NeedsTwoShots(blockHeight, viewportHeight, fraction float64) bool {
	return blockHeight > viewportHeight*fraction
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// maxFolderRunes keeps folder names well under common path limits.
const maxFolderRunes = 120

// FolderName builds the per-listing folder name from title and address.
// Path separators, reserved characters and control characters become
// spaces; runs of spaces collapse.
func FolderName(title, address string) string {
	raw := title + " " + address
	raw = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return ' '
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return ' '
		}
		return r
	}, raw)
	name := strings.Join(strings.Fields(raw), " ")

	if runes := []rune(name); len(runes) > maxFolderRunes {
		name = strings.TrimSpace(string(runes[:maxFolderRunes]))
	}
	name = strings.TrimRight(name, ". ")
	if name == "" {
		return "listing"
	}
	return name
}
