package gallery

import (
	"fmt"
	"image"
	"log"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// decodeReference opens a reference image and rotates it upright according to
// its EXIF orientation tag, if any.
func decodeReference(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gallery: failed to decode %s: %w", path, err)
	}
	return applyOrientation(img, readOrientation(path)), nil
}

// readOrientation returns the EXIF orientation of path, or 1 when absent.
func readOrientation(path string) int {
	file, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		// most PNGs and stripped JPEGs land here
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		log.Printf("gallery: ignoring unreadable orientation in %s: %v", path, err)
		return 1
	}
	return o
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
