package utils

import (
	"fmt"
	"image/color"
	"regexp"

	"github.com/go-gl/mathgl/mgl32"
)

var colourRe = regexp.MustCompile(`^#[0-9A-Fa-f]{8}$`)

// ColourValidate reports whether c is an #RRGGBBAA hex colour.
func ColourValidate(c string) bool {
	return colourRe.MatchString(c)
}

func ColourParse(s string) (c color.RGBA) {
	fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	return
}

// ColourVec converts an #RRGGBBAA colour into normalised GL components.
func ColourVec(s string) mgl32.Vec4 {
	c := ColourParse(s)
	return mgl32.Vec4{
		float32(c.R) / 255,
		float32(c.G) / 255,
		float32(c.B) / 255,
		float32(c.A) / 255,
	}
}
