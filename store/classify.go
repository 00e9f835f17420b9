package store

import (
	"strings"

	"github.com/mathmate/tmjlink/kernel"
)

// IsGraphics tells whether an evaluation result should be rasterized, judging by its head.
// Lists are looked into once, so a list of plots still renders as an image.
func IsGraphics(e *kernel.Expr) bool {
	return isGraphics(e, true)
}

func isGraphics(e *kernel.Expr, descend bool) bool {
	if e == nil {
		return false
	}
	switch {
	case e.Head == "InputForm":
		return false
	case e.Head == "Graphics", e.Head == "Graphics3D":
		return true
	case strings.HasSuffix(e.Head, "Form"):
		return true
	case e.Head == "List" && descend:
		return isGraphics(e.First(), false)
	}
	return false
}
