package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mathmate/tmjlink/kernel"
	"github.com/pkg/errors"
)

// Kind is what a Resource holds, and decides how it renders.
type Kind int

const (
	InputEcho Kind = iota
	InfoText
	WarningText
	Graphic
	ReturnValue
)

// String returns the css class of the cell.
func (k Kind) String() string {
	switch k {
	case InputEcho:
		return "input"
	case InfoText:
		return "text"
	case WarningText:
		return "message"
	case Graphic:
		return "display"
	case ReturnValue:
		return "return"
	default:
		return "unknown"
	}
}

func (k Kind) margin() string {
	switch k {
	case InputEcho:
		return "In"
	case InfoText, WarningText:
		return "Msg"
	default:
		return "Out"
	}
}

func kindOf(m kernel.Message) Kind {
	if m.Kind == kernel.Warning {
		return WarningText
	}
	return InfoText
}

// Resource is one logged evaluation artifact.
type Resource struct {
	Kind Kind
	Turn int
	// input, message or return value text
	Text string
	// only for return values
	Expr *kernel.Expr
	// image file name, only for graphics
	File string
	// subdued resources render collapsed
	Visible bool

	// session folder the file lives in
	dir string
}

// Path is the absolute location of the image file of a Graphic, or "".
func (r *Resource) Path() string {
	if r.Kind != Graphic {
		return ""
	}
	return filepath.Join(r.dir, r.File)
}

// release deletes the image file of a Graphic, if any.
func (r *Resource) release() error {
	if r.Kind != Graphic {
		return nil
	}
	if err := os.Remove(r.Path()); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "releasing %s", r.File)
	}
	return nil
}

func (r *Resource) render(b *strings.Builder) {
	style := ""
	if !r.Visible {
		style = " style='display:none;'"
	}
	fmt.Fprintf(b, "<div class='cell %s'%s>", r.Kind, style)
	fmt.Fprintf(b, "<div class='margin'>%s[%d] := </div>", r.Kind.margin(), r.Turn)
	b.WriteString("<div class='content'>")
	if r.Kind == Graphic {
		fmt.Fprintf(b, "<img src='%s' onclick='toggle(%d)' />", Escape(r.Path()), r.Turn)
	} else {
		b.WriteString(Escape(r.Text))
	}
	b.WriteString("</div></div>")
}
