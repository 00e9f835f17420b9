package strcoll

import (
	"strings"

	"github.com/mathmate/tmjlink/conv"
)

type Tuple struct {
	First, Second string
}

// Tuples is an ordered list of label/value pairs, used to print status reports.
type Tuples struct {
	data []Tuple
}

func NewTuples() Tuples {
	return Tuples{data: make([]Tuple, 0)}
}

func (ts *Tuples) Add(first string, second interface{}) {
	ts.data = append(ts.data, Tuple{first, conv.StringOf(second)})
}

func (ts Tuples) Len() int {
	return len(ts.data)
}

// Format aligns values by padding labels with dots up to `padding` characters.
func (ts Tuples) Format(padding int) string {
	lines := make([]string, 0)
	for _, t := range ts.data {
		first, second := t.First, t.Second
		dots := padding - len(first)
		if dots < 1 {
			dots = 1
		}
		first += " " + strings.Repeat(".", dots) + " "
		lines = append(lines, first+second)
	}
	return strings.Join(lines, "\n")
}
