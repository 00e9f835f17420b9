package out

import (
	"io"
	"strconv"
	"strings"

	"github.com/mathmate/tmjlink/strcoll"
)

// Reply keywords, always the first word of a line sent to the client.
const (
	Okay        = "okay"
	Exception   = "exception"
	Inline      = "inline"
	Suggestions = "suggestions"
)

// separates the reply keyword from its human readable detail
const detailSep = " -- "

// ReplyNL writes the given words separated by spaces as a single line.
func ReplyNL(w io.Writer, words ...string) error {
	_, err := io.WriteString(w, strings.Join(words, " ")+"\n")
	return err
}

// ReplyOkay writes "okay", or "okay -- <detail>" if any detail is given.
func ReplyOkay(w io.Writer, detail ...string) error {
	if len(detail) == 0 {
		return ReplyNL(w, Okay)
	}
	return ReplyNL(w, Okay+detailSep+strings.Join(detail, " "))
}

// ReplyException writes "exception -- <message>" with line breaks flattened, the client reads one line.
func ReplyException(w io.Writer, msg string) error {
	msg = strings.Join(strings.Fields(msg), " ")
	return ReplyNL(w, Exception+detailSep+msg)
}

// ReplyEither writes an exception if err is not nil, or an okay line with detail otherwise.
func ReplyEither(w io.Writer, err error, detail ...string) error {
	if err != nil {
		return ReplyException(w, err.Error())
	}
	return ReplyOkay(w, detail...)
}

// ReplyInline writes "inline <n>" followed by exactly n raw bytes, with no terminator.
func ReplyInline(w io.Writer, data []byte) error {
	if err := ReplyNL(w, Inline, strconv.Itoa(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReplySuggestions writes `suggestions ["a","b"]`.
func ReplySuggestions(w io.Writer, xs []string) error {
	return ReplyNL(w, Suggestions, strcoll.Quote(xs))
}
