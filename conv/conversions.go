package conv

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ByteCountDecimal formats byte sizes in a human readable way.
// Shamelessly stolen from http://programming.guide/go/formatting-byte-size-to-human-readable-format.html
func ByteCountDecimal(z int64) string {
	n := int64(math.Abs(float64(z)))
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d b", z)
	}
	div, exp := int64(unit), 0
	for n := n / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	var neg string
	if z != n {
		neg = "-"
	}
	return fmt.Sprintf("%s%.1f%cb", neg, float64(n)/float64(div), "kMGTPE"[exp])
}

// StringOf converts any interface to a string, with special treatment of slices, durations and float64.
func StringOf(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.2f", x)
	case []string:
		return strings.Join(x, ",")
	case time.Duration:
		return x.Round(time.Millisecond).String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
