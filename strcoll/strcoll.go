package strcoll

import "strings"

// Get returns the element of the slice at the given index or the empty string.
func Get(idx int, slice []string) string {
	if slice != nil && len(slice) > idx {
		return slice[idx]
	}
	return ""
}

// SplitKV splits strings at the first occurrence of sep, eg. "execute 12" or "user:password".
func SplitKV(s string, sep string) (string, string) {
	ret := strings.SplitN(s, sep, 2)
	return Get(0, ret), Get(1, ret)
}

// Quote renders xs as a bracketed, comma separated list of double quoted strings with no inner spaces.
// eg. {"a", "b"} becomes ["a","b"]
func Quote(xs []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range xs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(x))
	}
	b.WriteByte(']')
	return b.String()
}
