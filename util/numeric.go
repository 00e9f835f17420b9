package util

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Aton is like Atoi for non negative integers, with error handling chained from a previous step.
func Aton(attr string, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(attr))
	if err != nil {
		return 0, errors.Errorf("invalid number: %q", attr)
	}
	if n < 0 {
		return 0, errors.New("negative values not allowed")
	}
	return n, nil
}
