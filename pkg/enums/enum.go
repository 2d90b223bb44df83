// Package enums holds the string enums stored in Postgres enum columns.
package enums

import (
	"fmt"
	"slices"
)

func known[T ~string](v T, all []T) bool {
	return slices.Contains(all, v)
}

func parse[T ~string](raw string, all []T, kind string) (T, error) {
	if v := T(raw); known(v, all) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
