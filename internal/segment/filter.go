package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Leading list markers. The symbol class needs no trailing space; the ASCII
// and dash markers only count when followed by whitespace.
var bulletPrefix = regexp.MustCompile(`^(?:[•·▪▫▬►‣⁃]\s*|[*\-—–+>»○□]\s+)`)

var (
	bareMarker    = regexp.MustCompile(`^(?:[•·▪▫▬►‣⁃*\-—–+>»○□])$`)
	numberMarker  = regexp.MustCompile(`^(?:\d+|[a-zA-Z])[.)]$`)
	punctOnly     = regexp.MustCompile(`^[^\p{L}\p{N}_\s]+$`)
	digitsOnly    = regexp.MustCompile(`^\d+$`)
	singleLetter  = regexp.MustCompile(`^[a-zA-Z]$`)
	typoArtifacts = map[string]bool{"©": true, "®": true, "™": true, "...": true, "…": true}
)

// StripBullet removes leading list markers and surrounding whitespace.
func StripBullet(s string) string {
	s = strings.TrimSpace(s)
	for {
		loc := bulletPrefix.FindStringIndex(s)
		if loc == nil || loc[1] == 0 {
			return s
		}
		s = strings.TrimSpace(s[loc[1]:])
	}
}

// IsMarker reports whether s is only a list marker or numbering token.
func IsMarker(s string) bool {
	s = strings.TrimSpace(s)
	if bareMarker.MatchString(s) || numberMarker.MatchString(s) {
		return true
	}
	return utf8.RuneCountInString(s) <= 3 && punctOnly.MatchString(s)
}

// ShouldIgnore reports whether s carries no usable text: too short, a bare
// marker, a lone number or letter, or a typographic artifact.
func ShouldIgnore(s string) bool {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < 2 {
		return true
	}
	if IsMarker(s) {
		return true
	}
	if digitsOnly.MatchString(s) || singleLetter.MatchString(s) {
		return true
	}
	return typoArtifacts[s]
}
