package manager

import (
	"regexp"
	"strings"

	"github.com/MikeDev101/coopstack/server/pkg/constants"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-F]{6}$`)

// NormalizeAccessCode strips everything but ASCII letters and digits and
// upper-cases the rest. The result must be 4 to 8 characters long.
func NormalizeAccessCode(code string) (string, bool) {
	var b strings.Builder
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) < constants.MinAccessCode || len(out) > constants.MaxAccessCode {
		return "", false
	}
	return out, true
}

// NormalizeColor upper-cases a #RRGGBB color.
func NormalizeColor(color string) (string, bool) {
	color = strings.ToUpper(strings.TrimSpace(color))
	return color, colorPattern.MatchString(color)
}

// pickColor returns preferred if no member holds it, else the first free
// palette color.
func (r *Room) pickColor(preferred string) string {
	used := r.UsedColors()
	if preferred != "" && !used[preferred] {
		return preferred
	}
	for _, c := range constants.Palette {
		if !used[c] {
			return c
		}
	}
	return ""
}

func (r *Room) colorTaken(color, except string) bool {
	for _, m := range r.Members {
		if m.SessionID != except && m.Color == color {
			return true
		}
	}
	return false
}

// electHost keeps a connected host. Otherwise the first connected member in
// join order takes over, or the first member if nobody is connected. It
// reports whether the host changed.
func (r *Room) electHost() bool {
	if m := r.Member(r.HostID); m != nil && m.Connected {
		return false
	}
	next := ""
	for _, m := range r.Members {
		if m.Connected {
			next = m.SessionID
			break
		}
	}
	if next == "" && len(r.Members) > 0 {
		next = r.Members[0].SessionID
	}
	changed := next != r.HostID
	r.HostID = next
	return changed
}
