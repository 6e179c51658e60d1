package browser

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseCount reads a follower counter as rendered on profile pages, e.g.
// "1,234", "1.2k followers" or "3M".
func ParseCount(s string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty count")
	}
	raw := strings.ToLower(strings.ReplaceAll(fields[0], ",", ""))

	mult := 1.0
	switch {
	case strings.HasSuffix(raw, "k"):
		mult, raw = 1e3, strings.TrimSuffix(raw, "k")
	case strings.HasSuffix(raw, "m"):
		mult, raw = 1e6, strings.TrimSuffix(raw, "m")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("parse count %q", s)
	}
	return int(f*mult + 0.5), nil
}

// contactID prefers the last path segment of the profile URL, which is stable
// across display name changes.
func contactID(name, profileURL string) string {
	if profileURL == "" {
		return name
	}
	u, err := url.Parse(profileURL)
	if err != nil {
		return name
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return name
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return name
}
