package main

import (
	"net/url"
	"regexp"
	"strings"
)

var passwordPattern = regexp.MustCompile(`(?i)password=\S+`)

// redactURL keeps scheme, host and user name so logs stay useful. Passwords
// go, and so do paths and queries deep enough to carry an RPC provider key.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	switch {
	case u.User == nil:
	case u.User.Username() == "":
		u.User = url.User("redacted")
	default:
		u.User = url.User(u.User.Username())
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	if strings.Count(u.Path, "/") > 1 {
		u.Path = "/redacted"
		u.RawPath = ""
	}
	return u.String()
}

// sanitizeError replaces every secret URL in err with its redacted form.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, s := range secrets {
		if s == "" {
			continue
		}
		replacement := redactURL(s)
		if replacement == "" {
			replacement = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, s, replacement)
	}
	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
