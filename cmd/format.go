package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/getgetleads/connect/internal/oauth"
)

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// formatExpiry formats an expiry relative to now as "in X" or
// "expired X ago". A nil expiry means the provider reported no lifetime.
func formatExpiry(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return text.FgHiBlack.Sprint("no expiry")
	}
	remaining := expiresAt.Sub(now)
	if remaining > 0 {
		return "in " + formatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", formatDuration(-remaining))
}

// formatConnection renders the connection state of a provider.
func formatConnection(status oauth.ProviderStatus, guest bool) string {
	switch {
	case guest:
		return text.FgHiBlack.Sprint("Guest")
	case status.Connected:
		return text.FgGreen.Sprint("Connected")
	case !status.Configured:
		return text.FgHiBlack.Sprint("Not configured")
	default:
		return text.FgYellow.Sprint("Not connected")
	}
}

// formatRefresh renders whether a session can be refreshed.
func formatRefresh(status oauth.ProviderStatus) string {
	if !status.Connected {
		return ""
	}
	if status.Refreshable {
		return text.FgGreen.Sprint("Available")
	}
	return text.FgYellow.Sprint("Not available")
}

// formatScopes shortens Google scope URLs to their last path segment.
func formatScopes(scopes []string) string {
	short := make([]string, 0, len(scopes))
	for _, s := range scopes {
		short = append(short, strings.TrimPrefix(s, "https://www.googleapis.com/auth/"))
	}
	return strings.Join(short, " ")
}
