package oauth

import (
	"slices"
	"testing"
	"time"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input   string
		want    Provider
		wantErr bool
	}{
		{"google", ProviderGoogle, false},
		{"  LinkedIn ", ProviderLinkedIn, false},
		{"facebook", "", true},
		{"", "", true},
		{"../google", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProvider(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProvider(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProvider(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestProvider_Title(t *testing.T) {
	if got := ProviderLinkedIn.Title(); got != "LinkedIn" {
		t.Errorf("Title() = %q, want LinkedIn", got)
	}
	if got := Provider("other").Title(); got != "other" {
		t.Errorf("Title() = %q, want other", got)
	}
}

func TestSession_ExpiresWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		margin    time.Duration
		expected  bool
	}{
		{"no expiry", time.Time{}, DefaultExpiryMargin, false},
		{"far future", now.Add(time.Hour), DefaultExpiryMargin, false},
		{"inside margin", now.Add(30 * time.Second), DefaultExpiryMargin, true},
		{"exactly at margin", now.Add(DefaultExpiryMargin), DefaultExpiryMargin, true},
		{"exactly at expiry without margin", now, 0, true},
		{"past", now.Add(-time.Minute), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expiresAt}
			if got := s.ExpiresWithin(now, tt.margin); got != tt.expected {
				t.Errorf("ExpiresWithin() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSession_Usable(t *testing.T) {
	now := time.Now()

	var nilSession *Session
	if nilSession.Usable(now) {
		t.Error("nil session must not be usable")
	}

	expired := &Session{ExpiresAt: now.Add(-time.Minute)}
	if expired.Usable(now) {
		t.Error("expired session without refresh token must not be usable")
	}

	expired.RefreshToken = "refresh"
	if !expired.Usable(now) {
		t.Error("expired session with refresh token should be usable")
	}

	fresh := &Session{ExpiresAt: now.Add(time.Hour)}
	if !fresh.Usable(now) {
		t.Error("unexpired session should be usable")
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	original := &Session{Provider: ProviderGoogle, Scopes: []string{"a", "b"}}
	clone := original.Clone()
	clone.Scopes[0] = "changed"

	if original.Scopes[0] != "a" {
		t.Error("Clone must not share the scopes slice")
	}

	var nilSession *Session
	if nilSession.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestSession_HasScopes(t *testing.T) {
	s := &Session{Scopes: []string{"calendar.readonly", "openid"}}

	if !s.HasScopes("openid") {
		t.Error("Expected openid to be granted")
	}
	if !s.HasScopes() {
		t.Error("Empty requirement is always satisfied")
	}
	if s.HasScopes("openid", "calendar.events") {
		t.Error("calendar.events was not granted")
	}
}

func TestNormalizeScopes(t *testing.T) {
	got := NormalizeScopes("openid profile", "email,openid", " ", "calendar.readonly")
	want := []string{"calendar.readonly", "email", "openid", "profile"}
	if !slices.Equal(got, want) {
		t.Errorf("NormalizeScopes() = %v, want %v", got, want)
	}

	if NormalizeScopes() != nil {
		t.Error("NormalizeScopes() of nothing should be nil")
	}
}

func TestProfile_DisplayName(t *testing.T) {
	tests := []struct {
		profile Profile
		want    string
	}{
		{Profile{ID: "1", Name: "Ada", Email: "ada@example.com"}, "Ada <ada@example.com>"},
		{Profile{ID: "1", Name: "Ada"}, "Ada"},
		{Profile{ID: "1", Email: "ada@example.com"}, "ada@example.com"},
		{Profile{ID: "1"}, "1"},
	}

	for _, tt := range tests {
		if got := tt.profile.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}
