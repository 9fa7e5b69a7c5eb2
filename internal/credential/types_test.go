package credential

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input    string
		expected Provider
		wantErr  bool
	}{
		{"providera", ProviderA, false},
		{"ProviderA", ProviderA, false},
		{"providerb", ProviderB, false},
		{"PROVIDERB", ProviderB, false},
		{"", "", true},
		{"salesforce", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			p, err := ParseProvider(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %q, got provider %q", tc.input, p)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, p)
			}
		})
	}
}

func TestValidateTenantKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"simple", "tenant-1", false},
		{"numeric", "42", false},
		{"max length", strings.Repeat("a", 128), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"embedded space", "tenant 1", true},
		{"control character", "tenant\x00", true},
		{"newline", "tenant\n1", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTenantKey(tc.key)
			if tc.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestRecord_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		margin    time.Duration
		expected  bool
	}{
		{"valid token", time.Now().Add(time.Hour), 0, false},
		{"expired token", time.Now().Add(-time.Second), 0, true},
		{"expiring within margin", time.Now().Add(10 * time.Second), 30 * time.Second, true},
		{"outside margin", time.Now().Add(time.Hour), 30 * time.Second, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := Record{ExpiresAt: tc.expiresAt}
			if got := rec.IsExpired(tc.margin); got != tc.expected {
				t.Errorf("IsExpired(%v) = %v, expected %v", tc.margin, got, tc.expected)
			}
		})
	}
}

func TestRedactedToken_NeverLeaks(t *testing.T) {
	tok := NewRedactedToken("super-secret-value")

	if tok.Value() != "super-secret-value" {
		t.Errorf("Value() should return the wrapped token")
	}

	for name, rendered := range map[string]string{
		"String":   tok.String(),
		"Sprintf":  fmt.Sprintf("%v", tok),
		"GoString": fmt.Sprintf("%#v", tok),
	} {
		if strings.Contains(rendered, "super-secret-value") {
			t.Errorf("%s leaked the token value: %s", name, rendered)
		}
	}
}

func TestRecord_JSONRedactsSecrets(t *testing.T) {
	rec := Record{
		TenantKey:    "T1",
		Provider:     ProviderA,
		AccessToken:  NewRedactedToken("access-secret"),
		RefreshToken: NewRedactedToken("refresh-secret"),
		ExpiresAt:    time.Now().Add(time.Hour),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Failed to marshal record: %v", err)
	}

	body := string(data)
	if strings.Contains(body, "access-secret") || strings.Contains(body, "refresh-secret") {
		t.Errorf("Serialized record leaked a secret: %s", body)
	}
	if !strings.Contains(body, "[REDACTED]") {
		t.Errorf("Expected redaction marker in serialized record: %s", body)
	}
}
