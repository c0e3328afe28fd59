// Package redact masks operator secrets and issued tokens before they reach
// logs, the journal or any read-only surface.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
)

// DefaultSensitiveKeys are log attribute keys whose values are always masked.
var DefaultSensitiveKeys = []string{
	"secret", "admin_key", "x-admin-key", "password", "token",
}

// MaskSecret hides an operator secret completely.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// MaskToken keeps the first and last two runes of a credential so an
// operator can tell tokens apart without reading them. Values of six runes
// or fewer are masked completely.
func MaskToken(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) == 0 {
		return ""
	}
	if len(r) <= 6 {
		return "***"
	}
	return string(r[:2]) + "…" + string(r[len(r)-2:])
}

// Fingerprint returns "sha256:" plus the first 12 hex characters of the
// hash of s. Used where a token must be correlated but never stored.
func Fingerprint(s string) string {
	if s == "" {
		return ""
	}
	h := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(h[:])[:12]
}

// ReplaceAttr returns a slog.HandlerOptions.ReplaceAttr function that masks
// the default sensitive keys plus any extra keys (case-insensitive).
func ReplaceAttr(extraKeys []string) func(groups []string, a slog.Attr) slog.Attr {
	keySet := make(map[string]bool, len(DefaultSensitiveKeys)+len(extraKeys))
	for _, k := range DefaultSensitiveKeys {
		keySet[strings.ToLower(k)] = true
	}
	for _, k := range extraKeys {
		keySet[strings.ToLower(k)] = true
	}

	return func(groups []string, a slog.Attr) slog.Attr {
		if !keySet[strings.ToLower(a.Key)] {
			return a
		}
		if a.Value.Kind() != slog.KindString {
			return a
		}
		if strings.ToLower(a.Key) == "token" {
			return slog.String(a.Key, MaskToken(a.Value.String()))
		}
		return slog.String(a.Key, MaskSecret(a.Value.String()))
	}
}
