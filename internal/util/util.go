// Package util holds small helpers for keeping credentials out of logs.
package util

import (
	"net/url"
	"strings"
)

// HideSecret obscures a secret for logging, showing only the first and last few characters.
func HideSecret(secret string) string {
	if len(secret) > 8 {
		return secret[:4] + "..." + secret[len(secret)-4:]
	} else if len(secret) > 4 {
		return secret[:2] + "..." + secret[len(secret)-2:]
	} else if len(secret) > 2 {
		return secret[:1] + "..." + secret[len(secret)-1:]
	}
	return secret
}

// MaskSensitiveQuery masks credential-like query parameters, e.g. token or init_data, within the raw query string.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	changed := false
	for i, part := range parts {
		if part == "" {
			continue
		}
		keyPart, valuePart, _ := strings.Cut(part, "=")
		decodedKey, err := url.QueryUnescape(keyPart)
		if err != nil {
			decodedKey = keyPart
		}
		if !shouldMaskQueryParam(decodedKey) {
			continue
		}
		decodedValue, err := url.QueryUnescape(valuePart)
		if err != nil {
			decodedValue = valuePart
		}
		parts[i] = keyPart + "=" + url.QueryEscape(HideSecret(strings.TrimSpace(decodedValue)))
		changed = true
	}
	if !changed {
		return raw
	}
	return strings.Join(parts, "&")
}

func shouldMaskQueryParam(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	key = strings.TrimSuffix(key, "[]")
	switch key {
	case "key", "hash", "init_data", "initdata":
		return true
	}
	return strings.Contains(key, "token") || strings.Contains(key, "secret") || strings.Contains(key, "password")
}
