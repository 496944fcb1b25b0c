package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CookieRecord is one persisted cookie. The jar file is a JSON array of
// these records; absence or corruption both mean "log in again".
type CookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// JarPath derives the per-account cookie jar location.
func JarPath(dir, userID, accountUsername string) string {
	return filepath.Join(dir, userID, accountUsername+"_cookies.json")
}

// LoadJar reads a cookie jar file. A missing or unreadable or corrupt
// jar returns an error; callers fall back to credential login.
func LoadJar(path string) ([]CookieRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookie jar: %w", err)
	}
	var cookies []CookieRecord
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse cookie jar: %w", err)
	}
	return cookies, nil
}

// SaveJar overwrites the jar with the given cookie set. Called only
// after a successful login so a failed attempt never corrupts the jar.
func SaveJar(path string, cookies []CookieRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cookie directory: %w", err)
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cookie jar: %w", err)
	}
	return nil
}
