package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJarPath(t *testing.T) {
	got := JarPath("data/cookies", "user-1", "brand_account")
	assert.Equal(t, filepath.Join("data/cookies", "user-1", "brand_account_cookies.json"), got)
}

func TestJarRoundTrip(t *testing.T) {
	path := JarPath(t.TempDir(), "user-1", "brand_account")
	cookies := []CookieRecord{
		{Name: "sessionid", Value: "abc123", Domain: ".instagram.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "csrftoken", Value: "tok", Domain: ".instagram.com", Path: "/"},
	}

	require.NoError(t, SaveJar(path, cookies))

	got, err := LoadJar(path)
	require.NoError(t, err)
	assert.Equal(t, cookies, got)
}

func TestLoadJarMissing(t *testing.T) {
	_, err := LoadJar(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadJarCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{not json"), 0o600))

	_, err := LoadJar(path)
	assert.Error(t, err)
}

func TestSaveJarOverwrites(t *testing.T) {
	path := JarPath(t.TempDir(), "user-1", "acct")
	require.NoError(t, SaveJar(path, []CookieRecord{{Name: "old", Value: "1"}}))
	require.NoError(t, SaveJar(path, []CookieRecord{{Name: "new", Value: "2"}}))

	got, err := LoadJar(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Name)
}
