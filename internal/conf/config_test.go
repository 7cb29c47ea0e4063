package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
upstream: https://app.example.com
cache:
  shell_version: town-v1
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8970", s.Listen)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "cityshelf", s.Cache.Prefix)
	assert.Equal(t, "v1", s.Cache.EntityVersion)
	assert.Equal(t, "/guide/%s", s.Entity.DocRoute)
	assert.Equal(t, "sqlite", s.Database.Driver)
	assert.Equal(t, 30*time.Second, s.Fetch.Timeout.Std())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
upstream: https://app.example.com
cache:
  prefix: guides
  shell_version: town-v3
  entity_version: v2
shell:
  assets: ["/", "/manifest.json", "/assets/app.js"]
  boot: ["/", "/assets/app.js"]
fetch:
  timeout: 5s
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", s.Listen)
	assert.Equal(t, "guides", s.Cache.Prefix)
	assert.Equal(t, "town-v3", s.Cache.ShellVersion)
	assert.Equal(t, []string{"/", "/manifest.json", "/assets/app.js"}, s.Shell.Assets)
	assert.Equal(t, 5*time.Second, s.Fetch.Timeout.Std())
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("OFFSYNC_UPSTREAM", "https://app.example.com")
	t.Setenv("OFFSYNC_CACHE_SHELL_VERSION", "town-v9")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "town-v9", s.Cache.ShellVersion)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Settings {
		return &Settings{
			Upstream: "https://app.example.com",
			Cache: CacheSettings{
				Prefix:       "cityshelf",
				ShellVersion: "town-v1",
			},
			Entity: EntitySettings{
				DocRoute:  "/guide/%s",
				DataRoute: "/api/guides/%s",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"missing upstream", func(s *Settings) { s.Upstream = "" }, "upstream"},
		{"relative upstream", func(s *Settings) { s.Upstream = "/just/a/path" }, "absolute"},
		{"missing shell version", func(s *Settings) { s.Cache.ShellVersion = "" }, "shell_version"},
		{"missing prefix", func(s *Settings) { s.Cache.Prefix = "" }, "prefix"},
		{"doc route without placeholder", func(s *Settings) { s.Entity.DocRoute = "/guide/static" }, "placeholder"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(s)
			err := s.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestShellSettings_FallbackDoc(t *testing.T) {
	assert.Equal(t, "/", ShellSettings{}.FallbackDoc())
	assert.Equal(t, "/", ShellSettings{Boot: []string{"/", "/assets/app.js"}}.FallbackDoc())
	assert.Equal(t, "/index.html", ShellSettings{Boot: []string{"/index.html"}}.FallbackDoc())
}

func TestEntitySettings_Routes(t *testing.T) {
	e := EntitySettings{DocRoute: "/guide/%s", DataRoute: "/api/guides/%s"}
	assert.Equal(t, "/guide/tokyo", e.DocURL("tokyo"))
	assert.Equal(t, "/api/guides/tokyo", e.DataURL("tokyo"))
}
