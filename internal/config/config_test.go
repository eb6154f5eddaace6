package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/cisclient/internal/common"
	perr "github.com/jo-hoe/cisclient/internal/errors"
)

func TestLoadOrCreate_WritesDefaultsAndRoundTrips(t *testing.T) {
	fsys := afero.NewMemMapFs()

	cfg, created, err := LoadOrCreate(fsys, "appsettings.json")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Default(), *cfg)

	// second call reads the file written by the first
	again, created, err := LoadOrCreate(fsys, "appsettings.json")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, *cfg, *again)
}

func TestSaveLoad_RoundTripYAML(t *testing.T) {
	fsys := afero.NewMemMapFs()
	want := Default()
	want.SeparateJobs = true
	want.TrustCerts = true
	want.MaxPollSeconds = 600

	require.NoError(t, Save(fsys, filepath.Join("conf", "settings.yaml"), want))
	got, err := Load(fsys, filepath.Join("conf", "settings.yaml"))
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	fsys := afero.NewMemMapFs()
	t.Setenv("CIS_TEST_KEY", "secret123")
	body := `{
  "baseUrl": "https://cis.example.com",
  "apiKey": "${CIS_TEST_KEY}",
  "apiKeyHeader": "X-Custom-Key",
  "errorCloseSeconds": 3,
  "pollingRateSeconds": 2,
  "separateJobs": true,
  "trustCerts": false
}`
	require.NoError(t, afero.WriteFile(fsys, "appsettings.json", []byte(body), 0o644))

	cfg, err := Load(fsys, "appsettings.json")
	require.NoError(t, err)
	assert.Equal(t, "secret123", cfg.APIKey)
	assert.Equal(t, "X-Custom-Key", cfg.APIKeyHeader)
	assert.True(t, cfg.SeparateJobs)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, 3*time.Second, cfg.ErrorCloseDelay())
	assert.Zero(t, cfg.MaxPollDuration())
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing api key",
			body: `{"baseUrl":"https://x","apiKeyHeader":"X-Api-Key","errorCloseSeconds":5,"pollingRateSeconds":7}`,
			want: "apiKey is required",
		},
		{
			name: "blank header",
			body: `{"baseUrl":"https://x","apiKey":"k","apiKeyHeader":"   ","errorCloseSeconds":5,"pollingRateSeconds":7}`,
			want: "apiKeyHeader is required",
		},
		{
			name: "zero polling rate",
			body: `{"baseUrl":"https://x","apiKey":"k","apiKeyHeader":"h","errorCloseSeconds":5,"pollingRateSeconds":0}`,
			want: "pollingRateSeconds must be greater than 0",
		},
		{
			name: "negative close delay",
			body: `{"baseUrl":"https://x","apiKey":"k","apiKeyHeader":"h","errorCloseSeconds":-1,"pollingRateSeconds":7}`,
			want: "errorCloseSeconds must be greater than 0",
		},
		{
			name: "relative base url",
			body: `{"baseUrl":"localhost","apiKey":"k","apiKeyHeader":"h","errorCloseSeconds":5,"pollingRateSeconds":7}`,
			want: "baseUrl must be an absolute URL",
		},
		{
			name: "negative max poll",
			body: `{"baseUrl":"https://x","apiKey":"k","apiKeyHeader":"h","errorCloseSeconds":5,"pollingRateSeconds":7,"maxPollSeconds":-5}`,
			want: "maxPollSeconds must be at least 0",
		},
		{
			name: "malformed json",
			body: `{"baseUrl":`,
			want: "parse appsettings.json",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, "appsettings.json", []byte(tc.body), 0o644))

			_, err := Load(fsys, "appsettings.json")
			require.Error(t, err)
			assert.True(t, perr.IsKind(err, perr.KindConfig), "kind = %v", perr.KindOf(err))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "nope.json")
	require.Error(t, err)
	assert.True(t, perr.IsKind(err, perr.KindConfig))
}

func TestLoadOrCreate_ReadOnlyFsFails(t *testing.T) {
	fsys := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, _, err := LoadOrCreate(fsys, "appsettings.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create appsettings.json")
}

func TestResolvePath(t *testing.T) {
	t.Setenv(common.ConfigEnvVar, "")
	assert.Equal(t, common.ConfigFileName, ResolvePath(""))

	t.Setenv(common.ConfigEnvVar, filepath.Join("etc", "cis.yaml"))
	assert.Equal(t, filepath.Join("etc", "cis.yaml"), ResolvePath(""))
	assert.Equal(t, "explicit.json", ResolvePath("explicit.json"))
}
