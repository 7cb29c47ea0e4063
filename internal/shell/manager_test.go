package shell

import (
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/urbanpack/offsync/internal/discover"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/metrics"
	"github.com/urbanpack/offsync/internal/netfetch"
	"github.com/urbanpack/offsync/internal/partition"
)

const testOrigin = "https://app.example.com"

func testRegistry(t *testing.T) *partition.Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, partition.AutoMigrate(db))

	return partition.NewRegistry(partition.NewEntryRepository(db),
		logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
}

// testManager wires a Manager over httpmock and an in-memory registry.
func testManager(t *testing.T, assets, boot []string) (*Manager, *partition.Registry) {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	fetcher := netfetch.NewHTTPFetcherWithClient(client)
	disc, err := discover.New(fetcher, testOrigin, log)
	require.NoError(t, err)

	reg := testRegistry(t)
	mgr, err := NewManager(Config{
		Registry: reg,
		Disc:     disc,
		Fetcher:  fetcher,
		Upstream: testOrigin,
		Prefix:   "cityshelf",
		Version:  "town-v1",
		Assets:   assets,
		Boot:     boot,
		Log:      log,
		Metrics:  metrics.NewNop(),
	})
	require.NoError(t, err)
	return mgr, reg
}

func TestEnsureCurrent_CachesStaticAndDiscoveredAssets(t *testing.T) {
	mgr, reg := testManager(t, []string{"/", "/manifest.json"}, []string{"/"})

	httpmock.RegisterResponder("GET", testOrigin+"/",
		httpmock.NewStringResponder(200,
			`<html><head><script src="/assets/app-77de.js"></script></head></html>`))
	httpmock.RegisterResponder("GET", testOrigin+"/manifest.json",
		httpmock.NewStringResponder(200, `{"name":"cityshelf"}`))
	httpmock.RegisterResponder("GET", testOrigin+"/assets/app-77de.js",
		httpmock.NewStringResponder(200, `console.log("boot")`))

	require.NoError(t, mgr.EnsureCurrent(t.Context()))

	part := reg.Open("cityshelf-shell-town-v1")
	for _, key := range []string{"/", "/manifest.json", "/assets/app-77de.js"} {
		ok, err := part.Has(t.Context(), key)
		require.NoError(t, err)
		assert.True(t, ok, "expected %s in shell partition", key)
	}
}

func TestEnsureCurrent_KeysAreRootRelative(t *testing.T) {
	mgr, reg := testManager(t, []string{"/manifest.json"}, nil)

	httpmock.RegisterResponder("GET", testOrigin+"/",
		httpmock.NewStringResponder(200, "<html></html>"))
	httpmock.RegisterResponder("GET", testOrigin+"/manifest.json",
		httpmock.NewStringResponder(200, "{}"))

	require.NoError(t, mgr.EnsureCurrent(t.Context()))

	snap, err := reg.Open(mgr.PartitionName()).Match(t.Context(), "/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "/manifest.json", snap.URL)
}

func TestEnsureCurrent_BootFailureAborts(t *testing.T) {
	mgr, _ := testManager(t, []string{"/", "/assets/app.js"}, []string{"/assets/app.js"})

	httpmock.RegisterResponder("GET", testOrigin+"/",
		httpmock.NewStringResponder(200, "<html></html>"))
	httpmock.RegisterResponder("GET", testOrigin+"/assets/app.js",
		httpmock.NewStringResponder(500, "server error"))

	err := mgr.EnsureCurrent(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBootAssetFailed)
}

func TestEnsureCurrent_OptionalFailureTolerated(t *testing.T) {
	mgr, reg := testManager(t, []string{"/", "/assets/extra.css"}, []string{"/"})

	httpmock.RegisterResponder("GET", testOrigin+"/",
		httpmock.NewStringResponder(200, "<html></html>"))
	httpmock.RegisterResponder("GET", testOrigin+"/assets/extra.css",
		httpmock.NewStringResponder(404, "not found"))

	require.NoError(t, mgr.EnsureCurrent(t.Context()))

	ok, err := reg.Open(mgr.PartitionName()).Has(t.Context(), "/assets/extra.css")
	require.NoError(t, err)
	assert.False(t, ok, "failed optional asset must not be cached")
}

func TestCacheAssets_AllOrNothing(t *testing.T) {
	mgr, _ := testManager(t, nil, nil)

	httpmock.RegisterResponder("GET", testOrigin+"/a.js",
		httpmock.NewStringResponder(200, "a"))
	httpmock.RegisterResponder("GET", testOrigin+"/b.js",
		httpmock.NewStringResponder(503, "unavailable"))

	err := mgr.CacheAssets(t.Context(), []string{"/a.js", "/b.js"})
	require.Error(t, err)
	assert.ErrorIs(t, err, netfetch.ErrBadStatus)
}

func TestPrecacheImages_CountsFailuresIndependently(t *testing.T) {
	mgr, reg := testManager(t, nil, nil)

	httpmock.RegisterResponder("GET", testOrigin+"/img/tokyo.webp",
		httpmock.NewStringResponder(200, "tokyo-bytes"))
	httpmock.RegisterResponder("GET", testOrigin+"/img/missing.webp",
		httpmock.NewStringResponder(404, "not found"))
	httpmock.RegisterResponder("GET", testOrigin+"/img/paris.webp",
		httpmock.NewStringResponder(200, "paris-bytes"))

	failed := mgr.PrecacheImages(t.Context(),
		[]string{"/img/tokyo.webp", "/img/missing.webp", "/img/paris.webp"})
	assert.Equal(t, 1, failed)

	images := reg.Open("cityshelf-images-town-v1")
	for _, key := range []string{"/img/tokyo.webp", "/img/paris.webp"} {
		ok, err := images.Has(t.Context(), key)
		require.NoError(t, err)
		assert.True(t, ok, "expected %s in images partition", key)
	}
	ok, err := images.Has(t.Context(), "/img/missing.webp")
	require.NoError(t, err)
	assert.False(t, ok)
}
