package disk

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Borislavv/go-tier-cache/codec"
	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/release"
	"github.com/Borislavv/go-tier-cache/internal/testhelp"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

type env struct {
	cache *Cache[[]byte]
	clock *clock.Mock
	rel   *release.Worker
}

func testCfg(t *testing.T) *config.DiskCfg {
	return &config.DiskCfg{
		Name:                 "test",
		RootDirectory:        t.TempDir(),
		InlineThresholdBytes: 16,
		TrimInterval:         time.Hour,
	}
}

// newEnv opens a disk tier over a temp directory; its recurring trim never fires on its own.
func newEnv(t *testing.T, cfg *config.DiskCfg) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	rel := release.New(ctx, 1024, testhelp.Logger())

	c, err := New[[]byte](ctx, cfg, codec.Bytes{}, testhelp.Logger(), WithClock(mock), WithReleaser(rel))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return &env{cache: c, clock: mock, rel: rel}
}

func dataFile(c *Cache[[]byte], key string) string {
	return filepath.Join(c.Path(), dataDirName, contentFilename(key))
}

func payload(n int) []byte {
	return bytes.Repeat([]byte{'x'}, n)
}

// TestCache_MixedModeInlineAndFile keeps small values inline and large ones in data/.
func TestCache_MixedModeInlineAndFile(t *testing.T) {
	e := newEnv(t, testCfg(t))
	c := e.cache

	require.True(t, c.Set("small", []byte("tiny")))
	require.True(t, c.Set("large", payload(1024)))

	v, ok := c.Get("small")
	require.True(t, ok)
	require.Equal(t, []byte("tiny"), v)

	v, ok = c.Get("large")
	require.True(t, ok)
	require.Equal(t, payload(1024), v)

	info, ok := c.Info("small")
	require.True(t, ok)
	require.True(t, info.Inline())
	require.Equal(t, int64(4), info.Size)
	require.NoFileExists(t, dataFile(c, "small"))

	info, ok = c.Info("large")
	require.True(t, ok)
	require.False(t, info.Inline())
	require.Equal(t, contentFilename("large"), info.Filename)
	require.FileExists(t, dataFile(c, "large"))

	r, ok, err := c.storage.dbGet("large", true)
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, r.inline)

	require.Equal(t, int64(2), c.TotalCount())
	require.Equal(t, int64(1028), c.TotalCost())
	require.FileExists(t, filepath.Join(c.Path(), manifestFileName))
	require.DirExists(t, filepath.Join(c.Path(), trashDirName))
}

// TestCache_FileMode stores even tiny values as files.
func TestCache_FileMode(t *testing.T) {
	cfg := testCfg(t)
	cfg.StorageMode = config.StorageFile
	c := newEnv(t, cfg).cache

	require.True(t, c.Set("a", []byte("1")))
	require.FileExists(t, dataFile(c, "a"))

	info, ok := c.Info("a")
	require.True(t, ok)
	require.False(t, info.Inline())
}

// TestCache_RelationalMode never writes content files.
func TestCache_RelationalMode(t *testing.T) {
	cfg := testCfg(t)
	cfg.StorageMode = config.StorageRelational
	c := newEnv(t, cfg).cache

	require.True(t, c.Set("a", payload(4096)))
	require.NoFileExists(t, dataFile(c, "a"))

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, payload(4096), v)

	entries, err := os.ReadDir(filepath.Join(c.Path(), dataDirName))
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestCache_InlineOverwriteDropsFile removes the old content file when a key shrinks.
func TestCache_InlineOverwriteDropsFile(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache

	require.True(t, c.Set("k", payload(100)))
	require.FileExists(t, dataFile(c, "k"))

	require.True(t, c.Set("k", []byte("short")))
	require.NoFileExists(t, dataFile(c, "k"))

	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("short"), v)
	require.Equal(t, int64(1), c.TotalCount())
}

// TestCache_Metadata keeps extended metadata in the row.
func TestCache_Metadata(t *testing.T) {
	e := newEnv(t, testCfg(t))
	c := e.cache

	require.True(t, c.SetWithMetadata("k", []byte("v"), []byte("etag:1")))
	info, ok := c.Info("k")
	require.True(t, ok)
	require.Equal(t, []byte("etag:1"), info.Extended)
	require.Nil(t, info.Value)
	require.Equal(t, e.clock.Now().Unix(), info.ModTime.Unix())
}

// TestCache_GetRefreshesAccessTime updates access time only on a successful read.
func TestCache_GetRefreshesAccessTime(t *testing.T) {
	e := newEnv(t, testCfg(t))
	c := e.cache
	start := e.clock.Now()

	require.True(t, c.Set("k", []byte("v")))
	e.clock.Add(10 * time.Second)

	require.True(t, c.Contains("k"))
	info, _ := c.Info("k")
	require.Equal(t, start.Unix(), info.AccessTime.Unix())

	_, ok := c.Get("k")
	require.True(t, ok)
	info, _ = c.Info("k")
	require.Equal(t, start.Add(10*time.Second).Unix(), info.AccessTime.Unix())
	require.Equal(t, start.Unix(), info.ModTime.Unix())
}

// TestCache_SelfHealsMissingFile drops a row whose content file has disappeared.
func TestCache_SelfHealsMissingFile(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache

	require.True(t, c.Set("k", payload(64)))
	require.NoError(t, os.Remove(dataFile(c, "k")))

	_, ok := c.Get("k")
	require.False(t, ok)
	require.False(t, c.Contains("k"))
	require.Equal(t, int64(0), c.TotalCount())
	require.Equal(t, int64(1), c.Stats().Healed)
}

// TestCache_FailedRowWriteRemovesFile deletes the fresh content file when the manifest rejects the row.
func TestCache_FailedRowWriteRemovesFile(t *testing.T) {
	e := newEnv(t, testCfg(t))
	c := e.cache

	require.NoError(t, c.storage.close())
	c.storage.openFailures = 1
	c.storage.lastOpenFailure = e.clock.Now()

	require.False(t, c.Set("k", payload(64)))
	require.NoFileExists(t, dataFile(c, "k"))

	entries, err := os.ReadDir(filepath.Join(c.Path(), dataDirName))
	require.NoError(t, err)
	require.Empty(t, entries)

	e.clock.Add(3 * time.Second)
	require.False(t, c.Contains("k"))
	require.Equal(t, int64(0), c.TotalCount())
}

// TestCache_ConcurrentRowsMatchFiles keeps one content file per row under concurrent writes, reads and trims.
func TestCache_ConcurrentRowsMatchFiles(t *testing.T) {
	cfg := testCfg(t)
	cfg.StorageMode = config.StorageFile
	c := newEnv(t, cfg).cache

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 150; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%40)
				switch i % 5 {
				case 0, 1:
					c.Set(key, payload(32+i%7))
				case 2:
					_, _ = c.Get(key)
				case 3:
					c.Remove(key)
				default:
					c.TrimToCount(25)
				}
			}
		}(g)
	}
	wg.Wait()

	require.True(t, c.lock())
	names, err := c.storage.dbFilenames("1 = ?", 1)
	c.unlock()
	require.NoError(t, err)

	count := c.TotalCount()
	require.LessOrEqual(t, count, int64(40))
	require.Len(t, names, int(count))

	entries, err := os.ReadDir(filepath.Join(c.Path(), dataDirName))
	require.NoError(t, err)
	onDisk := make(map[string]struct{}, len(entries))
	for _, de := range entries {
		onDisk[de.Name()] = struct{}{}
	}
	require.Len(t, onDisk, len(names))
	for _, name := range names {
		require.Contains(t, onDisk, name)
	}
}

// TestCache_GetMany returns present keys and heals stale rows.
func TestCache_GetMany(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache

	require.True(t, c.Set("a", []byte("1")))
	require.True(t, c.Set("b", payload(32)))
	require.True(t, c.Set("stale", payload(32)))
	require.NoError(t, os.Remove(dataFile(c, "stale")))

	got := c.GetMany([]string{"a", "b", "stale", "absent", ""})
	require.Equal(t, map[string][]byte{"a": []byte("1"), "b": payload(32)}, got)
	require.False(t, c.Contains("stale"))
	require.Equal(t, int64(1), c.Stats().Healed)
	require.Empty(t, c.GetMany(nil))
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestCache_FailedTouchIsLogged still answers reads and reports a rejected access time update.
func TestCache_FailedTouchIsLogged(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache
	require.True(t, c.Set("a", []byte("1")))
	require.True(t, c.Set("b", payload(32)))

	require.True(t, c.lock())
	_, err := c.storage.db.Exec(`create trigger reject_touch before update of access_time on manifest
		begin select raise(abort, 'touch rejected'); end`)
	c.unlock()
	require.NoError(t, err)

	out := &logBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(out)
	t.Cleanup(func() { log.Logger = prev })

	got := c.GetMany([]string{"a", "b"})
	require.Len(t, got, 2)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.Equal(t, 2, strings.Count(out.String(), "access time refresh failed"))
}

// TestCache_RemoveAndRemoveMany delete files first and rows second.
func TestCache_RemoveAndRemoveMany(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache

	for _, k := range []string{"a", "b", "c", "d"} {
		require.True(t, c.Set(k, payload(32)))
	}

	require.True(t, c.Remove("a"))
	require.True(t, c.Remove("absent"))
	require.False(t, c.Remove(""))
	require.NoFileExists(t, dataFile(c, "a"))
	require.False(t, c.Contains("a"))

	require.True(t, c.RemoveMany([]string{"b", "c", "absent"}))
	require.NoFileExists(t, dataFile(c, "b"))
	require.NoFileExists(t, dataFile(c, "c"))
	require.Equal(t, int64(1), c.TotalCount())
	require.True(t, c.Contains("d"))
}

// TestCache_EmptyKeyAndFailedEncode never write anything.
func TestCache_EmptyKeyAndFailedEncode(t *testing.T) {
	cfg := testCfg(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := New[string](ctx, cfg, codec.String{}, testhelp.Logger(), WithReleaser(release.New(ctx, 16, testhelp.Logger())))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.False(t, c.Set("", "v"))
	require.False(t, c.Set("bad", string([]byte{0xff, 0xfe})))
	require.Equal(t, int64(0), c.TotalCount())

	_, ok := c.Get("")
	require.False(t, ok)
	require.False(t, c.Contains(""))

	require.True(t, c.Set("good", "привет"))
	v, ok := c.Get("good")
	require.True(t, ok)
	require.Equal(t, "привет", v)
}

// TestCache_RemoveLargerThan drops oversized records; a non-positive size clears.
func TestCache_RemoveLargerThan(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache

	require.True(t, c.Set("small", payload(8)))
	require.True(t, c.Set("big", payload(100)))

	require.True(t, c.RemoveLargerThan(50))
	require.True(t, c.Contains("small"))
	require.False(t, c.Contains("big"))
	require.NoFileExists(t, dataFile(c, "big"))

	require.True(t, c.RemoveLargerThan(math.MaxInt64))
	require.True(t, c.Contains("small"))

	require.True(t, c.RemoveLargerThan(0))
	require.Equal(t, int64(0), c.TotalCount())
}

// TestCache_RemoveOlderThan drops records accessed before the instant.
func TestCache_RemoveOlderThan(t *testing.T) {
	e := newEnv(t, testCfg(t))
	c := e.cache

	require.True(t, c.Set("old", payload(32)))
	e.clock.Add(time.Minute)
	require.True(t, c.Set("new", []byte("n")))

	require.True(t, c.RemoveOlderThan(time.Unix(0, 0)))
	require.Equal(t, int64(2), c.TotalCount())

	require.True(t, c.RemoveOlderThan(e.clock.Now().Add(-time.Second)))
	require.False(t, c.Contains("old"))
	require.NoFileExists(t, dataFile(c, "old"))
	require.True(t, c.Contains("new"))
}

// TestCache_SixtyKeysLimitTwenty keeps the twenty most recently accessed keys after a trim pass.
func TestCache_SixtyKeysLimitTwenty(t *testing.T) {
	cfg := testCfg(t)
	cfg.CountLimit = 20
	e := newEnv(t, cfg)
	c := e.cache

	for i := 0; i < 60; i++ {
		require.True(t, c.Set(fmt.Sprintf("k%d", i), payload(i)))
		e.clock.Add(time.Second)
	}
	c.Trim()

	require.Equal(t, int64(20), c.TotalCount())
	for i := 0; i < 60; i++ {
		require.Equal(t, i >= 40, c.Contains(fmt.Sprintf("k%d", i)), "k%d", i)
	}
	require.Equal(t, int64(40), c.Stats().Evicted)
}

// TestCache_TrimToCost evicts least recently accessed records first.
func TestCache_TrimToCost(t *testing.T) {
	e := newEnv(t, testCfg(t))
	c := e.cache

	for i := 0; i < 10; i++ {
		require.True(t, c.Set(fmt.Sprintf("k%d", i), payload(100)))
		e.clock.Add(time.Second)
	}
	// k0 becomes the most recently accessed
	_, ok := c.Get("k0")
	require.True(t, ok)

	require.True(t, c.TrimToCost(350))
	require.Equal(t, int64(300), c.TotalCost())
	require.True(t, c.Contains("k0"))
	require.True(t, c.Contains("k9"))
	require.True(t, c.Contains("k8"))
	require.False(t, c.Contains("k1"))

	require.True(t, c.TrimToCost(0))
	require.Equal(t, int64(0), c.TotalCount())
}

// TestCache_ExpirationSeconds drops a record idle for longer than the configured seconds.
func TestCache_ExpirationSeconds(t *testing.T) {
	cfg := testCfg(t)
	cfg.Expiration = config.Seconds(4)
	cfg.TrimInterval = time.Second
	e := newEnv(t, cfg)

	require.True(t, e.cache.Set("k", payload(64)))

	require.Eventually(t, func() bool {
		e.clock.Add(time.Second)
		return !e.cache.Contains("k")
	}, 5*time.Second, 10*time.Millisecond)
	require.NoFileExists(t, dataFile(e.cache, "k"))
}

// TestCache_TrimToAgeZeroClears empties the tier for a non-positive age.
func TestCache_TrimToAgeZeroClears(t *testing.T) {
	cfg := testCfg(t)
	cfg.Expiration = config.Seconds(0)
	c := newEnv(t, cfg).cache

	require.True(t, c.Set("a", []byte("1")))
	require.True(t, c.Set("b", payload(64)))
	require.NoError(t, c.ForceTrim(5*time.Second))
	require.Equal(t, int64(0), c.TotalCount())
}

// TestCache_TrimToFreeDiskSpace clears the tier when the floor cannot be reached.
func TestCache_TrimToFreeDiskSpace(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache
	require.True(t, c.Set("a", payload(64)))

	require.True(t, c.TrimToFreeDiskSpace(0))
	require.True(t, c.TrimToFreeDiskSpace(1))
	require.True(t, c.Contains("a"))

	free, err := freeDiskSpace(c.Path())
	require.NoError(t, err)
	require.Greater(t, free, int64(0))

	require.True(t, c.TrimToFreeDiskSpace(math.MaxInt64/2))
	require.Equal(t, int64(0), c.TotalCount())
}

// TestCache_RemoveAllMovesDataToTrash recreates data/ and purges the trash in background.
func TestCache_RemoveAllMovesDataToTrash(t *testing.T) {
	e := newEnv(t, testCfg(t))
	c := e.cache

	for i := 0; i < 5; i++ {
		require.True(t, c.Set(fmt.Sprintf("k%d", i), payload(128)))
	}
	require.True(t, c.RemoveAll())
	require.Equal(t, int64(0), c.TotalCount())
	require.DirExists(t, filepath.Join(c.Path(), dataDirName))
	require.NoFileExists(t, dataFile(c, "k0"))

	require.NoError(t, e.rel.Flush(5*time.Second))
	entries, err := os.ReadDir(filepath.Join(c.Path(), trashDirName))
	require.NoError(t, err)
	require.Empty(t, entries)

	// the tier keeps working after a clear
	require.True(t, c.Set("again", payload(128)))
	require.True(t, c.Contains("again"))
}

// TestCache_RecoversCorruptManifest resets the storage when the manifest is not a database.
func TestCache_RecoversCorruptManifest(t *testing.T) {
	cfg := testCfg(t)
	dir := filepath.Join(cfg.RootDirectory, cfg.Name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, dataDirName), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFileName), bytes.Repeat([]byte("garbage!"), 512), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataDirName, "orphan"), []byte("x"), 0o644))

	e := newEnv(t, cfg)
	c := e.cache

	require.Equal(t, int64(0), c.TotalCount())
	require.NoFileExists(t, filepath.Join(dir, dataDirName, "orphan"))
	require.True(t, c.Set("k", payload(64)))
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, payload(64), v)

	require.NoError(t, e.rel.Flush(5*time.Second))
	entries, err := os.ReadDir(filepath.Join(dir, trashDirName))
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestCache_ReopenIsRateLimited stays degraded until the retry window has passed.
func TestCache_ReopenIsRateLimited(t *testing.T) {
	e := newEnv(t, testCfg(t))
	c := e.cache
	require.True(t, c.Set("k", []byte("v")))

	require.NoError(t, c.storage.close())
	c.storage.openFailures = 1
	c.storage.lastOpenFailure = e.clock.Now()

	_, err := c.storage.conn()
	require.ErrorIs(t, err, ErrManifestUnavailable)
	require.Equal(t, int64(-1), c.TotalCount())
	require.False(t, c.Contains("k"))

	e.clock.Add(3 * time.Second)
	require.True(t, c.Contains("k"))
	require.Equal(t, 0, c.storage.openFailures)

	require.NoError(t, c.storage.close())
	c.storage.openFailures = maxOpenFailures
	e.clock.Add(time.Hour)
	require.Equal(t, int64(-1), c.TotalCost())
	_, ok := c.Get("k")
	require.False(t, ok)
}

// TestCache_AsyncCallbacks runs async operations in order on the I/O worker.
func TestCache_AsyncCallbacks(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache

	var (
		mu    sync.Mutex
		steps []string
		wg    sync.WaitGroup
	)
	record := func(s string) {
		mu.Lock()
		steps = append(steps, s)
		mu.Unlock()
		wg.Done()
	}

	wg.Add(7)
	c.SetAsync("k", payload(64), func(ok bool) { record(fmt.Sprintf("set:%v", ok)) })
	c.ContainsAsync("k", func(ok bool) { record(fmt.Sprintf("contains:%v", ok)) })
	c.GetAsync("k", func(v []byte, ok bool) { record(fmt.Sprintf("get:%v:%d", ok, len(v))) })
	c.TotalCountAsync(func(n int64) { record(fmt.Sprintf("count:%d", n)) })
	c.TotalCostAsync(func(n int64) { record(fmt.Sprintf("cost:%d", n)) })
	c.RemoveAsync("k", func(key string) { record("remove:" + key) })
	c.RemoveAllAsync(func(ok bool) { record(fmt.Sprintf("clear:%v", ok)) })
	c.SetAsync("nil-callback", []byte("v"), nil)
	wg.Wait()

	require.Equal(t, []string{
		"set:true",
		"contains:true",
		"get:true:64",
		"count:1",
		"cost:64",
		"remove:k",
		"clear:true",
	}, steps)
}

// TestCache_ClosedIsDegraded answers every call negatively after Close.
func TestCache_ClosedIsDegraded(t *testing.T) {
	c := newEnv(t, testCfg(t)).cache
	require.True(t, c.Set("k", []byte("v")))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, ok := c.Get("k")
	require.False(t, ok)
	require.False(t, c.Set("k", []byte("v")))
	require.Equal(t, int64(-1), c.TotalCount())
	require.Error(t, c.ForceTrim(50*time.Millisecond))

	done := make(chan bool, 1)
	c.ContainsAsync("k", func(ok bool) { done <- ok })
	require.False(t, <-done)
}

// TestContentFilename is a stable 128-bit hex digest of the key.
func TestContentFilename(t *testing.T) {
	a := contentFilename("key")
	require.Len(t, a, 32)
	require.Equal(t, a, contentFilename("key"))
	require.NotEqual(t, a, contentFilename("key2"))
}

// TestNew_RequiresName rejects a config without a cache name.
func TestNew_RequiresName(t *testing.T) {
	_, err := New[[]byte](context.Background(), &config.DiskCfg{}, codec.Bytes{}, testhelp.Logger())
	require.ErrorIs(t, err, config.ErrDiskNameRequired)
}
