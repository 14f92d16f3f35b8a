package disk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/release"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	manifestFileName = "manifest.sqlite"
	manifestWalName  = manifestFileName + "-wal"
	manifestShmName  = manifestFileName + "-shm"
	dataDirName      = "data"
	trashDirName     = "trash"

	maxOpenFailures  = 8
	minRetryInterval = 2 * time.Second

	// trash files removed per second
	purgeRate = 1000
)

var ErrManifestUnavailable = errors.New("disk cache manifest is unavailable")

const schema = `
create table if not exists manifest (
	key               text primary key,
	filename          text,
	size              integer not null,
	inline_payload    blob,
	modification_time integer not null,
	access_time       integer not null,
	extended_metadata blob
);
create index if not exists manifest_access_time_idx on manifest(access_time);`

// storage owns the manifest connection and the content files of one cache directory.
// It is not safe for concurrent use: the owning Cache serializes every call.
type storage struct {
	path      string
	dataPath  string
	trashPath string
	mode      config.StorageMode
	inlineMax int64
	timeout   time.Duration

	clock    clock.Clock
	releaser *release.Worker
	limiter  ratelimit.Limiter

	db              *sql.DB
	openFailures    int
	lastOpenFailure time.Time
}

func newStorage(cfg *config.DiskCfg, clk clock.Clock, releaser *release.Worker) (*storage, error) {
	path := filepath.Join(cfg.RootDirectory, cfg.Name)
	s := &storage{
		path:      path,
		dataPath:  filepath.Join(path, dataDirName),
		trashPath: filepath.Join(path, trashDirName),
		mode:      cfg.StorageMode,
		inlineMax: cfg.InlineThresholdBytes,
		timeout:   cfg.QueryTimeout,
		clock:     clk,
		releaser:  releaser,
		limiter:   ratelimit.New(purgeRate),
	}

	for _, dir := range []string{s.path, s.dataPath, s.trashPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
	}

	if err := s.open(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("[disk] manifest open failed, resetting storage")
		s.reset()
		if err = s.open(); err != nil {
			log.Error().Err(err).Str("path", s.path).Msg("[disk] manifest is unavailable after reset")
		}
	}
	s.purgeTrash()

	return s, nil
}

// open connects to the manifest and initializes its schema.
func (s *storage) open() error {
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", filepath.Join(s.path, manifestFileName))
	if err != nil {
		s.openFailed()
		return fmt.Errorf("open manifest: %w", err)
	}
	// a single connection keeps every statement on the same sqlite handle
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	for _, stmt := range []string{
		"pragma journal_mode = wal",
		"pragma synchronous = normal",
		schema,
	} {
		if _, err = db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			s.openFailed()
			return fmt.Errorf("initialize manifest: %w", err)
		}
	}

	s.db = db
	s.openFailures = 0
	s.lastOpenFailure = time.Time{}
	return nil
}

func (s *storage) openFailed() {
	s.openFailures++
	s.lastOpenFailure = s.clock.Now()
}

// conn returns the manifest connection, reopening it if the retry budget allows.
func (s *storage) conn() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	if s.openFailures >= maxOpenFailures || s.clock.Since(s.lastOpenFailure) < minRetryInterval {
		return nil, ErrManifestUnavailable
	}
	if err := s.open(); err != nil {
		log.Error().Err(err).Int("failures", s.openFailures).Str("path", s.path).Msg("[disk] manifest reopen failed")
		return nil, ErrManifestUnavailable
	}
	return s.db, nil
}

// fail inspects a statement error and drops the connection if the manifest is corrupted,
// so the next call goes through the reopen path.
func (s *storage) fail(op string, err error) error {
	if isCorrupt(err) && s.db != nil {
		log.Error().Err(err).Str("op", op).Str("path", s.path).Msg("[disk] manifest is corrupted")
		_ = s.db.Close()
		s.db = nil
		s.openFailed()
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isCorrupt(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return true
	}
	return false
}

func (s *storage) close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// reset closes the manifest, deletes its files and moves all content files to trash.
func (s *storage) reset() {
	if err := s.close(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("[disk] manifest close failed")
	}
	for _, name := range []string{manifestFileName, manifestWalName, manifestShmName} {
		if err := os.Remove(filepath.Join(s.path, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", name).Msg("[disk] manifest file removal failed")
		}
	}
	if err := s.moveDataToTrash(); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("[disk] moving data to trash failed")
	}
	s.purgeTrash()
}

// clear drops every record: reset plus reopen of an empty manifest.
func (s *storage) clear() error {
	s.reset()
	s.openFailures = 0
	s.lastOpenFailure = time.Time{}
	return s.open()
}

func (s *storage) moveDataToTrash() error {
	if err := os.MkdirAll(s.trashPath, 0o755); err != nil {
		return fmt.Errorf("create trash dir: %w", err)
	}
	dst := filepath.Join(s.trashPath, uuid.NewString())
	if err := os.Rename(s.dataPath, dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("move data dir to trash: %w", err)
	}
	if err := os.MkdirAll(s.dataPath, 0o755); err != nil {
		return fmt.Errorf("recreate data dir: %w", err)
	}
	return nil
}

// purgeTrash schedules best-effort removal of everything under trash/ on the release worker.
func (s *storage) purgeTrash() {
	trash, limiter := s.trashPath, s.limiter
	s.releaser.Release(func() {
		entries, err := os.ReadDir(trash)
		if err != nil {
			log.Warn().Err(err).Str("path", trash).Msg("[disk] reading trash failed")
			return
		}

		var removed int
		for _, entry := range entries {
			dir := filepath.Join(trash, entry.Name())
			if entry.IsDir() {
				files, _ := os.ReadDir(dir)
				for _, f := range files {
					limiter.Take()
					if os.RemoveAll(filepath.Join(dir, f.Name())) == nil {
						removed++
					}
				}
			}
			limiter.Take()
			if err = os.RemoveAll(dir); err != nil {
				log.Warn().Err(err).Str("path", dir).Msg("[disk] trash purge failed")
			}
		}
		if removed > 0 {
			log.Info().Int("files", removed).Str("path", trash).Msg("[disk] trash purged")
		}
	})
}

func (s *storage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}
