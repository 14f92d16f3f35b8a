package disk

import (
	"errors"
	"fmt"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/rs/zerolog/log"
)

var errStaleRow = errors.New("stale manifest row")

func (s *storage) useFile(size int) bool {
	switch s.mode {
	case config.StorageFile:
		return true
	case config.StorageRelational:
		return false
	default:
		return int64(size) > s.inlineMax
	}
}

// save writes the content file first and the row second; a failed row write rolls the file back.
func (s *storage) save(key string, data, extended []byte) error {
	now := s.clock.Now().Unix()

	if !s.useFile(len(data)) {
		if err := s.dbSave(key, "", int64(len(data)), data, extended, now); err != nil {
			return err
		}
		if s.mode != config.StorageRelational {
			// the key may have been stored as a file before
			_ = s.deleteFile(contentFilename(key))
		}
		return nil
	}

	name := contentFilename(key)
	if err := s.writeFile(name, data); err != nil {
		return err
	}
	if err := s.dbSave(key, name, int64(len(data)), nil, extended, now); err != nil {
		_ = s.deleteFile(name)
		return err
	}
	return nil
}

// load returns the payload of key. A row whose content file is gone is deleted.
func (s *storage) load(key string) ([]byte, bool, error) {
	r, ok, err := s.dbGet(key, true)
	if err != nil || !ok {
		return nil, false, err
	}

	data := r.inline
	if r.filename.Valid && r.filename.String != "" {
		if data, err = s.readFile(r.filename.String); err != nil {
			if derr := s.dbDelete(key); derr != nil {
				log.Warn().Err(derr).Str("key", key).Msg("[disk] stale row removal failed")
			}
			return nil, false, fmt.Errorf("%w %q: %w", errStaleRow, key, err)
		}
	}

	if data == nil {
		data = []byte{}
	}
	if err = s.dbTouch([]string{key}, s.clock.Now().Unix()); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("[disk] access time refresh failed")
	}
	return data, true, nil
}

// loadMany returns payloads of every present key, healing stale rows like load.
func (s *storage) loadMany(keys []string) (map[string][]byte, int, error) {
	rows, err := s.dbGetMany(keys)
	if err != nil {
		return nil, 0, err
	}

	var (
		out   = make(map[string][]byte, len(rows))
		found = make([]string, 0, len(rows))
		stale []string
	)
	for _, r := range rows {
		data := r.inline
		if r.filename.Valid && r.filename.String != "" {
			if data, err = s.readFile(r.filename.String); err != nil {
				stale = append(stale, r.key)
				continue
			}
		}
		if data == nil {
			data = []byte{}
		}
		out[r.key] = data
		found = append(found, r.key)
	}

	if len(stale) > 0 {
		if err = s.dbDelete(stale...); err != nil {
			log.Warn().Err(err).Int("rows", len(stale)).Msg("[disk] stale rows removal failed")
		}
	}
	if len(found) > 0 {
		if err = s.dbTouch(found, s.clock.Now().Unix()); err != nil {
			log.Warn().Err(err).Int("rows", len(found)).Msg("[disk] access time refresh failed")
		}
	}
	return out, len(stale), nil
}

// remove deletes the content file first and the row second.
func (s *storage) remove(key string) error {
	r, ok, err := s.dbGet(key, false)
	if err != nil || !ok {
		return err
	}
	if r.filename.Valid {
		if err = s.deleteFile(r.filename.String); err != nil {
			return err
		}
	}
	return s.dbDelete(key)
}

func (s *storage) removeMany(keys []string) error {
	rows, err := s.dbGetMany(keys)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.filename.Valid {
			if err = s.deleteFile(r.filename.String); err != nil {
				return err
			}
		}
	}
	return s.dbDelete(keys...)
}

// removeWhere deletes the content files of matching rows, then the rows.
func (s *storage) removeWhere(where string, arg any) (n, size int64, err error) {
	if s.mode != config.StorageRelational {
		names, err := s.dbFilenames(where, arg)
		if err != nil {
			return 0, 0, err
		}
		s.deleteFiles(names)
	}
	if n, size, err = s.dbDeleteWhere(where, arg); err != nil {
		return 0, 0, err
	}
	if n > 0 {
		s.dbCheckpoint()
	}
	return n, size, nil
}
