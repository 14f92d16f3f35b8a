package disk

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// row is a manifest row as scanned; nullable columns stay nullable.
type row struct {
	key      string
	filename sql.NullString
	size     int64
	inline   []byte
	modTime  int64
	access   int64
	extended []byte
}

func (r row) record() Record {
	return Record{
		Key:        r.key,
		Filename:   r.filename.String,
		Size:       r.size,
		Value:      r.inline,
		ModTime:    time.Unix(r.modTime, 0),
		AccessTime: time.Unix(r.access, 0),
		Extended:   r.extended,
	}
}

func (s *storage) dbSave(key, filename string, size int64, inline, extended []byte, now int64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	var fn any
	if filename != "" {
		fn = filename
		inline = nil
	}
	_, err = db.ExecContext(ctx,
		`insert or replace into manifest
			(key, filename, size, inline_payload, modification_time, access_time, extended_metadata)
			values (?, ?, ?, ?, ?, ?, ?)`,
		key, fn, size, inline, now, now, extended,
	)
	if err != nil {
		return s.fail("save row", err)
	}
	return nil
}

// dbGet returns the row of key. The inline payload is fetched only if withPayload is set.
func (s *storage) dbGet(key string, withPayload bool) (row, bool, error) {
	db, err := s.conn()
	if err != nil {
		return row{}, false, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	payload := "inline_payload"
	if !withPayload {
		payload = "null"
	}

	var r row
	err = db.QueryRowContext(ctx,
		`select key, filename, size, `+payload+`, modification_time, access_time, extended_metadata
			from manifest where key = ?`, key,
	).Scan(&r.key, &r.filename, &r.size, &r.inline, &r.modTime, &r.access, &r.extended)
	if errors.Is(err, sql.ErrNoRows) {
		return row{}, false, nil
	}
	if err != nil {
		return row{}, false, s.fail("get row", err)
	}
	return r, true, nil
}

func (s *storage) dbGetMany(keys []string) ([]row, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := db.QueryContext(ctx,
		`select key, filename, size, inline_payload, modification_time, access_time, extended_metadata
			from manifest where key in (`+placeholders(len(keys))+`)`, args(keys)...,
	)
	if err != nil {
		return nil, s.fail("get rows", err)
	}
	defer rows.Close()

	out := make([]row, 0, len(keys))
	for rows.Next() {
		var r row
		if err = rows.Scan(&r.key, &r.filename, &r.size, &r.inline, &r.modTime, &r.access, &r.extended); err != nil {
			return nil, s.fail("scan rows", err)
		}
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, s.fail("iterate rows", err)
	}
	return out, nil
}

func (s *storage) dbContains(key string) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	var n int
	if err = db.QueryRowContext(ctx, `select count(*) from manifest where key = ?`, key).Scan(&n); err != nil {
		return false, s.fail("contains row", err)
	}
	return n > 0, nil
}

func (s *storage) dbTouch(keys []string, now int64) error {
	if len(keys) == 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	_, err = db.ExecContext(ctx,
		`update manifest set access_time = ? where key in (`+placeholders(len(keys))+`)`,
		append([]any{now}, args(keys)...)...,
	)
	if err != nil {
		return s.fail("touch rows", err)
	}
	return nil
}

func (s *storage) dbDelete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err = db.ExecContext(ctx, `delete from manifest where key in (`+placeholders(len(keys))+`)`, args(keys)...); err != nil {
		return s.fail("delete rows", err)
	}
	return nil
}

// dbFilenames returns content filenames of rows matching where.
func (s *storage) dbFilenames(where string, arg any) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := db.QueryContext(ctx, `select filename from manifest where filename is not null and `+where, arg)
	if err != nil {
		return nil, s.fail("select filenames", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, s.fail("scan filename", err)
		}
		out = append(out, name)
	}
	if err = rows.Err(); err != nil {
		return nil, s.fail("iterate filenames", err)
	}
	return out, nil
}

// dbDeleteWhere deletes rows matching where and returns how many rows and bytes were removed.
func (s *storage) dbDeleteWhere(where string, arg any) (n, size int64, err error) {
	db, err := s.conn()
	if err != nil {
		return 0, 0, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if err = db.QueryRowContext(ctx, `select count(*), coalesce(sum(size), 0) from manifest where `+where, arg).Scan(&n, &size); err != nil {
		return 0, 0, s.fail("measure rows", err)
	}
	if n == 0 {
		return 0, 0, nil
	}
	if _, err = db.ExecContext(ctx, `delete from manifest where `+where, arg); err != nil {
		return 0, 0, s.fail("delete rows", err)
	}
	return n, size, nil
}

// dbOldest returns up to limit rows ordered from the least recently accessed, without payloads.
func (s *storage) dbOldest(limit int) ([]row, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := db.QueryContext(ctx,
		`select key, filename, size from manifest order by access_time asc, rowid asc limit ?`, limit,
	)
	if err != nil {
		return nil, s.fail("select oldest rows", err)
	}
	defer rows.Close()

	out := make([]row, 0, limit)
	for rows.Next() {
		var r row
		if err = rows.Scan(&r.key, &r.filename, &r.size); err != nil {
			return nil, s.fail("scan oldest row", err)
		}
		out = append(out, r)
	}
	if err = rows.Err(); err != nil {
		return nil, s.fail("iterate oldest rows", err)
	}
	return out, nil
}

func (s *storage) dbCount() (int64, error) {
	return s.dbScalar(`select count(*) from manifest`)
}

func (s *storage) dbSize() (int64, error) {
	return s.dbScalar(`select coalesce(sum(size), 0) from manifest`)
}

func (s *storage) dbScalar(query string) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return -1, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	var v int64
	if err = db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return -1, s.fail("scalar query", err)
	}
	return v, nil
}

// dbCheckpoint merges the write-ahead log into the manifest file.
func (s *storage) dbCheckpoint() {
	db, err := s.conn()
	if err != nil {
		return
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_, _ = db.ExecContext(ctx, `pragma wal_checkpoint(passive)`)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func args(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
