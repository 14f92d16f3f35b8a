package disk

import "time"

// Record is a manifest row.
type Record struct {
	Key string
	// Filename is set when the value lives in a content file under data/.
	Filename string
	Size     int64
	// Value is the inline payload. Info leaves it empty.
	Value      []byte
	ModTime    time.Time
	AccessTime time.Time
	Extended   []byte
}

// Inline reports whether the value is stored in the manifest row.
func (r Record) Inline() bool {
	return r.Filename == ""
}
