package storage

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/cockroachdb/pebble"
)

// versioned decodes only the version field of an order, account or level record
type versioned struct {
	Version uint64 `json:"version"`
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decodeJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}

func encodeID(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}

func decodeID(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

// reader is implemented by both *pebble.DB and *pebble.Batch
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// getJSON loads key into v. found is false if the key does not exist.
func getJSON(r reader, key []byte, v any) (found bool, err error) {
	data, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()

	if err := decodeJSON(data, v); err != nil {
		return true, err
	}
	return true, nil
}

// getVersion returns the version stored under key, 0 if absent
func getVersion(r reader, key []byte) (uint64, error) {
	var v versioned
	if _, err := getJSON(r, key, &v); err != nil {
		return 0, err
	}
	return v.Version, nil
}
