// Package canonicalhash computes deterministic byte-identity hashes over
// JSON-like structured values: maps, lists, strings, integers, decimals,
// booleans, null, and UUIDs. Equal values hash equal regardless of map
// insertion order, process, or restart.
package canonicalhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// Tag bytes distinguish value kinds inside the canonical byte stream so
// that e.g. the string "1" and the integer 1 never collide.
const (
	tagNull byte = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagUUID
	tagList
	tagMap
)

const listSeparator byte = 0x1f // unit separator, never valid UTF-8 content here

// Hash returns the 32-byte SHA-256 canonical hash of value.
func Hash(value any) [32]byte {
	h := sha256.New()
	writeValue(h, value)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HexString returns the lowercase hex encoding of Hash(value).
func HexString(value any) string {
	sum := Hash(value)
	return hex.EncodeToString(sum[:])
}

// V1Fingerprint returns the "v1:" registry-object fingerprint for value.
func V1Fingerprint(value any) string {
	return "v1:" + HexString(value)
}

// VS1Fingerprint returns the "vs1:" verb-surface fingerprint for value.
func VS1Fingerprint(value any) string {
	return "vs1:" + HexString(value)
}

type writer interface {
	Write(p []byte) (n int, err error)
}

func writeValue(w writer, v any) {
	switch val := v.(type) {
	case nil:
		w.Write([]byte{tagNull})
	case bool:
		w.Write([]byte{tagBool})
		if val {
			w.Write([]byte{1})
		} else {
			w.Write([]byte{0})
		}
	case int:
		writeInt(w, int64(val))
	case int32:
		writeInt(w, int64(val))
	case int64:
		writeInt(w, val)
	case float32:
		writeFloat(w, float64(val))
	case float64:
		writeFloat(w, val)
	case string:
		writeString(w, val)
	case uuid.UUID:
		w.Write([]byte{tagUUID})
		w.Write(val[:])
	case []byte:
		writeString(w, string(val))
	case []any:
		w.Write([]byte{tagList})
		for i, item := range val {
			if i > 0 {
				w.Write([]byte{listSeparator})
			}
			writeValue(w, item)
		}
	case map[string]any:
		writeMap(w, val)
	default:
		// Fallback: stable textual representation for any other
		// concrete type (typed structs are expected to be normalised
		// to one of the above before hashing).
		writeString(w, fmt.Sprintf("%v", val))
	}
}

func writeInt(w writer, n int64) {
	w.Write([]byte{tagInt})
	w.Write([]byte(strconv.FormatInt(n, 10)))
}

func writeFloat(w writer, f float64) {
	w.Write([]byte{tagFloat})
	// Shortest round-trippable decimal representation, normalised.
	w.Write([]byte(strconv.FormatFloat(f, 'g', -1, 64)))
}

func writeString(w writer, s string) {
	w.Write([]byte{tagString})
	w.Write([]byte(s))
}

func writeMap(w writer, m map[string]any) {
	w.Write([]byte{tagMap})
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			w.Write([]byte{listSeparator})
		}
		writeString(w, k)
		writeValue(w, m[k])
	}
}
