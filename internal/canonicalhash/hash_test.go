package canonicalhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashDeterministic(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2}
	b := map[string]any{"b": 2, "a": 1}

	assert.Equal(t, Hash(a), Hash(b), "map key order must not affect the hash")
}

func TestHashDistinguishesTypes(t *testing.T) {
	assert.NotEqual(t, Hash("1"), Hash(1), "string \"1\" and int 1 must hash differently")
}

func TestHashNestedStructures(t *testing.T) {
	x := map[string]any{
		"list": []any{1, "two", 3.0},
		"nested": map[string]any{
			"z": true,
			"y": nil,
		},
	}
	y := map[string]any{
		"nested": map[string]any{
			"y": nil,
			"z": true,
		},
		"list": []any{1, "two", 3.0},
	}
	assert.Equal(t, Hash(x), Hash(y))
}

func TestFingerprintPrefixes(t *testing.T) {
	v := map[string]any{"k": "v"}
	assert.Regexp(t, `^v1:[0-9a-f]{64}$`, V1Fingerprint(v))
	assert.Regexp(t, `^vs1:[0-9a-f]{64}$`, VS1Fingerprint(v))
	assert.NotEqual(t, V1Fingerprint(v), VS1Fingerprint(v))
}

func TestHashListOrderMatters(t *testing.T) {
	a := []any{1, 2, 3}
	b := []any{3, 2, 1}
	assert.NotEqual(t, Hash(a), Hash(b))
}
