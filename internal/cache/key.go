package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"

	"github.com/specialistvlad/datagridgo/internal/record"
)

// Key addresses one node result. Each part is a hex-encoded sha256 digest.
type Key struct {
	Data string
	Code string
	Env  string
}

// String renders the key as "data:code:env". It is also the storage key.
func (k Key) String() string {
	return k.Data + ":" + k.Code + ":" + k.Env
}

// NewKey hashes the input batch and combines it with the precomputed code and
// environment hashes.
func NewKey(input record.Batch, codeHash, envHash string) (Key, error) {
	data, err := record.DataHash(input)
	if err != nil {
		return Key{}, err
	}
	return Key{Data: data, Code: codeHash, Env: envHash}, nil
}

// Environment is the host fingerprint: anything outside the pipeline that
// may influence operator output (library versions, model files, locale).
type Environment map[string]string

// EnvHash digests env over its sorted key/value pairs. A nil environment has
// a stable hash of its own.
func EnvHash(env Environment) string {
	h := sha256.New()
	for _, k := range slices.Sorted(maps.Keys(env)) {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(env[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
