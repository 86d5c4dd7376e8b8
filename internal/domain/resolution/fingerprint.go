package resolution

import (
	"encoding/binary"
	"fmt"
	"hash"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes an alert for memoization. Metadata keys are sorted so
// map iteration order does not matter. Every field is length-prefixed and
// values carry their Go type, so distinct alerts never share an encoding.
func Fingerprint(a AlertSignal) uint64 {
	h := xxhash.New()

	writeField(h, a.Description)

	keys := make([]string, 0, len(a.Metadata))
	for k := range a.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(keys)))
	_, _ = h.Write(n[:])
	for _, k := range keys {
		v := a.Metadata[k]
		writeField(h, k)
		writeField(h, fmt.Sprintf("%T", v))
		writeField(h, fmt.Sprintf("%#v", v))
	}

	return h.Sum64()
}

func writeField(h hash.Hash64, s string) {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = h.Write(n[:])
	_, _ = h.Write([]byte(s))
}
