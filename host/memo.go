package host

import (
	"crypto/sha256"

	"github.com/chazu/spyglass/wire"
)

// memoKey identifies one memoized call: the operation name plus a digest
// of the canonical encoding of its arguments.
type memoKey struct {
	op     string
	digest [32]byte
}

// memoKeyFor computes the cache key for a call. Returns false when the
// arguments cannot be digested deterministically (any range argument, or
// anything the canonical encoder rejects); such calls skip the cache.
func memoKeyFor(op string, args []wire.Value) (memoKey, bool) {
	for _, arg := range args {
		if wire.ContainsRange(arg) {
			return memoKey{}, false
		}
	}
	payload := struct {
		Op   string       `cbor:"o"`
		Args []wire.Value `cbor:"a"`
	}{Op: op, Args: args}
	data, err := wire.CanonicalMarshal(payload)
	if err != nil {
		return memoKey{}, false
	}
	return memoKey{op: op, digest: sha256.Sum256(data)}, true
}
