package manifest

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives a short, collision-tolerant token from the tuple that
// identifies a file across a reconnect (path, size, modified_at, mime). It
// is deliberately fast and stable rather than cryptographically binding:
// collision-tolerance across a resume is the goal, not integrity proof.
func Fingerprint(path string, size, modifiedAt int64, mime string) string {
	h, _ := blake2b.New256(nil)

	h.Write([]byte(path))
	h.Write([]byte{0})

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(size))
	h.Write(buf[:])

	binary.LittleEndian.PutUint64(buf[:], uint64(modifiedAt))
	h.Write(buf[:])

	h.Write([]byte(mime))

	sum := h.Sum(nil)
	return encodeHex(sum[:16])
}

const hexDigits = "0123456789abcdef"

func encodeHex(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
