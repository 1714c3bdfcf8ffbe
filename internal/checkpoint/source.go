package checkpoint

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// BankFingerprint hashes a flat-encoded source bank with murmur3-128.
// The fingerprint is recorded next to the bank at write time and checked
// on restore, so a bank swapped or truncated between runs is caught
// before any particle is transported from it.
func BankFingerprint(data []float64) string {
	h := murmur3.New128()
	var buf [8]byte
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	hi, lo := h.Sum128()
	return fmt.Sprintf("%016x%016x", hi, lo)
}
