package core

import (
	"github.com/minio/highwayhash"
)

var fingerprintKey = []byte("EWBIK-SEGMENTED-SKELETON-KEY-032")

// Fingerprint hashes data into a 64-bit value used to detect topology changes.
func Fingerprint(data []byte) (uint64, error) {
	hash, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return 0, err
	}
	_, err = hash.Write(data)
	return hash.Sum64(), err
}
