// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framerec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is the BLAKE3 keyed hash of one uncompressed frame.
type Digest [32]byte

// String returns the digest in hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// frameDomainKey is the ASCII domain name zero-padded to 32 bytes.
// Changing it invalidates every existing recording.
var frameDomainKey = [32]byte{
	'f', 'r', 'a', 'm', 'e', 'p', 'o', 'r', 't', '.', 'f', 'r', 'a', 'm', 'e', 'r',
	'e', 'c', '.', 'f', 'r', 'a', 'm', 'e', 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashFrame computes the digest stored for frame.
func HashFrame(frame []byte) Digest {
	hasher, err := blake3.NewKeyed(frameDomainKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("framerec: blake3.NewKeyed: " + err.Error())
	}
	hasher.Write(frame)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
