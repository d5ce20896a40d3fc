// Package legacyhash holds the MD5 digests the upload service expects on the
// wire: payload tags (data-hash) and the salted login challenge. It exists
// for compatibility with the existing server only.
package legacyhash

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Sum returns the upper-case hex MD5 digest of data.
func Sum(data []byte) string {
	sum := md5.Sum(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Salted returns Sum(salt + input), with both strings taken as UTF-8.
func Salted(input, salt string) string {
	return Sum([]byte(salt + input))
}
