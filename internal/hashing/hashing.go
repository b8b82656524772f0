// Package hashing provides the content and key hashes used across the store:
// MD5 for key-to-table-name derivation and SHA-256 for document content and
// schema fingerprints.
package hashing

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// IndexTablePrefix is prepended to the MD5 of a key to form the dynamic
// index table name.
const IndexTablePrefix = "index_"

// MD5Hex returns the lowercase hex MD5 of s. MD5 is used only for table-name
// derivation, never for integrity.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IndexTableName derives the dynamic index table name for a flattened key.
func IndexTableName(key string) string {
	return IndexTablePrefix + MD5Hex(key)
}
