package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests.
// Version suffix enables future algorithm migration.
const (
	DomainRow   = "tabula/row/v1"
	DomainTable = "tabula/table/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RowDigest computes a content digest for one stored row of an entity type.
// Identical (entity, key, snapshot) triples always produce identical digests.
func RowDigest(entity string, key Key, snap Snapshot) (string, error) {
	keyBytes, err := marshalCanonicalArray(key)
	if err != nil {
		return "", fmt.Errorf("RowDigest: key: %w", err)
	}
	snapBytes, err := marshalCanonicalObject(snap)
	if err != nil {
		return "", fmt.Errorf("RowDigest: snapshot: %w", err)
	}

	data := make([]byte, 0, len(entity)+len(keyBytes)+len(snapBytes)+2)
	data = append(data, entity...)
	data = append(data, 0x00)
	data = append(data, keyBytes...)
	data = append(data, 0x00)
	data = append(data, snapBytes...)
	return hashWithDomain(DomainRow, data), nil
}

// CombineDigests folds an ordered list of digests into one. The caller is
// responsible for a deterministic order (tables iterate rows by key).
func CombineDigests(entity string, digests []string) string {
	data := []byte(entity)
	for _, d := range digests {
		data = append(data, 0x00)
		data = append(data, d...)
	}
	return hashWithDomain(DomainTable, data)
}
