package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// CalculateURLHash returns the hex MD5 of a URL. It is used for log masking,
// not for anything security sensitive.
func CalculateURLHash(url string) string {
	if url == "" {
		return ""
	}
	hash := md5.Sum([]byte(url))
	return fmt.Sprintf("%x", hash)
}

// CalculateURLHashShort returns the first 8 characters of CalculateURLHash.
func CalculateURLHashShort(url string) string {
	full := CalculateURLHash(url)
	if len(full) >= 8 {
		return full[:8]
	}
	return full
}

// URLSetChecksum hashes a URL collection independent of order and
// duplicates, so two captures of the same set share a checksum.
func URLSetChecksum(urls []string) string {
	seen := make(map[string]struct{}, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}
	sort.Strings(unique)

	sum := sha256.Sum256([]byte(strings.Join(unique, "\n")))
	return hex.EncodeToString(sum[:])
}
