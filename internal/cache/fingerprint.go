package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
)

// Fingerprint builds a content-addressed key: namespace + ":" + sha256 over
// the parts sorted by name. Values are length-prefixed so no two distinct
// part sets share a canonical form.
func Fingerprint(namespace string, parts map[string]string) string {
	names := make([]string, 0, len(parts))
	for k := range parts {
		names = append(names, k)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, k := range names {
		v := parts[k]
		h.Write([]byte(strconv.Itoa(len(k))))
		h.Write([]byte{':'})
		h.Write([]byte(k))
		h.Write([]byte(strconv.Itoa(len(v))))
		h.Write([]byte{':'})
		h.Write([]byte(v))
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}
