package vectorstore

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxNamePrefix keeps collection names well under PostgreSQL's 63-byte
// identifier limit once the hash suffix is appended.
const maxNamePrefix = 40

// CollectionName derives the tenant's collection name deterministically
// from the tenant id. A sha256 suffix disambiguates tenant ids that
// sanitize to the same prefix, so distinct tenants can never share a
// collection.
func CollectionName(tenantID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tenantID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	prefix := b.String()
	if len(prefix) > maxNamePrefix {
		prefix = prefix[:maxNamePrefix]
	}

	sum := sha256.Sum256([]byte(tenantID))
	return "org_" + prefix + "_" + hex.EncodeToString(sum[:4])
}
