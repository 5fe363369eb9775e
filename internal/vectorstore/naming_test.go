package vectorstore

import (
	"strings"
	"testing"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		name     string
		tenantID string
	}{
		{"plain", "acme"},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000"},
		{"mixed case", "Acme-Corp"},
		{"punctuation", "tenant.with/odd:chars"},
		{"unicode", "ténant-ø"},
		{"very long", strings.Repeat("verylongtenantidentifier", 10)},
	}

	seen := make(map[string]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CollectionName(tt.tenantID)

			if got != CollectionName(tt.tenantID) {
				t.Error("name is not deterministic")
			}
			if !strings.HasPrefix(got, "org_") {
				t.Errorf("name %q missing org_ prefix", got)
			}
			// Must be a safe PostgreSQL identifier within the 63-byte
			// limit.
			if len(got) > 63 {
				t.Errorf("name %q is %d bytes, exceeds identifier limit", got, len(got))
			}
			for _, r := range got {
				if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
					t.Errorf("name %q contains unsafe rune %q", got, r)
				}
			}

			if prev, ok := seen[got]; ok {
				t.Errorf("tenants %q and %q collide on %q", prev, tt.tenantID, got)
			}
			seen[got] = tt.tenantID
		})
	}
}

func TestCollectionNameDisambiguatesSanitizedCollisions(t *testing.T) {
	// Both sanitize to the same prefix; the hash suffix must keep the
	// collections apart.
	a := CollectionName("acme corp")
	b := CollectionName("acme-corp")
	if a == b {
		t.Fatalf("distinct tenants share collection %q", a)
	}
}
