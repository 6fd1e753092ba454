package embedding

import "testing"

func TestObjectID_DeterministicPerTenantAndContentHash(t *testing.T) {
	a := objectID("t1", "hash1")
	b := objectID("t1", "hash1")
	if a != b {
		t.Fatalf("expected same UUID for identical (tenantID, contentHash), got %s vs %s", a, b)
	}
}

func TestObjectID_DiffersAcrossTenants(t *testing.T) {
	a := objectID("t1", "hash1")
	b := objectID("t2", "hash1")
	if a == b {
		t.Fatalf("expected distinct UUIDs across tenants, both got %s", a)
	}
}

func TestObjectID_DiffersAcrossContentHash(t *testing.T) {
	a := objectID("t1", "hash1")
	b := objectID("t1", "hash2")
	if a == b {
		t.Fatalf("expected distinct UUIDs across content hashes, both got %s", a)
	}
}
