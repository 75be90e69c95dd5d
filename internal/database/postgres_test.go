package database

import "testing"

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{"001_kv_slots.sql", 1},
		{"012_add_index.sql", 12},
		{"kv_slots.sql", 0},
		{"001_kv_slots.sql.bak", 0},
		{"README.md", 0},
		{"abc_x.sql", 0},
	}
	for _, tc := range tests {
		if got := migrationVersion(tc.name); got != tc.expected {
			t.Errorf("migrationVersion(%q) = %d, expected %d", tc.name, got, tc.expected)
		}
	}
}
