package db

import "testing"

func TestOpenMemory(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer d.Close()

	// Schema must be queryable after migration.
	tables := []string{
		"conversations", "conversation_turns", "verification_results",
		"content_previews", "generated_content", "user_feedback",
		"learnings", "audit_entries",
	}
	for _, table := range tables {
		var count int
		if err := d.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("querying %s: %v", table, err)
		}
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir + "/nested/marko.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	d.Close()
}
