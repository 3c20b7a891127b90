package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTicketMigrationContainsCapacityConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_events_and_tickets.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no events/tickets migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS events",
		"CREATE TABLE IF NOT EXISTS event_tickets",
		"FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE",
		"CHECK (sold_quantity >= 0)",
		"CHECK (sold_quantity <= total_quantity)",
		"DROP TABLE IF EXISTS event_tickets",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
