package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestInventoryMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_inventory_items.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_items",
		"PRIMARY KEY (product_id, vendor_id)",
		"CHECK (available_qty >= 0)",
		"CHECK (reserved_qty >= 0)",
		"CHECK (reserved_qty <= available_qty)",
		"DROP TABLE IF EXISTS inventory_items",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationEnforcesUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_payments.sql")

	checks := []string{
		"CONSTRAINT ux_payments_provider_session UNIQUE (provider, provider_session_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_order_active",
		"ON payments (order_id) WHERE status = 'initiated'",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEscrowReleaseMigrationIsUniquePerOrder(t *testing.T) {
	content := readMigration(t, "*_create_escrow_releases.sql")
	if !strings.Contains(content, "CONSTRAINT ux_escrow_releases_order_id UNIQUE (order_id)") {
		t.Error("escrow releases must be unique per order")
	}
}

func TestOutboxDLQMigrationIsUniquePerEvent(t *testing.T) {
	content := readMigration(t, "*_create_outbox_dlq.sql")
	if !strings.Contains(content, "ux_outbox_dlqs_event_id ON outbox_dlqs (event_id)") {
		t.Error("outbox dlq rows must be unique per event")
	}
}

func TestWebhookLogMigrationDeduplicatesEvents(t *testing.T) {
	content := readMigration(t, "*_create_webhook_logs.sql")
	if !strings.Contains(content, "CONSTRAINT ux_webhook_logs_provider_event UNIQUE (provider, event_id)") {
		t.Error("webhook logs must be unique per provider event")
	}
}
