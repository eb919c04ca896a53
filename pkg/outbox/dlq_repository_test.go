package outbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

func newDLQTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn := newTestDB(t)
	if err := conn.AutoMigrate(&models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate dlq: %v", err)
	}
	t.Cleanup(func() {
		conn.Exec("DELETE FROM outbox_dlqs")
	})
	return conn
}

func seedDLQEntry(t *testing.T, conn *gorm.DB, repo *DLQRepository, failedAt time.Time, message string) models.OutboxDLQ {
	t.Helper()
	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.OutboxEventOrderPaid,
		AggregateType: enums.OutboxAggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &message,
		AttemptCount:  3,
		FailedAt:      failedAt,
	}
	if err := repo.InsertTx(conn, entry); err != nil {
		t.Fatalf("InsertTx: %v", err)
	}
	return entry
}

func TestDLQInsertTruncatesLongErrors(t *testing.T) {
	conn := newDLQTestDB(t)
	repo := NewDLQRepository(conn)

	entry := seedDLQEntry(t, conn, repo, time.Now(), strings.Repeat("x", maxDLQErrorLen+200))

	found, err := repo.FindByEventID(context.Background(), entry.EventID)
	if err != nil {
		t.Fatalf("FindByEventID: %v", err)
	}
	if found == nil {
		t.Fatal("expected dead letter row")
	}
	if found.ErrorMessage == nil || len(*found.ErrorMessage) != maxDLQErrorLen {
		t.Fatalf("expected truncated message of %d bytes", maxDLQErrorLen)
	}
}

func TestDLQFindByEventIDReturnsNilWhenMissing(t *testing.T) {
	conn := newDLQTestDB(t)
	repo := NewDLQRepository(conn)

	found, err := repo.FindByEventID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("FindByEventID: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil for unknown event, got %+v", found)
	}
}

func TestDLQListNewestFirst(t *testing.T) {
	conn := newDLQTestDB(t)
	repo := NewDLQRepository(conn)

	older := seedDLQEntry(t, conn, repo, time.Now().Add(-time.Hour), "older")
	newer := seedDLQEntry(t, conn, repo, time.Now(), "newer")

	rows, err := repo.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].EventID != newer.EventID || rows[1].EventID != older.EventID {
		t.Fatal("rows not ordered newest first")
	}

	rows, err = repo.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List with limit: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected limit to apply, got %d rows", len(rows))
	}
}
