package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestMigrateCreatesSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "storysage.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	applied, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected at least one migration to run")
	}

	tables := []string{"story_progress", "user_settings", "user_achievements", "devices", "progress_events"}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	again, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no migrations on second run, got %v", again)
	}
}

func TestTransactionsAndInsertIgnore(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "storysage.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	insert := "INSERT INTO user_achievements (id, user_id, achievement_id, unlocked_at) VALUES (?, ?, ?, ?)"
	now := time.Now().UTC()

	inserted, err := db.InsertIgnore(ctx, insert, "a1", "u1", "first-story", now)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	inserted, err = db.InsertIgnore(ctx, insert, "a2", "u1", "first-story", now)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Error("duplicate achievement should be ignored")
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, insert, "a3", "u2", "first-story", now)
		if err != nil {
			return err
		}
		return context.Canceled
	})
	if err == nil {
		t.Fatal("expected rollback error")
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_achievements WHERE user_id = ?", "u2").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("rolled back insert is visible: count=%d", count)
	}
}
