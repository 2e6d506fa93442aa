package database

import (
	"testing"
)

func TestDialectBasics(t *testing.T) {
	tests := []struct {
		dialect Dialect
		driver  string
		subdir  string
	}{
		{NewSQLiteDialect(), "sqlite3", "sqlite"},
		{NewPostgresDialect(), "postgres", "postgres"},
		{NewMySQLDialect(), "mysql", "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			if got := tt.dialect.DriverName(); got != tt.driver {
				t.Errorf("DriverName() = %v, want %v", got, tt.driver)
			}
			if got := tt.dialect.MigrationsSubdir(); got != tt.subdir {
				t.Errorf("MigrationsSubdir() = %v, want %v", got, tt.subdir)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		url     string
		want    string
	}{
		{"postgres url", NewPostgresDialect(), "postgres://u:p@db:5432/stories", "postgres://u:p@db:5432/stories?application_name=storysage"},
		{"postgres url with params", NewPostgresDialect(), "postgresql://db/stories?sslmode=disable", "postgresql://db/stories?sslmode=disable&application_name=storysage"},
		{"postgres key value", NewPostgresDialect(), "host=db dbname=stories", "host=db dbname=stories application_name=storysage"},
		{"postgres keeps explicit name", NewPostgresDialect(), "postgres://db/stories?application_name=ops", "postgres://db/stories?application_name=ops"},
		{"mysql adds parseTime", NewMySQLDialect(), "u:p@tcp(db:3306)/stories", "u:p@tcp(db:3306)/stories?parseTime=true"},
		{"mysql appends parseTime", NewMySQLDialect(), "u:p@tcp(db:3306)/stories?charset=utf8mb4", "u:p@tcp(db:3306)/stories?charset=utf8mb4&parseTime=true"},
		{"mysql keeps explicit parseTime", NewMySQLDialect(), "u:p@tcp(db)/stories?parseTime=false", "u:p@tcp(db)/stories?parseTime=false"},
		{"empty", NewMySQLDialect(), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.DSN(DialectConfig{URL: tt.url}); got != tt.want {
				t.Errorf("DSN(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		query    string
		expected string
	}{
		{
			name:     "SQLite no change",
			dialect:  NewSQLiteDialect(),
			query:    "SELECT * FROM story_progress WHERE id = ?",
			expected: "SELECT * FROM story_progress WHERE id = ?",
		},
		{
			name:     "PostgreSQL multiple placeholders",
			dialect:  NewPostgresDialect(),
			query:    "SELECT * FROM story_progress WHERE story_id = ? AND user_id = ?",
			expected: "SELECT * FROM story_progress WHERE story_id = $1 AND user_id = $2",
		},
		{
			name:     "MySQL no change",
			dialect:  NewMySQLDialect(),
			query:    "UPDATE story_progress SET is_favorite = ? WHERE id = ?",
			expected: "UPDATE story_progress SET is_favorite = ? WHERE id = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.dialect.RewriteQuery(tt.query); result != tt.expected {
				t.Errorf("RewriteQuery() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestInsertIgnore(t *testing.T) {
	insert := "INSERT INTO user_achievements (id, user_id) VALUES (?, ?);"
	tests := []struct {
		name     string
		dialect  Dialect
		expected string
	}{
		{"SQLite", NewSQLiteDialect(), "INSERT OR IGNORE INTO user_achievements (id, user_id) VALUES (?, ?)"},
		{"PostgreSQL", NewPostgresDialect(), "INSERT INTO user_achievements (id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING"},
		{"MySQL", NewMySQLDialect(), "INSERT IGNORE INTO user_achievements (id, user_id) VALUES (?, ?)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.InsertIgnore(insert); got != tt.expected {
				t.Errorf("InsertIgnore() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestUpsertClause(t *testing.T) {
	conflict := []string{"user_id"}
	update := []string{"auto_play", "playback_speed"}

	want := " ON CONFLICT (user_id) DO UPDATE SET auto_play = excluded.auto_play, playback_speed = excluded.playback_speed"
	if got := NewSQLiteDialect().UpsertClause(conflict, update); got != want {
		t.Errorf("SQLite UpsertClause() = %q", got)
	}
	if got := NewPostgresDialect().UpsertClause(conflict, update); got != want {
		t.Errorf("PostgreSQL UpsertClause() = %q", got)
	}

	wantMySQL := " ON DUPLICATE KEY UPDATE auto_play = VALUES(auto_play), playback_speed = VALUES(playback_speed)"
	if got := NewMySQLDialect().UpsertClause(conflict, update); got != wantMySQL {
		t.Errorf("MySQL UpsertClause() = %q", got)
	}
}

func TestSplitStatements(t *testing.T) {
	content := `-- header
CREATE TABLE a (id TEXT);

-- trailing comment
CREATE INDEX idx_a ON a (id);
`
	stmts := splitStatements(content)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "CREATE INDEX idx_a ON a (id)" {
		t.Errorf("unexpected second statement %q", stmts[1])
	}
}
