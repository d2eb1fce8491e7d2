package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/proctor/internal/config"
	"github.com/zulandar/proctor/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "no password",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "proctor",
			want:     "root@tcp(127.0.0.1:3306)/proctor?parseTime=true&loc=UTC&clientFoundRows=true",
		},
		{
			name:     "with password",
			user:     "proctor",
			password: "s3cret",
			host:     "db.internal",
			port:     3307,
			database: "proctor_prod",
			want:     "proctor:s3cret@tcp(db.internal:3307)/proctor_prod?parseTime=true&loc=UTC&clientFoundRows=true",
		},
		{
			name: "admin, no database",
			user: "root",
			host: "localhost",
			port: 3306,
			want: "root@tcp(localhost:3306)/?parseTime=true&loc=UTC&clientFoundRows=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.password, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("proctor.db")
	if !strings.HasPrefix(dsn, "proctor.db?") {
		t.Errorf("SQLiteDSN = %q, want proctor.db prefix", dsn)
	}
	if !strings.Contains(dsn, "_busy_timeout=") {
		t.Errorf("SQLiteDSN = %q, want busy timeout", dsn)
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 5 {
		t.Errorf("AllModels() returned %d models, want 5", got)
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "oracle"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnect_MySQLError(t *testing.T) {
	// Port 1 is unlikely to have a MySQL server; expect connection error.
	_, err := Connect(config.DatabaseConfig{Driver: "mysql", User: "root", Host: "127.0.0.1", Port: 1, Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected error connecting to invalid port")
	}
	if !strings.Contains(err.Error(), "db: connect to") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db: connect to")
	}
}

func TestConnect_SQLiteAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proctor.db")
	gormDB, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	for _, m := range AllModels() {
		if !gormDB.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}

	iv := models.Interview{ID: "iv-1", JoinCode: "ABC123", Status: "not_started"}
	if err := gormDB.Create(&iv).Error; err != nil {
		t.Fatalf("create interview: %v", err)
	}
	dup := models.Interview{ID: "iv-2", JoinCode: "ABC123"}
	if err := gormDB.Create(&dup).Error; err == nil {
		t.Error("expected unique violation on join_code")
	}
}
