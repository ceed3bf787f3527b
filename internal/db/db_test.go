package db

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/hopewell/crm/internal/config"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want []string
	}{
		{
			name: "default local",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, User: "root", Name: "crm_hopewell"},
			want: []string{"root@tcp(127.0.0.1:3306)/crm_hopewell", "parseTime=true"},
		},
		{
			name: "with password",
			cfg:  config.DatabaseConfig{Host: "db.internal", Port: 3307, User: "crm", Pass: "s3cret", Name: "crm"},
			want: []string{"crm:s3cret@tcp(db.internal:3307)/crm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.cfg)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("DSN() = %q, want to contain %q", got, w)
				}
			}
		})
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "postgres"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnectAndMigrate_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "crm.db")
	gdb, err := ConnectAndMigrate(config.DatabaseConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("ConnectAndMigrate: %v", err)
	}
	if !gdb.Migrator().HasTable("cards") {
		t.Error("expected cards table after migration")
	}
	for _, col := range []string{"pipeline", "stage_ref", "rank", "fields"} {
		if !gdb.Migrator().HasColumn("cards", col) {
			t.Errorf("cards table missing column %q", col)
		}
	}
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	gdb, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := AutoMigrate(gdb); err != nil {
			t.Fatalf("AutoMigrate #%d: %v", i+1, err)
		}
	}
}

func TestAllModels_Count(t *testing.T) {
	if n := len(AllModels()); n != 1 {
		t.Errorf("AllModels() returned %d models, want 1", n)
	}
}
