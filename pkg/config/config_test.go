package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service.Name != "be-trade-contracts" {
		t.Errorf("service name = %q", cfg.Service.Name)
	}
	if cfg.Server.Port != 8086 || cfg.GRPC.Port != 9086 {
		t.Errorf("ports = %d/%d", cfg.Server.Port, cfg.GRPC.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("driver = %q", cfg.Store.Driver)
	}
	if cfg.NATS.Enabled() {
		t.Error("expected NATS disabled without URL")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "8100")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("COUNTERPARTIES_URL", "http://counterparties:8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.MaxConns != 20 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if !cfg.NATS.Enabled() {
		t.Error("expected NATS enabled")
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Clients.CounterpartiesURL != "http://counterparties:8080" {
		t.Errorf("counterparties url = %q", cfg.Clients.CounterpartiesURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"same ports", map[string]string{"SERVER_PORT": "9000", "GRPC_PORT": "9000"}},
		{"min over max", map[string]string{"DB_MIN_CONNS": "30", "DB_MAX_CONNS": "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, Database: "d", SSLMode: "disable"}
	want := "postgres://u:p@h:5432/d?sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
