package config

import "testing"

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{
		InstanceID: "default",
		Database:   DatabaseConfig{Driver: "oracle", DSN: "x"},
		Events:     EventsConfig{Publisher: "channel"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
		Projection: ProjectionConfig{CheckpointStore: "gorm", BatchSize: 10},
	}
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := &Config{
		InstanceID: "default",
		Database:   DatabaseConfig{Driver: "sqlite", DSN: "file:x.db"},
		Events:     EventsConfig{Publisher: "channel"},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
		Projection: ProjectionConfig{CheckpointStore: "gorm", BatchSize: 200},
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	got := SQLiteDSN("test.db")
	want := "file:test.db?cache=shared&mode=rwc"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
