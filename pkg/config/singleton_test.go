package config

import (
	"sync/atomic"
	"testing"
)

func TestInitialize(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	path := writeConfig(t, "config.yaml", `
server:
  listen_address: "127.0.0.1:8181"
`)

	if err := Initialize(path); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config after initialization")
	}
	if cfg.Server.ListenAddress != "127.0.0.1:8181" {
		t.Errorf("expected listen address %q, got %q", "127.0.0.1:8181", cfg.Server.ListenAddress)
	}
	if Path() != path {
		t.Errorf("expected path %q, got %q", path, Path())
	}
}

func TestInitialize_MultipleCallsIgnored(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	first := writeConfig(t, "first.yaml", `server: {listen_address: "127.0.0.1:1111"}`)
	second := writeConfig(t, "second.yaml", `server: {listen_address: "127.0.0.1:2222"}`)

	if err := Initialize(first); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}
	if err := Initialize(second); err != nil {
		t.Fatalf("unexpected error on second initialize: %v", err)
	}

	if got := GetConfig().Server.ListenAddress; got != "127.0.0.1:1111" {
		t.Errorf("expected first config to win, got %q", got)
	}
}

func TestReloadConfig(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	path := writeConfig(t, "config.yaml", `server: {listen_address: "127.0.0.1:1111"}`)
	if err := Initialize(path); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	var notified atomic.Int32
	OnReload(func(cfg *Config) {
		if cfg.Telemetry.Logging.Level == "debug" {
			notified.Add(1)
		}
	})

	updated := writeConfig(t, "updated.yaml", `telemetry: {logging: {level: "debug"}}`)
	if err := ReloadConfig(updated); err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if GetConfig().Telemetry.Logging.Level != "debug" {
		t.Error("expected reloaded config to be active")
	}
	if notified.Load() != 1 {
		t.Errorf("expected 1 notification, got %d", notified.Load())
	}

	invalid := writeConfig(t, "invalid.yaml", `telemetry: {logging: {level: "loud"}}`)
	if err := ReloadConfig(invalid); err == nil {
		t.Fatal("expected reload of invalid config to fail")
	}
	if GetConfig().Telemetry.Logging.Level != "debug" {
		t.Error("expected previous config to remain after failed reload")
	}
	if notified.Load() != 1 {
		t.Errorf("expected no notification on failed reload, got %d", notified.Load())
	}
}

func TestReloadConfig_SubscribersSnapshot(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	path := writeConfig(t, "config.yaml", `server: {listen_address: "127.0.0.1:1111"}`)
	if err := Initialize(path); err != nil {
		t.Fatal(err)
	}

	var first, late atomic.Int32
	OnReload(func(*Config) {
		if first.Add(1) == 1 {
			OnReload(func(*Config) { late.Add(1) })
		}
	})

	for i := 0; i < 2; i++ {
		if err := ReloadConfig(path); err != nil {
			t.Fatalf("reload %d: %v", i, err)
		}
	}
	if first.Load() != 2 {
		t.Errorf("first subscriber notified %d times, want 2", first.Load())
	}
	if late.Load() != 1 {
		t.Errorf("subscriber added during a reload notified %d times, want 1", late.Load())
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	defer func() {
		if recover() == nil {
			t.Error("expected panic when config is not initialized")
		}
	}()
	MustGetConfig()
}
