package config

import "testing"

func TestParseNodeID_AcceptsDigitsOnly(t *testing.T) {
	n, ok := parseNodeID("42")
	if !ok || n != 42 {
		t.Fatalf("expected (42, true), got (%d, %v)", n, ok)
	}
}

func TestParseNodeID_RejectsNonDigits(t *testing.T) {
	if _, ok := parseNodeID("12x"); ok {
		t.Fatal("expected parseNodeID to reject a non-digit rune")
	}
}

func TestLoad_AppliesDefaultsWithoutAConfigFile(t *testing.T) {
	t.Setenv("Q_NODE_ID", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != "0.0.0.0:6380" {
		t.Fatalf("unexpected default listen addr: %q", cfg.Server.ListenAddr)
	}
	if cfg.Notify.QueueCapacity != 256 {
		t.Fatalf("unexpected default queue capacity: %d", cfg.Notify.QueueCapacity)
	}
	if cfg.Snapshot.Path != "qstore.snap" {
		t.Fatalf("unexpected default snapshot path: %q", cfg.Snapshot.Path)
	}
}

func TestLoad_NodeIDFromEnv(t *testing.T) {
	t.Setenv("Q_NODE_ID", "7")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeID != 7 {
		t.Fatalf("expected node id 7 from Q_NODE_ID, got %d", cfg.NodeID)
	}
}
