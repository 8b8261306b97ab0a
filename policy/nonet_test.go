package policy

import "testing"

func TestNoNet_ToConfigFromConfig_RoundTrip(t *testing.T) {
	n := NewNoNet([]string{"ip", "route", "get", "8.8.8.8"})
	cfg := n.ToConfig()

	if cfg.Kind != "nonet" {
		t.Errorf("Kind = %q, want nonet", cfg.Kind)
	}

	got := NoNetFromConfig(cfg)
	if len(got.Cmd) != len(n.Cmd) || got.Cmd[0] != n.Cmd[0] {
		t.Errorf("NoNetFromConfig(cfg).Cmd = %v, want %v", got.Cmd, n.Cmd)
	}
}

func TestNoNet_Setup_RejectsEmptyCmd(t *testing.T) {
	n := NewNoNet(nil)
	if err := n.Setup(); err == nil {
		t.Error("Setup() with no command should fail")
	}
}
