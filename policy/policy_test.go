package policy

import (
	"os"
	"reflect"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cfg := Config{Kind: "isolate", Cmd: []string{"sh", "-c", "true"}, Net: true, RW: []string{"/a", "/b"}}

	encoded, err := Encode(cfg)
	if err != nil {
		t.Fatalf("Encode() = %v", err)
	}
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() = %v", err)
	}
	if !reflect.DeepEqual(cfg, got) {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestDecode_RejectsBadBase64(t *testing.T) {
	if _, err := Decode("not base64!!"); err == nil {
		t.Error("Decode() of invalid base64 should fail")
	}
}

func TestFromEnv_MissingVar(t *testing.T) {
	os.Unsetenv(EnvVar)
	if _, err := FromEnv(); err == nil {
		t.Error("FromEnv() with no env var set should fail")
	}
}

func TestPublishThenFromEnv(t *testing.T) {
	defer os.Unsetenv(EnvVar)

	cfg := Config{Kind: "nonet", Cmd: []string{"true"}}
	if err := Publish(cfg); err != nil {
		t.Fatalf("Publish() = %v", err)
	}

	got, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() = %v", err)
	}
	if !reflect.DeepEqual(cfg, got) {
		t.Errorf("FromEnv() = %+v, want %+v", got, cfg)
	}
}
