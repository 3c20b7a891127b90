package qr

import (
	"strings"
	"testing"
)

func TestEncodePNG(t *testing.T) {
	out, err := EncodePNG("ticket:0e7a4a47")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.HasPrefix(out, "data:image/png;base64,") {
		t.Fatalf("unexpected prefix: %.40s", out)
	}
	if len(out) < 100 {
		t.Fatalf("suspiciously small payload: %d bytes", len(out))
	}
}

func TestEncodePNGRequiresContent(t *testing.T) {
	if _, err := EncodePNG(""); err == nil {
		t.Fatal("expected error for empty content")
	}
}
