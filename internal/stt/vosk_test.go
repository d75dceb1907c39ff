package stt

import "testing"

func TestParseVoskText(t *testing.T) {
	text, err := parseVoskText(`{"text": " hello world "}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestParseVoskTextEmpty(t *testing.T) {
	text, err := parseVoskText(`{"text": ""}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestParseVoskPartial(t *testing.T) {
	text, err := parseVoskPartial(`{"partial": "hel"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hel" {
		t.Fatalf("unexpected partial: %q", text)
	}
}

func TestParseVoskMalformed(t *testing.T) {
	if _, err := parseVoskText(`not json`); err == nil {
		t.Fatal("expected error for malformed result")
	}
}

func TestInt16ToPCMLittleEndian(t *testing.T) {
	got := int16ToPCM([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xfe, 0xff}
	if len(got) != len(want) {
		t.Fatalf("unexpected length %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, got[i], want[i])
		}
	}
}
