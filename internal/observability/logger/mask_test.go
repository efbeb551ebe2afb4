package logger

import "testing"

func TestMaskAuthorization(t *testing.T) {
	got := MaskAuthorization("Bearer abcdef1234")
	want := "Bearer ****1234"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskCookie(t *testing.T) {
	got := MaskCookie("session=abcdef1234; other=xyz")
	want := "session=****1234; other=****xyz"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMaskJSON(t *testing.T) {
	input := map[string]any{
		"client_secret": "hunter2",
		"token":         "abc12345",
		"customer_id":   "123456",
		"nested": map[string]any{
			"session_id": "sess_12345678",
		},
	}
	masked := MaskJSON(input)
	if masked["client_secret"] != "****ter2" {
		t.Fatalf("expected masked client_secret, got %v", masked["client_secret"])
	}
	if masked["token"] != "****2345" {
		t.Fatalf("expected masked token, got %v", masked["token"])
	}
	if masked["customer_id"] != "123456" {
		t.Fatalf("customer ids are not sensitive, got %v", masked["customer_id"])
	}
	nested, ok := masked["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map")
	}
	if nested["session_id"] != "****5678" {
		t.Fatalf("expected masked session_id, got %v", nested["session_id"])
	}
}
