package voice

import (
	"context"
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in       string
		from, to string
		ok       bool
	}{
		{"Get a ride from Downtown to the University", "downtown", "the university", true},
		{"find a route from Union Station to Oakland", "union station", "oakland", true},
		{"home to work", "home", "work", true},
		{"take me home", "", "", false},
		{"from a to b to c", "", "", false},
		{"get a ride from to the park", "", "", false},
	}
	for _, tc := range cases {
		cmd, ok := ParseCommand(tc.in)
		if ok != tc.ok || cmd.From != tc.from || cmd.To != tc.to {
			t.Errorf("%q: got %+v %v", tc.in, cmd, ok)
		}
	}
}

func TestRecorderSupersedesPriorUtterance(t *testing.T) {
	r := NewRecorder(nil)
	ctx := context.Background()
	_ = r.Speak(ctx, "Heard: home to work")
	_ = r.Speak(ctx, "Okay")
	if r.Last() != "Okay" {
		t.Fatalf("unexpected current utterance %q", r.Last())
	}
	if h := r.History(); len(h) != 2 || h[0] != "Heard: home to work" {
		t.Fatalf("unexpected history %v", h)
	}
}

func TestDeviceRecognizer(t *testing.T) {
	var rec DeviceRecognizer
	got, err := rec.Recognize(context.Background(), Utterance{Transcript: "  home to work "})
	if err != nil || got != "home to work" {
		t.Fatalf("got %q %v", got, err)
	}
	if _, err := rec.Recognize(context.Background(), Utterance{Audio: []byte{1, 2}}); !errors.Is(err, ErrSpeechUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if err := (Mute{}).Speak(context.Background(), "x"); !errors.Is(err, ErrSpeechUnsupported) {
		t.Fatalf("mute speaker should be unsupported, got %v", err)
	}
}
