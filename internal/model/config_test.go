package model

import (
	"testing"
	"time"
)

func TestRouterConfigDeviceListURL(t *testing.T) {
	t.Helper()

	tests := []struct {
		name string
		cfg  RouterConfig
		want string
	}{
		{
			name: "plain host",
			cfg:  RouterConfig{Host: "192.168.1.254"},
			want: "http://192.168.1.254/cgi-bin/devices.ha",
		},
		{
			name: "empty host uses gateway default",
			cfg:  RouterConfig{},
			want: "http://192.168.1.254/cgi-bin/devices.ha",
		},
		{
			name: "explicit https scheme is kept",
			cfg:  RouterConfig{Host: "https://192.168.1.254"},
			want: "https://192.168.1.254/cgi-bin/devices.ha",
		},
		{
			name: "path on host is dropped",
			cfg:  RouterConfig{Host: "http://192.168.1.254/cgi-bin/home.ha"},
			want: "http://192.168.1.254/cgi-bin/devices.ha",
		},
		{
			name: "host with port",
			cfg:  RouterConfig{Host: "10.0.0.1:8080"},
			want: "http://10.0.0.1:8080/cgi-bin/devices.ha",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Helper()
			got := tt.cfg.DeviceListURL()
			if got != tt.want {
				t.Fatalf("DeviceListURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouterConfigPollInterval(t *testing.T) {
	cases := map[int]time.Duration{
		0:  30 * time.Second,
		2:  5 * time.Second,
		45: 45 * time.Second,
	}
	for sec, want := range cases {
		got := RouterConfig{PollIntervalSec: sec}.PollInterval()
		if got != want {
			t.Fatalf("PollInterval(%d) = %v, want %v", sec, got, want)
		}
	}
}

func TestRouterConfigEqualIgnoresMACFormatting(t *testing.T) {
	a := RouterConfig{Host: "h", SessionID: "s", AlwaysHome: []string{"aa:bb:cc:dd:ee:ff"}}
	b := RouterConfig{Host: "h", SessionID: "s", AlwaysHome: []string{"AA-BB-CC-DD-EE-FF"}}
	if !a.Equal(b) {
		t.Fatalf("expected configs to be equal")
	}
	b.SessionID = "other"
	if a.Equal(b) {
		t.Fatalf("expected session change to be detected")
	}
}

func TestNormalizeMAC(t *testing.T) {
	cases := map[string]string{
		"aa:bb:cc:dd:ee:ff":   "AA:BB:CC:DD:EE:FF",
		" aa-bb-cc-dd-ee-ff ": "AA:BB:CC:DD:EE:FF",
		"aabbccddeeff":        "AA:BB:CC:DD:EE:FF",
		"AA:BB":               "AA:BB",
		"":                    "",
	}
	for in, want := range cases {
		if got := NormalizeMAC(in); got != want {
			t.Fatalf("NormalizeMAC(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOptionsPatchNotOlderThan(t *testing.T) {
	fileAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	session, interval := "tok", 60
	patch := OptionsPatch{SessionID: &session, PollIntervalSec: &interval}
	times := OverrideTimes{}.
		Stamp(OptionsPatch{SessionID: &session}, fileAt.Add(-time.Hour)).
		Stamp(OptionsPatch{PollIntervalSec: &interval}, fileAt.Add(time.Hour))

	kept, newest := patch.NotOlderThan(times, fileAt)
	if kept.SessionID != nil {
		t.Fatalf("session override older than the options file must be dropped")
	}
	if kept.PollIntervalSec == nil || *kept.PollIntervalSec != 60 {
		t.Fatalf("newer poll interval override must be kept, got %+v", kept)
	}
	if !newest.Equal(fileAt.Add(time.Hour)) {
		t.Fatalf("newest = %v, want %v", newest, fileAt.Add(time.Hour))
	}

	kept, _ = patch.NotOlderThan(times, time.Time{})
	if kept.SessionID == nil || kept.PollIntervalSec == nil {
		t.Fatalf("without an options file timestamp every override applies, got %+v", kept)
	}
}
