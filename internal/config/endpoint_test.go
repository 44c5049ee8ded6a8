package config

import "testing"

func TestWebSocketEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		want    string
		wantErr bool
	}{
		{name: "local defaults", cfg: ClientConfig{Environment: EnvironmentLocal}, want: "ws://localhost:3000/ws"},
		{name: "local secure", cfg: ClientConfig{Environment: EnvironmentLocal, Secure: true, Port: 8443}, want: "wss://localhost:8443/ws"},
		{name: "deployed", cfg: ClientConfig{Environment: EnvironmentDeployed, Host: "play.example.com", WebSocketPath: "sync"}, want: "wss://play.example.com/sync"},
		{name: "deployed with port", cfg: ClientConfig{Environment: EnvironmentDeployed, Host: "play.example.com", Port: 9000}, want: "wss://play.example.com:9000/ws"},
		{name: "deployed without host", cfg: ClientConfig{Environment: EnvironmentDeployed}, wantErr: true},
		{name: "explicit url", cfg: ClientConfig{WebSocketURL: "https://example.com/ws"}, want: "wss://example.com/ws"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.cfg.WebSocketEndpoint()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("WebSocketEndpoint()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeWSURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "already ws", in: "ws://127.0.0.1:3000/ws", want: "ws://127.0.0.1:3000/ws"},
		{name: "already wss", in: "wss://example.com/ws", want: "wss://example.com/ws"},
		{name: "http to ws", in: "http://127.0.0.1:3000/ws", want: "ws://127.0.0.1:3000/ws"},
		{name: "https to wss", in: "https://example.com/ws", want: "wss://example.com/ws"},
		{name: "unsupported scheme", in: "ftp://example.com", wantErr: true},
		{name: "invalid", in: "://bad-url", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeWSURL(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeWSURL(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
