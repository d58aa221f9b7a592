package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/seedmix/internal/repositories"
	"github.com/desertthunder/seedmix/internal/shared"
	tu "github.com/desertthunder/seedmix/internal/testing"
	"github.com/goccy/go-json"
	"github.com/gorilla/sessions"
	"github.com/urfave/cli/v3"
)

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Credentials.Spotify.ClientID = "client-id"
	config.Credentials.Spotify.ClientSecret = "client-secret"
	config.Credentials.Spotify.RedirectURI = "http://127.0.0.1:3000/callback"
	config.Database.Path = filepath.Join(t.TempDir(), "seedmix.db")
	return config
}

// run executes args against the registered commands, e.g. run(r, "auth", "url").
func run(t *testing.T, r *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "seedmix", Commands: r.register()}
	return app.Run(context.Background(), append([]string{"seedmix"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{
				Config: config,
				Logger: logger,
				Output: output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.endpoints.APIBaseURL != "https://api.spotify.com/v1" {
				t.Errorf("expected default API base URL, got %q", runner.endpoints.APIBaseURL)
			}
		})

		t.Run("http client uses configured timeout", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.HTTP.Timeout = shared.Duration{Duration: 7 * time.Second}

			runner := NewRunner(RunnerOpts{Config: config})
			if runner.httpClient.Timeout != 7*time.Second {
				t.Errorf("expected 7s timeout, got %v", runner.httpClient.Timeout)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		want := []string{"serve", "tui", "setup", "auth"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd.Name != want[i] {
				t.Errorf("expected command %q at index %d, got %q", want[i], i, cmd.Name)
			}
		}
	})
}

func TestAuthURL(t *testing.T) {
	t.Run("prints URL with state", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: testConfig(t), Output: output})

		if err := run(t, runner, "auth", "url", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var body struct {
			URL   string `json:"url"`
			State string `json:"state"`
		}
		if err := json.Unmarshal(output.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON output %q: %v", output.String(), err)
		}
		if body.State == "" || !strings.Contains(body.URL, "state="+body.State) {
			t.Errorf("expected state in URL, got %+v", body)
		}
		if !strings.Contains(body.URL, "client_id=client-id") {
			t.Errorf("expected client id in URL, got %s", body.URL)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		config := testConfig(t)
		config.Credentials.Spotify.ClientSecret = ""
		runner := NewRunner(RunnerOpts{Config: config, Output: &bytes.Buffer{}})

		err := run(t, runner, "auth", "url")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestCallbackAddr(t *testing.T) {
	tc := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{"loopback with port", "http://127.0.0.1:3000/callback", "127.0.0.1:3000", false},
		{"default http port", "http://localhost/callback", "localhost:80", false},
		{"default https port", "https://example.com/callback", "example.com:443", false},
		{"wrong path", "http://127.0.0.1:3000/auth", "", true},
		{"no host", "/callback", "", true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := callbackAddr(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSetup(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

		if err := run(t, runner, "setup", "config", "--config", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("expected loadable config, got %v", err)
		}
		if err := run(t, runner, "setup", "config", "--config", path); err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("database", func(t *testing.T) {
		config := testConfig(t)
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Config: config, Output: output})
		missing := filepath.Join(t.TempDir(), "missing.toml")

		if err := run(t, runner, "setup", "database", "--config", missing); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := os.Stat(config.Database.Path); err != nil {
			t.Errorf("expected database file, got %v", err)
		}

		if err := run(t, runner, "setup", "database", "--config", missing, "--rollback"); err != nil {
			t.Fatalf("expected rollback to succeed, got %v", err)
		}
		if !strings.Contains(output.String(), "Rolled back") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}

func TestSessionStore(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	t.Run("cookie", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: testConfig(t)})

		store, closeStore, err := runner.sessionStore(context.Background(), secret)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer closeStore()

		if _, ok := store.(*sessions.CookieStore); !ok {
			t.Errorf("expected cookie store, got %T", store)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		config := testConfig(t)
		config.Session.Store = shared.SessionStoreSQLite
		runner := NewRunner(RunnerOpts{Config: config})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store, closeStore, err := runner.sessionStore(ctx, secret)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		defer closeStore()

		s, ok := store.(*repositories.SessionStore)
		if !ok {
			t.Fatalf("expected sqlite store, got %T", store)
		}
		if s.Options.MaxAge != config.Session.MaxAge {
			t.Errorf("expected max age %d, got %d", config.Session.MaxAge, s.Options.MaxAge)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		config := testConfig(t)
		config.Session.Store = "redis"
		runner := NewRunner(RunnerOpts{Config: config})

		if _, _, err := runner.sessionStore(context.Background(), secret); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("secret key", func(t *testing.T) {
		config := testConfig(t)
		config.Server.SecretKey = "configured"
		runner := NewRunner(RunnerOpts{Config: config})
		if got := string(runner.secretKey()); got != "configured" {
			t.Errorf("expected configured key, got %q", got)
		}

		config.Server.SecretKey = ""
		if got := runner.secretKey(); len(got) != 32 {
			t.Errorf("expected 32 byte random key, got %d bytes", len(got))
		}
	})
}
