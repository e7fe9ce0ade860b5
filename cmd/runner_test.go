package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tunesync/internal/shared"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{Logger: logger, Output: output})

			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
		commands := runner.register()

		if len(commands) != 5 {
			t.Fatalf("expected 5 commands, got %d", len(commands))
		}

		names := make(map[string]bool)
		for _, command := range commands {
			names[command.Name] = true
		}
		for _, want := range []string{"setup", "serve", "auth", "profile", "sync"} {
			if !names[want] {
				t.Errorf("expected a %s command", want)
			}
		}
	})

	t.Run("loadConfig", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

		t.Run("missing file falls back to defaults", func(t *testing.T) {
			config := runner.loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
			if config.Server.Port != shared.DefaultConfig().Server.Port {
				t.Errorf("expected default server port, got %d", config.Server.Port)
			}
		})

		t.Run("existing file is honored", func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(configPath, []byte("[server]\nhost = \"0.0.0.0\"\nport = 4444\n"), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			config := runner.loadConfig(configPath)
			if config.Server.Port != 4444 {
				t.Errorf("expected port 4444, got %d", config.Server.Port)
			}
		})
	})

	t.Run("openStack", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := "[database]\npath = \"" + filepath.Join(t.TempDir(), "stack.db") + "\"\n"
		if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
		stack, err := runner.openStack(configPath)
		if err != nil {
			t.Fatalf("openStack failed: %v", err)
		}
		defer stack.Close()

		if stack.store == nil || stack.auth == nil || stack.executor == nil || stack.scheduler == nil {
			t.Error("expected a fully wired stack")
		}
		if len(stack.providers) != 2 {
			t.Errorf("expected 2 providers, got %d", len(stack.providers))
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			data := map[string]string{"key": "value"}
			if err := runner.writeJSON(data, true); err != nil {
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

			data := map[string]string{"key": "value"}
			if err := runner.writeJSON(data, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if !strings.Contains(output.String(), `"key":"value"`) {
				t.Errorf("expected compact JSON, got %s", output.String())
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s\n", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world\n" {
			t.Errorf("unexpected output: %q", output.String())
		}
	})
}
