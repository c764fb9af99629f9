package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ArgEnvPrefix prefixes the environment variables that carry tool arguments.
const ArgEnvPrefix = "ARBOR_ARG_"

// ProcessConfig describes a local command a process tool may run.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Dir         string            `yaml:"dir" json:"dir"`
	Description string            `yaml:"description" json:"description"`
}

// ProcessFile is the layout of a process tools file.
type ProcessFile struct {
	Tools []ProcessConfig `yaml:"tools" json:"tools"`
}

// LoadProcessTools reads a YAML or JSON process tools file.
// A missing file yields an empty set.
func LoadProcessTools(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read process tools: %w", err)
	}

	var f ProcessFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse process tools %s: %w", path, err)
	}

	out := make(map[string]ProcessConfig, len(f.Tools))
	for _, t := range f.Tools {
		if t.Name == "" {
			continue
		}
		out[t.Name] = t
	}
	return out, nil
}

// processFactory resolves a process tool. The command comes from the tool's
// config (command, args, env, dir) or from an allow-listed process named by impl.
func processFactory(allowed map[string]ProcessConfig) registry.Factory {
	return func(t config.Tool) (registry.ToolFunction, error) {
		if cmd := cast.ToString(t.Config["command"]); cmd != "" {
			return NewProcessTool(ProcessConfig{
				Name:        t.ID,
				Command:     cmd,
				Args:        cast.ToStringSlice(t.Config["args"]),
				Environment: cast.ToStringMapString(t.Config["env"]),
				Dir:         cast.ToString(t.Config["dir"]),
			}), nil
		}
		proc, ok := allowed[registry.ImplName(t.Impl)]
		if !ok {
			return nil, fmt.Errorf("process '%s' is not registered and no command is configured", t.Impl)
		}
		return NewProcessTool(proc), nil
	}
}

// NewProcessTool runs proc for every call. Arguments are passed as
// ARBOR_ARG_<KEY> environment variables, never as command flags. Stdout that
// looks like JSON is decoded; a failed command yields a process_error envelope.
func NewProcessTool(proc ProcessConfig) registry.ToolFunction {
	return func(ctx context.Context, args map[string]any) (any, error) {
		cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
		cmd.Dir = proc.Dir

		env := cmd.Environ()
		for k, v := range proc.Environment {
			env = append(env, k+"="+v)
		}
		for k, v := range args {
			if k == "command" || k == "args" || k == "env" || k == "dir" {
				continue
			}
			env = append(env, fmt.Sprintf("%s%s=%s", ArgEnvPrefix, strings.ToUpper(k), envValue(v)))
		}
		cmd.Env = env

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			status := -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				status = exitErr.ExitCode()
			}
			msg := fmt.Sprintf("execution failed: %v. Stderr: %s", err, strings.TrimSpace(stderr.String()))
			return domain.ErrorOutput("process_error", msg, status), nil
		}

		trimmed := strings.TrimSpace(stdout.String())
		if looksLikeJSON(trimmed) {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsed, nil
			}
		}
		return trimmed, nil
	}
}

func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}

func looksLikeJSON(s string) bool {
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}
