package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	DefaultBinary      = "brew"
	DefaultParallelism = 4
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource, cue.Filename("config.cue"))
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"`
	Brew    Brew    `json:"brew,omitempty" yaml:"brew,omitempty"`
	Service Service `json:"service" yaml:"service"`
}

// Brew configures how the package manager binary is invoked.
type Brew struct {
	Binary      string            `json:"binary,omitempty" yaml:"binary,omitempty"` // path or name looked up in PATH
	Dir         string            `json:"dir,omitempty" yaml:"dir,omitempty"`
	Timeout     string            `json:"timeout,omitempty" yaml:"timeout,omitempty"` // ISO8601 duration, e.g. PT10M
	Parallelism int               `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// TimeoutDuration returns the parsed Timeout, zero means no timeout.
func (b Brew) TimeoutDuration() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	d, err := ParseISODuration(b.Timeout)
	if err != nil {
		return 0, fmt.Errorf("brew.timeout %q: %w", b.Timeout, err)
	}
	return d, nil
}

// Environ returns Env in the KEY=value form, nil if empty.
func (b Brew) Environ() []string {
	if len(b.Env) == 0 {
		return nil
	}
	ret := make([]string, 0, len(b.Env))
	for k, v := range b.Env {
		ret = append(ret, k+"="+v)
	}
	return ret
}

type Service struct {
	Mode     string    `json:"mode" yaml:"mode"` // "manual" | "timer"
	Verbose  bool      `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log      string    `json:"log,omitempty" yaml:"log,omitempty"` // "stderr"|"stdout"|"discard"|path
	Dir      string    `json:"dir,omitempty" yaml:"dir,omitempty"` // snapshot directory
	Schedule *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Schedule holds exactly one of Cron or Duration.
type Schedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	if _, err := out.Brew.TimeoutDuration(); err != nil {
		return Config{}, err
	}
	if s := out.Service.Schedule; s != nil {
		if err := s.Validate(); err != nil {
			return Config{}, err
		}
	}
	return out, nil
}

// DefaultConfig returns the configuration written on the first run.
func DefaultConfig(ctx context.Context) Config {
	binary := DefaultBinary
	if path, err := exec.LookPath(DefaultBinary); err == nil {
		binary = path
	} else {
		slog.DebugContext(ctx, "package manager not found in PATH", "binary", DefaultBinary, "os", runtime.GOOS)
	}
	return Config{
		Version: 0,
		Brew: Brew{
			Binary:      binary,
			Timeout:     "PT30M",
			Parallelism: DefaultParallelism,
			Env: map[string]string{
				"HOMEBREW_NO_AUTO_UPDATE": "1",
			},
		},
		Service: Service{
			Mode: ServiceModeManual,
			Log:  LogStderr,
		},
	}
}
