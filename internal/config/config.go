// Package config loads kotlin-ls.yml and assembles the project context
// handed to each analyzer instance.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// EnvJDKHome overrides the JDK location when no config value is set.
const EnvJDKHome = "KOTLIN_LS_JDK_HOME"

// Config represents the kotlin-ls configuration.
type Config struct {
	Project Project `mapstructure:"project"`
	Sidecar Sidecar `mapstructure:"sidecar"`
	Editor  Editor  `mapstructure:"editor"`
}

// Project carries the fields that parameterize one analyzer instance.
// A change to any of them forces an analyzer restart.
type Project struct {
	Classpath     []string `mapstructure:"classpath"`
	CompilerFlags []string `mapstructure:"compiler_flags"`
	JDKHome       string   `mapstructure:"jdk_home"`
	SourceRoots   []string `mapstructure:"source_roots"`
}

// Sidecar configures how the analyzer child process is run and supervised.
type Sidecar struct {
	// Command is the full argv used to start the analyzer. When empty,
	// the java launcher from the resolved JDK runs the bundled jar.
	Command []string `mapstructure:"command"`

	Jar string `mapstructure:"jar"`

	InitTimeout       time.Duration `mapstructure:"init_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
}

// Editor configures request handling on the editor side.
type Editor struct {
	// DebounceDelay is how long a didChange must stay unsuperseded
	// before analysis is scheduled.
	DebounceDelay time.Duration `mapstructure:"debounce_delay"`

	// QueueCapacity bounds the request queue in front of the analyzer.
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// ProjectContext is the immutable-per-epoch record replayed into each new
// analyzer instance.
type ProjectContext struct {
	ProjectRoot   string
	Classpath     []string
	CompilerFlags []string
	JDKHome       string
	SourceRoots   []string
}

// Load reads kotlin-ls.yml (or .yaml) from root, applying defaults and
// environment overrides. A missing file is not an error.
func Load(root string) (*Config, error) {
	v := viper.New()

	v.SetDefault("sidecar.init_timeout", 30*time.Second)
	v.SetDefault("sidecar.heartbeat_interval", 30*time.Second)
	v.SetDefault("sidecar.heartbeat_timeout", 10*time.Second)
	v.SetDefault("editor.debounce_delay", 250*time.Millisecond)
	v.SetDefault("editor.queue_capacity", 64)

	v.SetConfigName("kotlin-ls")
	v.SetConfigType("yaml")
	v.AddConfigPath(root)

	v.SetEnvPrefix("KOTLIN_LS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Context assembles the project context for root from the loaded config.
func (c *Config) Context(root string) ProjectContext {
	return ProjectContext{
		ProjectRoot:   root,
		Classpath:     append([]string(nil), c.Project.Classpath...),
		CompilerFlags: append([]string(nil), c.Project.CompilerFlags...),
		JDKHome:       ResolveJDKHome(c.Project.JDKHome),
		SourceRoots:   append([]string(nil), c.Project.SourceRoots...),
	}
}

// Equal reports whether two project contexts would parameterize the
// analyzer identically.
func (pc ProjectContext) Equal(other ProjectContext) bool {
	return pc.ProjectRoot == other.ProjectRoot &&
		pc.JDKHome == other.JDKHome &&
		stringSlicesEqual(pc.Classpath, other.Classpath) &&
		stringSlicesEqual(pc.CompilerFlags, other.CompilerFlags) &&
		stringSlicesEqual(pc.SourceRoots, other.SourceRoots)
}

// ResolveJDKHome resolves the JDK root in order: configured value,
// KOTLIN_LS_JDK_HOME, JAVA_HOME, platform default.
func ResolveJDKHome(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv(EnvJDKHome); env != "" {
		return env
	}
	if env := os.Getenv("JAVA_HOME"); env != "" {
		return env
	}
	return platformDefaultJDK()
}

// SidecarCommand returns the argv for the analyzer child process.
func (c *Config) SidecarCommand(jdkHome string) []string {
	if len(c.Sidecar.Command) > 0 {
		return append([]string(nil), c.Sidecar.Command...)
	}
	java := "java"
	if jdkHome != "" {
		java = filepath.Join(jdkHome, "bin", "java")
	}
	jar := c.Sidecar.Jar
	if jar == "" {
		jar = "kotlin-analyzer.jar"
	}
	return []string{java, "-jar", jar}
}

func platformDefaultJDK() string {
	switch runtime.GOOS {
	case "darwin":
		return "/Library/Java/JavaVirtualMachines/default/Contents/Home"
	case "windows":
		return `C:\Program Files\Java\default`
	default:
		return "/usr/lib/jvm/default"
	}
}

func validate(cfg *Config) error {
	if cfg.Editor.QueueCapacity < 1 {
		return fmt.Errorf("editor.queue_capacity must be at least 1, got: %d", cfg.Editor.QueueCapacity)
	}
	if cfg.Editor.DebounceDelay < 0 {
		return fmt.Errorf("editor.debounce_delay must not be negative, got: %s", cfg.Editor.DebounceDelay)
	}
	return nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
