// Package config provides BuildConfig loading and validation for the bfrun
// build driver. Config is read from bfrun.yaml. A missing file returns sane
// defaults without error. CLI flags (bound via cobra) override config file
// values at the highest precedence by mutating the returned struct after
// loading.
//
// Validation failures are configuration-fatal: they must be surfaced before
// any lock is acquired or any destructive action taken.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Default values for BuildConfig fields.
const (
	DefaultConfigureCommand = "./configure"
	DefaultMakeCommand      = "make"
	DefaultForceEvery       = 168 // hours; one heartbeat build per week
	DefaultSCMTimeout       = 30  // minutes
	DefaultWaitTimeout      = 240 // minutes
)

// BuildConfig holds all configuration for one bfrun invocation. It is read
// from bfrun.yaml; CLI flags override it at the highest precedence by being
// applied after Load returns.
type BuildConfig struct {
	// Identity and target.
	Branch    string `yaml:"branch"`
	Animal    string `yaml:"animal"`
	Secret    string `yaml:"secret"`
	Collector string `yaml:"collector_url"`

	// Source control.
	RepoURL    string `yaml:"repo_url"`
	FromSource string `yaml:"from_source"`

	// Layout. BuildRoot must be absolute; everything the run touches
	// lives underneath it.
	BuildRoot string `yaml:"build_root"`

	// Trigger control.
	Force      bool     `yaml:"force"`
	ForceEvery int      `yaml:"force_every"`
	Include    []string `yaml:"include"`
	Exclude    []string `yaml:"exclude"`

	// Step filtering. Configuring both non-empty sets is an error.
	SkipSteps []string `yaml:"skip_steps"`
	OnlySteps []string `yaml:"only_steps"`

	// Timeouts, in minutes.
	SCMTimeout  int `yaml:"scm_timeout"`
	WaitTimeout int `yaml:"wait_timeout"`

	// Pipeline options.
	ConfigureCommand string   `yaml:"configure_command"`
	MakeCommand      string   `yaml:"make_command"`
	ConfigureOpts    string   `yaml:"configure_opts"`
	MakeOpts         string   `yaml:"make_opts"`
	Locales          []string `yaml:"locales"`
	BuildDocs        bool     `yaml:"build_docs"`
	FindTypedefs     bool     `yaml:"find_typedefs"`

	// Artifact retention.
	KeepOnError bool `yaml:"keep_on_error"`
	KeepAll     bool `yaml:"keep_all"`

	// Output control.
	NoSend  bool `yaml:"no_send"`
	Verbose int  `yaml:"verbose"`

	// Compiled trigger filters, populated by Validate.
	includeRE []*regexp.Regexp
	excludeRE []*regexp.Regexp
}

// defaults returns a BuildConfig populated with sane defaults.
func defaults() BuildConfig {
	return BuildConfig{
		ConfigureCommand: DefaultConfigureCommand,
		MakeCommand:      DefaultMakeCommand,
		ForceEvery:       DefaultForceEvery,
		SCMTimeout:       DefaultSCMTimeout,
		WaitTimeout:      DefaultWaitTimeout,
		Locales:          []string{"C"},
	}
}

// partialConfig is used during YAML parsing to distinguish between a field
// being absent (nil pointer) and a field being explicitly set to its zero
// value.
type partialConfig struct {
	Branch     *string `yaml:"branch"`
	Animal     *string `yaml:"animal"`
	Secret     *string `yaml:"secret"`
	Collector  *string `yaml:"collector_url"`
	RepoURL    *string `yaml:"repo_url"`
	FromSource *string `yaml:"from_source"`
	BuildRoot  *string `yaml:"build_root"`

	Force      *bool     `yaml:"force"`
	ForceEvery *int      `yaml:"force_every"`
	Include    *[]string `yaml:"include"`
	Exclude    *[]string `yaml:"exclude"`

	SkipSteps *[]string `yaml:"skip_steps"`
	OnlySteps *[]string `yaml:"only_steps"`

	SCMTimeout  *int `yaml:"scm_timeout"`
	WaitTimeout *int `yaml:"wait_timeout"`

	ConfigureCommand *string   `yaml:"configure_command"`
	MakeCommand      *string   `yaml:"make_command"`
	ConfigureOpts    *string   `yaml:"configure_opts"`
	MakeOpts         *string   `yaml:"make_opts"`
	Locales          *[]string `yaml:"locales"`
	BuildDocs        *bool     `yaml:"build_docs"`
	FindTypedefs     *bool     `yaml:"find_typedefs"`

	KeepOnError *bool `yaml:"keep_on_error"`
	KeepAll     *bool `yaml:"keep_all"`

	NoSend  *bool `yaml:"no_send"`
	Verbose *int  `yaml:"verbose"`
}

// Load reads bfrun.yaml at path and returns a BuildConfig. If the file does
// not exist, defaults are returned without error. Fields absent from the
// file are filled with their default values; fields present override the
// corresponding default.
//
// Load performs no validation: CLI flags are applied to the returned struct
// first, then Validate runs over the final values.
func Load(path string) (*BuildConfig, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, err
	}

	var partial partialConfig
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyPartial(&cfg, &partial)
	return &cfg, nil
}

// applyPartial copies every field present in the file over the defaults.
func applyPartial(cfg *BuildConfig, p *partialConfig) {
	if p.Branch != nil {
		cfg.Branch = *p.Branch
	}
	if p.Animal != nil {
		cfg.Animal = *p.Animal
	}
	if p.Secret != nil {
		cfg.Secret = *p.Secret
	}
	if p.Collector != nil {
		cfg.Collector = *p.Collector
	}
	if p.RepoURL != nil {
		cfg.RepoURL = *p.RepoURL
	}
	if p.FromSource != nil {
		cfg.FromSource = *p.FromSource
	}
	if p.BuildRoot != nil {
		cfg.BuildRoot = *p.BuildRoot
	}
	if p.Force != nil {
		cfg.Force = *p.Force
	}
	if p.ForceEvery != nil {
		cfg.ForceEvery = *p.ForceEvery
	}
	if p.Include != nil {
		cfg.Include = *p.Include
	}
	if p.Exclude != nil {
		cfg.Exclude = *p.Exclude
	}
	if p.SkipSteps != nil {
		cfg.SkipSteps = *p.SkipSteps
	}
	if p.OnlySteps != nil {
		cfg.OnlySteps = *p.OnlySteps
	}
	if p.SCMTimeout != nil {
		cfg.SCMTimeout = *p.SCMTimeout
	}
	if p.WaitTimeout != nil {
		cfg.WaitTimeout = *p.WaitTimeout
	}
	if p.ConfigureCommand != nil {
		cfg.ConfigureCommand = *p.ConfigureCommand
	}
	if p.MakeCommand != nil {
		cfg.MakeCommand = *p.MakeCommand
	}
	if p.ConfigureOpts != nil {
		cfg.ConfigureOpts = *p.ConfigureOpts
	}
	if p.MakeOpts != nil {
		cfg.MakeOpts = *p.MakeOpts
	}
	if p.Locales != nil {
		cfg.Locales = *p.Locales
	}
	if p.BuildDocs != nil {
		cfg.BuildDocs = *p.BuildDocs
	}
	if p.FindTypedefs != nil {
		cfg.FindTypedefs = *p.FindTypedefs
	}
	if p.KeepOnError != nil {
		cfg.KeepOnError = *p.KeepOnError
	}
	if p.KeepAll != nil {
		cfg.KeepAll = *p.KeepAll
	}
	if p.NoSend != nil {
		cfg.NoSend = *p.NoSend
	}
	if p.Verbose != nil {
		cfg.Verbose = *p.Verbose
	}
}

// Validate checks the final configuration after flag overrides have been
// applied. Every failure here is configuration-fatal: the caller must exit
// before acquiring any lock or touching any build state.
func Validate(cfg *BuildConfig) error {
	if cfg.Branch == "" {
		return fmt.Errorf("branch is required")
	}
	if cfg.Animal == "" {
		return fmt.Errorf("animal (build agent identity) is required")
	}
	if cfg.BuildRoot == "" {
		return fmt.Errorf("build_root is required")
	}
	if !filepath.IsAbs(cfg.BuildRoot) {
		return fmt.Errorf("build_root must be an absolute path, got %q", cfg.BuildRoot)
	}
	if cfg.FromSource != "" && !filepath.IsAbs(cfg.FromSource) {
		return fmt.Errorf("from_source must be an absolute path, got %q", cfg.FromSource)
	}
	if len(cfg.SkipSteps) > 0 && len(cfg.OnlySteps) > 0 {
		return fmt.Errorf("skip_steps and only_steps are mutually exclusive")
	}
	if !cfg.NoSend {
		if cfg.Collector == "" {
			return fmt.Errorf("collector_url is required unless no_send is set")
		}
		if cfg.Secret == "" {
			return fmt.Errorf("secret is required unless no_send is set")
		}
	}
	if cfg.FromSource == "" && cfg.RepoURL == "" {
		return fmt.Errorf("repo_url is required unless from_source is set")
	}
	if cfg.ForceEvery < 0 {
		return fmt.Errorf("force_every must not be negative")
	}

	cfg.includeRE = cfg.includeRE[:0]
	for _, pat := range cfg.Include {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pat, err)
		}
		cfg.includeRE = append(cfg.includeRE, re)
	}
	cfg.excludeRE = cfg.excludeRE[:0]
	for _, pat := range cfg.Exclude {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pat, err)
		}
		cfg.excludeRE = append(cfg.excludeRE, re)
	}
	return nil
}

// FilterChanged applies the include/exclude trigger filters to a changed
// file list, returning the files that still count toward the "rebuild
// needed" decision. With include patterns configured, a file must match at
// least one to count; a file matching any exclude pattern never counts.
//
// Filtering applies to the trigger decision only; callers must not filter
// the since-success set used for reporting.
func (c *BuildConfig) FilterChanged(files []string) []string {
	var kept []string
	for _, f := range files {
		if len(c.includeRE) > 0 {
			matched := false
			for _, re := range c.includeRE {
				if re.MatchString(f) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		excluded := false
		for _, re := range c.excludeRE {
			if re.MatchString(f) {
				excluded = true
				break
			}
		}
		if !excluded {
			kept = append(kept, f)
		}
	}
	return kept
}

// ExplicitSource reports whether this run builds from a fixed source
// directory instead of a fresh checkout. In this mode change detection is
// bypassed and lock contention is fatal rather than a clean skip.
func (c *BuildConfig) ExplicitSource() bool {
	return c.FromSource != ""
}
