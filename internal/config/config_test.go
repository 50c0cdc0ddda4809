package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vbwagner/client-code/internal/config"
)

// ---------------------------------------------------------------------------
// Load tests
// ---------------------------------------------------------------------------

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "bfrun.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing config file, got %v", err)
	}
	if cfg.ConfigureCommand != config.DefaultConfigureCommand {
		t.Errorf("ConfigureCommand = %q, want %q", cfg.ConfigureCommand, config.DefaultConfigureCommand)
	}
	if cfg.MakeCommand != config.DefaultMakeCommand {
		t.Errorf("MakeCommand = %q, want %q", cfg.MakeCommand, config.DefaultMakeCommand)
	}
	if cfg.ForceEvery != config.DefaultForceEvery {
		t.Errorf("ForceEvery = %d, want %d", cfg.ForceEvery, config.DefaultForceEvery)
	}
	if cfg.SCMTimeout != config.DefaultSCMTimeout {
		t.Errorf("SCMTimeout = %d, want %d", cfg.SCMTimeout, config.DefaultSCMTimeout)
	}
	if cfg.WaitTimeout != config.DefaultWaitTimeout {
		t.Errorf("WaitTimeout = %d, want %d", cfg.WaitTimeout, config.DefaultWaitTimeout)
	}
	if !reflect.DeepEqual(cfg.Locales, []string{"C"}) {
		t.Errorf("Locales = %v, want [C]", cfg.Locales)
	}
}

func TestLoad_PartialFile(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantBranch  string
		wantMake    string
		wantEvery   int
		wantVerbose int
	}{
		{
			name:       "only branch set",
			yaml:       "branch: REL_17_STABLE\n",
			wantBranch: "REL_17_STABLE",
			wantMake:   config.DefaultMakeCommand,
			wantEvery:  config.DefaultForceEvery,
		},
		{
			name:       "make_command and force_every overridden",
			yaml:       "make_command: gmake\nforce_every: 24\n",
			wantMake:   "gmake",
			wantEvery:  24,
		},
		{
			name:      "force_every explicitly zero",
			yaml:      "force_every: 0\n",
			wantMake:  config.DefaultMakeCommand,
			wantEvery: 0,
		},
		{
			name:        "verbose set",
			yaml:        "verbose: 2\n",
			wantMake:    config.DefaultMakeCommand,
			wantEvery:   config.DefaultForceEvery,
			wantVerbose: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "bfrun.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := config.Load(path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Branch != tt.wantBranch {
				t.Errorf("Branch = %q, want %q", cfg.Branch, tt.wantBranch)
			}
			if cfg.MakeCommand != tt.wantMake {
				t.Errorf("MakeCommand = %q, want %q", cfg.MakeCommand, tt.wantMake)
			}
			if cfg.ForceEvery != tt.wantEvery {
				t.Errorf("ForceEvery = %d, want %d", cfg.ForceEvery, tt.wantEvery)
			}
			if cfg.Verbose != tt.wantVerbose {
				t.Errorf("Verbose = %d, want %d", cfg.Verbose, tt.wantVerbose)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bfrun.yaml")
	if err := os.WriteFile(path, []byte("branch: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected parse error for malformed YAML, got nil")
	}
}

// ---------------------------------------------------------------------------
// Validate tests
// ---------------------------------------------------------------------------

// validConfig returns a config that passes Validate, for tests to break
// one field at a time.
func validConfig() *config.BuildConfig {
	cfg, _ := config.Load("/nonexistent/bfrun.yaml")
	cfg.Branch = "master"
	cfg.Animal = "capuchin"
	cfg.Secret = "s3cret"
	cfg.Collector = "https://collector.example.org/status"
	cfg.RepoURL = "https://git.example.org/repo.git"
	cfg.BuildRoot = "/var/lib/bfrun"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.BuildConfig)
		wantErr bool
	}{
		{
			name:   "valid baseline",
			mutate: func(c *config.BuildConfig) {},
		},
		{
			name:    "missing branch",
			mutate:  func(c *config.BuildConfig) { c.Branch = "" },
			wantErr: true,
		},
		{
			name:    "missing animal",
			mutate:  func(c *config.BuildConfig) { c.Animal = "" },
			wantErr: true,
		},
		{
			name:    "missing build_root",
			mutate:  func(c *config.BuildConfig) { c.BuildRoot = "" },
			wantErr: true,
		},
		{
			name:    "relative build_root",
			mutate:  func(c *config.BuildConfig) { c.BuildRoot = "builds" },
			wantErr: true,
		},
		{
			name:    "relative from_source",
			mutate:  func(c *config.BuildConfig) { c.FromSource = "src" },
			wantErr: true,
		},
		{
			name: "skip and only both set",
			mutate: func(c *config.BuildConfig) {
				c.SkipSteps = []string{"test"}
				c.OnlySteps = []string{"build"}
			},
			wantErr: true,
		},
		{
			name: "missing collector without no_send",
			mutate: func(c *config.BuildConfig) {
				c.Collector = ""
			},
			wantErr: true,
		},
		{
			name: "missing secret without no_send",
			mutate: func(c *config.BuildConfig) {
				c.Secret = ""
			},
			wantErr: true,
		},
		{
			name: "no_send waives collector and secret",
			mutate: func(c *config.BuildConfig) {
				c.NoSend = true
				c.Collector = ""
				c.Secret = ""
			},
		},
		{
			name: "missing repo_url without from_source",
			mutate: func(c *config.BuildConfig) {
				c.RepoURL = ""
			},
			wantErr: true,
		},
		{
			name: "from_source waives repo_url",
			mutate: func(c *config.BuildConfig) {
				c.RepoURL = ""
				c.FromSource = "/srv/src"
			},
		},
		{
			name:    "negative force_every",
			mutate:  func(c *config.BuildConfig) { c.ForceEvery = -1 },
			wantErr: true,
		},
		{
			name:    "bad include pattern",
			mutate:  func(c *config.BuildConfig) { c.Include = []string{"["} },
			wantErr: true,
		},
		{
			name:    "bad exclude pattern",
			mutate:  func(c *config.BuildConfig) { c.Exclude = []string{"(*"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// FilterChanged tests
// ---------------------------------------------------------------------------

func TestFilterChanged(t *testing.T) {
	files := []string{
		"src/backend/parser/gram.y",
		"doc/src/sgml/ref/create_table.sgml",
		"src/test/regress/sql/join.sql",
		"README",
	}

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{
			name: "no filters keeps everything",
			want: files,
		},
		{
			name:    "exclude docs",
			exclude: []string{`^doc/`},
			want: []string{
				"src/backend/parser/gram.y",
				"src/test/regress/sql/join.sql",
				"README",
			},
		},
		{
			name:    "include backend only",
			include: []string{`^src/backend/`},
			want:    []string{"src/backend/parser/gram.y"},
		},
		{
			name:    "include then exclude",
			include: []string{`^src/`},
			exclude: []string{`/regress/`},
			want:    []string{"src/backend/parser/gram.y"},
		},
		{
			name:    "exclude everything",
			exclude: []string{`.`},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Include = tt.include
			cfg.Exclude = tt.exclude
			if err := config.Validate(cfg); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := cfg.FilterChanged(files)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FilterChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExplicitSource(t *testing.T) {
	cfg := validConfig()
	if cfg.ExplicitSource() {
		t.Error("ExplicitSource() = true with empty from_source")
	}
	cfg.FromSource = "/srv/src"
	if !cfg.ExplicitSource() {
		t.Error("ExplicitSource() = false with from_source set")
	}
}
