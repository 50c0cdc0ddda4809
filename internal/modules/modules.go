// Package modules provides the static registry of lifecycle modules hooked
// into a build run.
//
// A module is any value implementing Module; it opts into lifecycle points
// by additionally implementing the capability interfaces below. The run
// iterates the registry at each lifecycle point; there is no loading of
// modules by name at runtime.
package modules

import (
	"github.com/vbwagner/client-code/internal/types"
)

// Module is the minimal surface every registered module implements.
type Module interface {
	Name() string
}

// NeedRunner lets a module demand a run independently of source changes.
type NeedRunner interface {
	Module
	NeedsRun() (bool, error)
}

// CheckoutHook runs after the source tree is checked out.
type CheckoutHook interface {
	Module
	AfterCheckout(srcDir string) error
}

// ConfigureHook runs after the configure step succeeds.
type ConfigureHook interface {
	Module
	AfterConfigure(buildDir string) error
}

// BuildHook runs after the build step succeeds.
type BuildHook interface {
	Module
	AfterBuild(buildDir string) error
}

// CheckHook contributes an extra check step result after the base test
// suite passes. A non-zero status fails the run at module-test stage.
type CheckHook interface {
	Module
	Check(buildDir string) types.StepResult
}

// InstallHook runs after the install step succeeds.
type InstallHook interface {
	Module
	AfterInstall(installDir string) error
}

// InstallCheckHook runs once per locale after that locale's install checks
// pass.
type InstallCheckHook interface {
	Module
	InstallCheck(installDir, locale string) types.StepResult
}

// LocaleEndHook runs at the end of each locale iteration, pass or fail.
type LocaleEndHook interface {
	Module
	LocaleEnd(locale string) error
}

// CleanupHook runs during the run's cleanup contract, before the lock is
// released.
type CleanupHook interface {
	Module
	Cleanup() error
}

// Registry is a fixed, ordered collection of modules. Order is dispatch
// order at every lifecycle point.
type Registry struct {
	mods []Module
}

// NewRegistry returns a registry over the given modules.
func NewRegistry(mods ...Module) *Registry {
	return &Registry{mods: mods}
}

// Modules returns the registered modules in dispatch order.
func (r *Registry) Modules() []Module {
	return r.mods
}

// AnyNeedsRun reports whether any registered NeedRunner demands a run.
// The first error encountered is returned with the demanding module's
// answer so far.
func (r *Registry) AnyNeedsRun() (bool, error) {
	for _, m := range r.mods {
		nr, ok := m.(NeedRunner)
		if !ok {
			continue
		}
		need, err := nr.NeedsRun()
		if err != nil {
			return false, err
		}
		if need {
			return true, nil
		}
	}
	return false, nil
}

// Cleanup invokes every CleanupHook in dispatch order. All hooks run even
// when earlier ones fail; the first error is returned.
func (r *Registry) Cleanup() error {
	var first error
	for _, m := range r.mods {
		ch, ok := m.(CleanupHook)
		if !ok {
			continue
		}
		if err := ch.Cleanup(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
