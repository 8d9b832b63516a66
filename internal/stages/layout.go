// Package stages defines the concrete build stages of a benchmark
// reproduction: the OpenTitan checkout, its RISC-V toolchain, the Verilator
// test ROM, OTP image and Earlgrey simulator, plus the optional cargo builds
// of the suite and host CLI. Stage lists can also be loaded from a YAML
// manifest.
package stages

import (
	"path/filepath"
)

// Paths of the simulator artifacts, relative to the OpenTitan checkout.
const (
	SimulatorBinaryRel = "build-bin/hw/top_earlgrey/Vchip_earlgrey_verilator"
	ROMImageRel        = "build-bin/sw/device/lib/testing/test_rom/test_rom_sim_verilator.scr.39.vmem"
	OTPImageRel        = "build-bin/sw/device/otp_img/otp_img_sim_verilator.vmem"
)

// Environment variables naming the simulator artifacts for the suite runner.
const (
	EnvSimulator     = "VERILATOR_SIM"
	EnvROM           = "VERILATOR_ROM"
	EnvOTP           = "VERILATOR_OTP"
	EnvToolchainPath = "TOOLCHAIN_PATH"
)

// Layout is the set of directories a reproduction works in. All fields are
// absolute once resolved.
type Layout struct {
	RepoRoot      string
	OpenTitanDir  string
	ToolchainDir  string
	SuiteDir      string
	CLIDir        string
	BenchmarksDir string
}

// DefaultLayout returns the layout rooted at repoRoot, with the OpenTitan
// checkout and toolchain under target/.
func DefaultLayout(repoRoot string) Layout {
	return Layout{
		RepoRoot:      repoRoot,
		OpenTitanDir:  filepath.Join(repoRoot, "target", "opentitan"),
		ToolchainDir:  filepath.Join(repoRoot, "target", "riscv_toolchain"),
		SuiteDir:      filepath.Join(repoRoot, "suite"),
		CLIDir:        filepath.Join(repoRoot, "cli"),
		BenchmarksDir: filepath.Join(repoRoot, "benchmarks"),
	}
}

// Resolve makes every relative directory absolute against RepoRoot. Empty
// fields take their DefaultLayout value.
func (l Layout) Resolve() Layout {
	def := DefaultLayout(l.RepoRoot)
	resolve := func(p, fallback string) string {
		if p == "" {
			return fallback
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(l.RepoRoot, p)
	}

	return Layout{
		RepoRoot:      l.RepoRoot,
		OpenTitanDir:  resolve(l.OpenTitanDir, def.OpenTitanDir),
		ToolchainDir:  resolve(l.ToolchainDir, def.ToolchainDir),
		SuiteDir:      resolve(l.SuiteDir, def.SuiteDir),
		CLIDir:        resolve(l.CLIDir, def.CLIDir),
		BenchmarksDir: resolve(l.BenchmarksDir, def.BenchmarksDir),
	}
}

// SimulatorBinary is the Verilator model of the Earlgrey chip.
func (l Layout) SimulatorBinary() string {
	return filepath.Join(l.OpenTitanDir, SimulatorBinaryRel)
}

// ROMImage is the scrambled test ROM loaded by the simulator.
func (l Layout) ROMImage() string {
	return filepath.Join(l.OpenTitanDir, ROMImageRel)
}

// OTPImage is the one-time-programmable memory image.
func (l Layout) OTPImage() string {
	return filepath.Join(l.OpenTitanDir, OTPImageRel)
}

// SimulatorArtifacts lists everything the simulator needs, in the order
// they are reported when missing.
func (l Layout) SimulatorArtifacts() []string {
	return []string{l.SimulatorBinary(), l.OTPImage(), l.ROMImage()}
}

// SimulatorEnv is the environment the suite runner reads its artifact paths
// from.
func (l Layout) SimulatorEnv() map[string]string {
	return map[string]string{
		EnvSimulator: l.SimulatorBinary(),
		EnvROM:       l.ROMImage(),
		EnvOTP:       l.OTPImage(),
	}
}

// Vars returns the placeholders available to stage manifests.
func (l Layout) Vars() map[string]string {
	return map[string]string{
		"repo_root":      l.RepoRoot,
		"opentitan_dir":  l.OpenTitanDir,
		"toolchain_dir":  l.ToolchainDir,
		"suite_dir":      l.SuiteDir,
		"cli_dir":        l.CLIDir,
		"benchmarks_dir": l.BenchmarksDir,
	}
}
