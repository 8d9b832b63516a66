package stages

import (
	"fmt"
	"path/filepath"

	"github.com/benchsuite/reproduce/internal/command"
	"github.com/benchsuite/reproduce/internal/pipeline"
)

// DefaultOpenTitanRepo is the OpenTitan fork the suite is built against.
const DefaultOpenTitanRepo = "https://github.com/harshanavkis/opentitan.git"

// Stage names.
const (
	Clone     = "clone"
	Toolchain = "toolchain"
	MesonInit = "meson-init"
	ROM       = "rom"
	OTP       = "otp"
	Chip      = "chip"
	Suite     = "suite"
	CLI       = "cli"
)

// Ninja targets exporting the simulator images.
const (
	romTarget = "sw/device/lib/testing/test_rom/test_rom_export_sim_verilator"
	otpTarget = "sw/device/otp_img/otp_img_export_sim_verilator"
)

// OpenTitan returns the stages that produce the Verilator simulator and its
// firmware images, in dependency order. Every action runs inside nix-shell.
func OpenTitan(l Layout, nix command.NixShell, repoURL string) []pipeline.Stage {
	if repoURL == "" {
		repoURL = DefaultOpenTitanRepo
	}
	toolchainEnv := map[string]string{EnvToolchainPath: l.ToolchainDir}
	ot := l.OpenTitanDir

	return []pipeline.Stage{
		{
			Name:        Clone,
			Description: "Opentitan repository",
			Artifacts:   []string{ot},
			Action: nix.Run(
				fmt.Sprintf("git clone %s %s", command.Quote(repoURL), command.Quote(ot)),
				l.RepoRoot, nil),
		},
		{
			Name:        Toolchain,
			Description: "Riscv Toolchain",
			Artifacts:   []string{l.ToolchainDir},
			Action: nix.Run(
				fmt.Sprintf("%s --install-dir=%s",
					command.Quote(filepath.Join(ot, "util", "get-toolchain.py")),
					command.Quote(l.ToolchainDir)),
				ot, nil),
		},
		{
			// Configures build-out/ and build-bin/; only needed while any
			// simulator artifact is still missing.
			Name:        MesonInit,
			Description: "Meson build directories",
			Artifacts:   l.SimulatorArtifacts(),
			Action:      nix.Run(command.Quote(filepath.Join(ot, "meson_init.sh")), ot, toolchainEnv),
		},
		{
			Name:        ROM,
			Description: "Verilator test rom",
			Artifacts:   []string{l.ROMImage()},
			Action:      nix.Run("ninja -C build-out "+romTarget, ot, toolchainEnv),
		},
		{
			Name:        OTP,
			Description: "Verilator otp image",
			Artifacts:   []string{l.OTPImage()},
			Action:      nix.Run("ninja -C build-out "+otpTarget, ot, toolchainEnv),
		},
		{
			Name:        Chip,
			Description: "Verilator earlgrey simulator",
			Artifacts:   []string{l.SimulatorBinary()},
			Action: nix.Run(
				command.Quote(filepath.Join(ot, "ci", "scripts", "build-chip-verilator.sh"))+" earlgrey",
				ot, toolchainEnv),
		},
	}
}

// Cargo returns the release builds of the benchmark suite firmware and the
// host CLI. Both are otherwise built on demand by cargo run; pre-building
// moves compile failures into the build phase.
func Cargo(l Layout, nix command.NixShell) []pipeline.Stage {
	return []pipeline.Stage{
		{
			Name:        Suite,
			Description: "Benchmark suite build",
			Artifacts:   []string{filepath.Join(l.SuiteDir, "target")},
			Action:      nix.Run(command.Chdir(l.SuiteDir, "cargo build --release"), l.RepoRoot, nil),
		},
		{
			Name:        CLI,
			Description: "Benchmark cli build",
			Artifacts:   []string{filepath.Join(l.CLIDir, "target", "release", "cli")},
			Action:      nix.Run(command.Chdir(l.CLIDir, "cargo build --release"), l.RepoRoot, nil),
		},
	}
}

// Default returns the OpenTitan stages, followed by the cargo builds when
// withCargo is set.
func Default(l Layout, nix command.NixShell, repoURL string, withCargo bool) []pipeline.Stage {
	all := OpenTitan(l, nix, repoURL)
	if withCargo {
		all = append(all, Cargo(l, nix)...)
	}
	return all
}

// Simulator returns the command that boots the benchmark suite on the
// Verilator model. nix-shell stays alive for as long as the suite runs, so
// the command only ends when its process group is interrupted.
func Simulator(l Layout, nix command.NixShell) command.Command {
	return nix.Shell(command.Chdir(l.SuiteDir, "cargo run-verilator-opt"), l.RepoRoot, l.SimulatorEnv())
}
