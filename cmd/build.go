package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/nxbuild/internal/build"
	"github.com/Norgate-AV/nxbuild/internal/codes"
	"github.com/Norgate-AV/nxbuild/internal/compiler"
	"github.com/Norgate-AV/nxbuild/internal/config"
	"github.com/Norgate-AV/nxbuild/internal/executor"
	"github.com/Norgate-AV/nxbuild/internal/logging"
	"github.com/Norgate-AV/nxbuild/internal/toolchain"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the module",
		Long: `Build the module in the nearest nxbuild.toml, recompiling only sources whose
object, dependencies or command changed.`,
		Args:         cobra.NoArgs,
		RunE:         runBuild,
		SilenceUsage: true,
	}

	cmd.Flags().StringP("profile", "p", "", "Build profile (defaults to module.default-profile, then none)")
	cmd.Flags().BoolP("configure", "g", false, "Only regenerate compile_commands.json")

	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForBuild(cmd, "")
	if err != nil {
		return codes.Fail(codes.StageConfig, err)
	}

	log := logging.New(cmd.ErrOrStderr(), cfg.Verbose)
	log.Debug().Str("path", cfg.Path).Str("profile", cfg.Profile).Msg("loaded project")

	tc, err := toolchain.Discover(cfg.DevkitPro)
	if err != nil {
		return codes.Fail(codes.StageToolchain, err)
	}

	if err := tc.Check(); err != nil {
		return codes.Fail(codes.StageToolchain, err)
	}

	configureOnly, _ := cmd.Flags().GetBool("configure")

	exec := executor.New(0)
	defer exec.Close()

	orch := &build.Orchestrator{
		Config:    cfg,
		Toolchain: tc,
		Runner:    compiler.NewExecRunner(),
		Logger:    log,
		Executor:  exec,
	}

	res, err := orch.Run(cmd.Context(), build.Options{
		Profile:       cfg.Profile,
		ConfigureOnly: configureOnly,
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("artifact", res.Artifact).
		Int("compiled", res.Compiled).
		Bool("crate", res.CrateChanged).
		Bool("linked", res.Linked).
		Bool("checked", res.Checked).
		Bool("converted", res.Converted).
		Msg("build finished")

	return nil
}
