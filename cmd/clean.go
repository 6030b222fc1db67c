package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/nxbuild/internal/build"
	"github.com/Norgate-AV/nxbuild/internal/codes"
	"github.com/Norgate-AV/nxbuild/internal/config"
	"github.com/Norgate-AV/nxbuild/internal/logging"
	"github.com/Norgate-AV/nxbuild/internal/utils"
)

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "clean",
		Short:        "Remove build outputs",
		Long:         `Remove the outputs of one profile, or of every profile with --all.`,
		Args:         cobra.NoArgs,
		RunE:         runClean,
		SilenceUsage: true,
	}

	cmd.Flags().StringP("profile", "p", "", "Profile to clean")
	cmd.Flags().Bool("all", false, "Remove the outputs of every profile")

	return cmd
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForBuild(cmd, "")
	if err != nil {
		return codes.Fail(codes.StageConfig, err)
	}

	log := logging.New(cmd.ErrOrStderr(), cfg.Verbose)

	dir := build.TargetDir(cfg.Root)
	if all, _ := cmd.Flags().GetBool("all"); !all {
		profile, err := cfg.SelectProfile(cfg.Profile)
		if err != nil {
			return codes.Fail(codes.StageConfig, err)
		}

		dir = build.NewLayout(cfg.Root, profile, cfg.Module.Name).Dir
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Status("Clean", "nothing to remove")
		return nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}

	log.Status("Removed", "%s", utils.RelPath(cfg.Root, dir))

	return nil
}
