package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/nxbuild/internal/codes"
	"github.com/Norgate-AV/nxbuild/internal/config"
	"github.com/Norgate-AV/nxbuild/internal/logging"
	"github.com/Norgate-AV/nxbuild/internal/toolchain"
	"github.com/Norgate-AV/nxbuild/internal/utils"
)

func newCheckEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "checkenv",
		Short:        "Check the devkitPro installation",
		Long:         `Report every tool and library a build needs, and whether it was found.`,
		Args:         cobra.NoArgs,
		RunE:         runCheckEnv,
		SilenceUsage: true,
	}
}

func runCheckEnv(cmd *cobra.Command, args []string) error {
	devkitPro, verbose := config.NewLoader().LoadGlobal(cmd)
	log := logging.New(cmd.ErrOrStderr(), verbose)

	tc, err := toolchain.Discover(devkitPro)
	if err != nil {
		log.Failure("Missing", "DEVKITPRO")
		log.Hint("Set DEVKITPRO to the path of your devkitPro installation")
		return codes.Fail(codes.StageToolchain, err)
	}

	log.Status("Root", "%s", tc.Root)

	missing := 0
	for _, req := range tc.Requirements() {
		if _, err := os.Stat(req.Path); err != nil {
			missing++
			log.Failure("Missing", "%s", req.Name)
			continue
		}

		log.Status("OK", "Found %s", req.Name)
	}

	if missing > 0 {
		log.Hint("(Re-)install devkitPro and the switch-dev package group")
		return codes.Fail(codes.StageToolchain, fmt.Errorf("environment check failed, %d %s missing", missing, utils.Plural(missing, "requirement")))
	}

	log.Status("Success", "Environment check OK")

	return nil
}
