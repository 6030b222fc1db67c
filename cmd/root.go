package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Norgate-AV/nxbuild/internal/codes"
	"github.com/Norgate-AV/nxbuild/internal/config"
	"github.com/Norgate-AV/nxbuild/internal/logging"
	"github.com/Norgate-AV/nxbuild/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nxbuild",
		Short:         "Incremental builds for Switch modules",
		Long:          `Compile, link, check and convert a devkitPro module, rebuilding only what changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	root.PersistentFlags().BoolP("verbose", "v", config.DefaultVerbose, "Verbose output")
	root.AddCommand(newBuildCmd(), newCleanCmd(), newCheckEnvCmd())

	return root
}

// Execute runs the command line and exits with the code of the failed stage
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, newRootCmd(), os.Args[1:])
	stop()

	os.Exit(code)
}

func run(ctx context.Context, root *cobra.Command, args []string) int {
	viper.Reset()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return codes.Success
	}

	code := codes.ExitCode(err)
	log := logging.New(root.ErrOrStderr(), false)

	var stageErr *codes.StageError
	if errors.As(err, &stageErr) {
		log.Failure("Failed", "%s: %s", codes.GetErrorMessage(code), stageErr.Err)
	} else {
		log.Failure("Error", "%v", err)
	}

	return code
}
