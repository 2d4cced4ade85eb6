// Command fitspo is the operator CLI for scanning posts, inspecting cached
// results and running the FitSpo services locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var composeFile string

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fitspo: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fitspo",
		Short: "FitSpo outfit scan CLI",
		Long: `fitspo runs outfit scans against the configured scan service, prints cached
results, applies the post schema and starts the FitSpo services for local development.
Configuration is read from FITSPO_* environment variables and an optional .env file.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use for stack commands")
	cmd.AddCommand(
		newScanCmd(),
		newShowCmd(),
		newMigrateCmd(),
		newWatchCmd(),
		newStackCmd(),
		newRunCmd(),
	)
	return cmd
}

func newStackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Manage the docker compose stack (postgres, redis, minio, nats)",
	}
	var removeVolumes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Stop the stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", composeFile, "down"}
			if removeVolumes {
				composeArgs = append(composeArgs, "-v")
			}
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	down.Flags().BoolVarP(&removeVolumes, "volumes", "v", false, "Remove stack volumes")
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up [service...]",
			Short: "Start the stack in the background",
			RunE: func(cmd *cobra.Command, args []string) error {
				composeArgs := append([]string{"compose", "-f", composeFile, "up", "-d"}, args...)
				return runCommand(cmd.Context(), "docker", composeArgs...)
			},
		},
		down,
	)
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run individual FitSpo binaries directly",
	}
	cmd.AddCommand(
		newServiceRunner("server", "./cmd/server"),
		newServiceRunner("api", "./cmd/api"),
		newServiceRunner("worker", "./cmd/worker"),
	)
	return cmd
}

func newServiceRunner(name, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("go run %s", path),
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := append([]string{"run", path}, args...)
			return runCommand(cmd.Context(), "go", goArgs...)
		},
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	execCmd := exec.CommandContext(ctx, name, args...)
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr
	execCmd.Stdin = os.Stdin
	return execCmd.Run()
}
