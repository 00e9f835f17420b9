package cli

import (
	"fmt"
	"path/filepath"
	"syscall"

	"github.com/mathmate/tmjlink/cli/fileio"
	"github.com/mathmate/tmjlink/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewStatusCommand asks a running server to log its status.
func NewStatusCommand() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Make the running server log its connections and sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := filepath.Join(cacheDir, config.PidFile)
			pid, err := fileio.ReadPid(pidPath)
			if err != nil {
				return err
			}
			if err := syscall.Kill(pid, syscall.SIGUSR1); err != nil {
				return errors.Wrapf(err, "signaling server %d", pid)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status of server %d sent to its log\n", pid)
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", config.Default().CacheDir, "folder holding the pid file")
	return cmd
}
