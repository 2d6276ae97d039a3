package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teslashibe/framegrab/pkg/control"
	"github.com/teslashibe/framegrab/pkg/seek"
)

// newCtlCmds returns the one-shot commands that drive a running producer
// through the control API.
func newCtlCmds() []*cobra.Command {
	var addr string

	status := &cobra.Command{
		Use:   "status",
		Short: "Print producer status as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := control.NewClient(addr).Status(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}

	seekCmd := &cobra.Command{
		Use:   "seek <frames>",
		Short: "Move the read head by a relative number of frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid frame count %q", args[0])
			}
			return printSnapshot(cmd, func() (seek.Snapshot, error) {
				return control.NewClient(addr).Seek(cmd.Context(), n)
			})
		},
	}

	pause := &cobra.Command{
		Use:   "pause",
		Short: "Pause playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSnapshot(cmd, func() (seek.Snapshot, error) {
				return control.NewClient(addr).SetPaused(cmd.Context(), true)
			})
		},
	}

	resume := &cobra.Command{
		Use:   "resume",
		Short: "Resume playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSnapshot(cmd, func() (seek.Snapshot, error) {
				return control.NewClient(addr).SetPaused(cmd.Context(), false)
			})
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle",
		Short: "Toggle pause",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSnapshot(cmd, func() (seek.Snapshot, error) {
				return control.NewClient(addr).Toggle(cmd.Context())
			})
		},
	}

	cmds := []*cobra.Command{status, seekCmd, pause, resume, toggle}
	for _, c := range cmds {
		c.Flags().StringVarP(&addr, "addr", "a", "localhost:8080", "Control server host:port")
	}
	return cmds
}

func printSnapshot(cmd *cobra.Command, fn func() (seek.Snapshot, error)) error {
	snap, err := fn()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "paused=%t pending=%d\n", snap.Paused, snap.Pending)
	return nil
}
