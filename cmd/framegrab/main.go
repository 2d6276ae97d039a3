// framegrab pulls frames from a camera, video file, image directory or
// synchronized rig, and serves a control API for seeking while it runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "framegrab",
		Short:         "Frame acquisition with interactive seeking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newWatchCmd())
	root.AddCommand(newCtlCmds()...)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "framegrab:", err)
		os.Exit(1)
	}
}
