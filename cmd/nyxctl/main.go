// Command nyxctl inspects kernel-state snapshots captured by
// internal/snapshot; it never talks to a running kernel directly, since
// the kernel core exposes no external RPC surface.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/snapshot"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nyxctl",
		Short: "Inspect nyx microkernel snapshots",
	}
	root.AddCommand(newVersionCmd(), newSnapshotCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the nyxctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			version.PrintVersion(cmd.OutOrStdout())
			return nil
		},
	}
}

func newSnapshotCmd() *cobra.Command {
	snapCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect kernel-state snapshot files",
	}
	snapCmd.AddCommand(newSnapshotInspectCmd())
	return snapCmd
}

func newSnapshotInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the object table captured in a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			snap, err := snapshot.Decode(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "snapshot %s taken at %s\n", snap.ID, snap.TakenAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "%-28s %-10s %s\n", "OBJECT", "GEN", "REFS")

			ids := make([]string, 0, len(snap.Objects))
			byID := make(map[string]string, len(snap.Objects))
			for id, obj := range snap.Objects {
				key := fmt.Sprintf("%v", id)
				ids = append(ids, key)
				byID[key] = fmt.Sprintf("%-28s %-10d %d\n", key, obj.Generation, obj.RefCount)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprint(out, byID[id])
			}
			return nil
		},
	}
}
