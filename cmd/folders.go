package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/docs"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List case folders",
	Args:  cobra.NoArgs,
	RunE:  runListFolders,
}

var createFolderCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a case folder",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCreateFolder,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document processing progress for a folder",
	RunE:  runStatus,
}

func init() {
	foldersCmd.AddCommand(createFolderCmd)

	statusCmd.Flags().StringP("folder", "f", "", "folder id")
	statusCmd.MarkFlagRequired("folder")
	statusCmd.Flags().BoolP("wait", "w", false, "poll until processing finishes")
	statusCmd.Flags().Duration("interval", 2*time.Second, "poll interval with --wait")
}

func runListFolders(cmd *cobra.Command, args []string) error {
	folders, err := newDocsClient().ListFolders(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	r := newRenderer(cmd)
	if len(folders) == 0 {
		fmt.Fprintln(out, r.Muted("No folders yet."))
		return nil
	}
	for _, f := range folders {
		line := fmt.Sprintf("%s  %s", f.ID, f.Name)
		if f.DocumentCount > 0 {
			line += r.Muted(fmt.Sprintf("  (%d documents)", f.DocumentCount))
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func runCreateFolder(cmd *cobra.Command, args []string) error {
	folder, err := newDocsClient().CreateFolder(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created folder %s (%s)\n", folder.Name, folder.ID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	folder, _ := cmd.Flags().GetString("folder")
	wait, _ := cmd.Flags().GetBool("wait")
	interval, _ := cmd.Flags().GetDuration("interval")

	client := newDocsClient()
	out := cmd.OutOrStdout()
	r := newRenderer(cmd)

	if !wait {
		status, err := client.ProcessingStatus(cmd.Context(), folder)
		if err != nil {
			return err
		}
		printStatus(cmd, status)
		return nil
	}

	last := ""
	status, err := client.WaitForProcessing(cmd.Context(), folder, interval, func(s *docs.ProcessingStatus) {
		if summary := s.Summary(); summary != last {
			last = summary
			fmt.Fprintln(out, r.Status("", summary))
		}
	})
	if err != nil {
		return err
	}
	printStatus(cmd, status)
	return nil
}

func printStatus(cmd *cobra.Command, status *docs.ProcessingStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, status.Summary())
	for _, d := range status.Documents {
		line := fmt.Sprintf("  %s  %s", d.Name, d.Status)
		if d.Error != "" {
			line += "  " + newRenderer(cmd).Error(d.Error)
		}
		fmt.Fprintln(out, line)
	}
}
