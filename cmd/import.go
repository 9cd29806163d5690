package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hubboard/hubboard/internal/importer"
	"github.com/hubboard/hubboard/internal/output"
	"github.com/hubboard/hubboard/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <owner>/<repo>",
	Short: "Import a GitHub repository as a project",
	Long: `Import a GitHub repository: creates a project board, registers a webhook,
and pulls the repository's issues into the Backlog column.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func newImporter(s store.Store) *importer.Importer {
	return importer.New(s, getGateway(), viper.GetString("base_url"))
}

func importRun(slug string) error {
	owner, repo, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || repo == "" {
		return fmt.Errorf("expected <owner>/<repo>, got %q", slug)
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	gw := getGateway()
	r, err := gw.GetRepository(ctx, owner, repo)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would import %s", r.FullName)
		return nil
	}

	imp := newImporter(s)
	result, err := imp.ImportRepository(ctx, importer.ImportInput{
		RepoID:          r.ID,
		RepoName:        r.Name,
		RepoDescription: r.Description,
		RepoURL:         r.URL,
		Owner:           r.Owner,
		Repo:            r.Name,
	})
	if err != nil {
		return fmt.Errorf("import %s: %w", r.FullName, err)
	}

	ui.Success("Imported %s as project %s", r.FullName, output.Cyan(result.Project.Name))
	ui.Info("Tasks created: %d", result.ImportedTasks)
	for _, w := range result.Warnings {
		ui.Warning("%s", w)
	}
	return nil
}
