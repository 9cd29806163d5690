package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hubboard/hubboard/internal/importer"
	"github.com/hubboard/hubboard/internal/models"
	"github.com/hubboard/hubboard/internal/output"
	"github.com/hubboard/hubboard/internal/store"
)

var (
	projectDescription string
	projectGithubRepo  bool
	projectPrivate     bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long:  "Create, remove, list, and show kanban projects.",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new project",
	Long:  "Create a new project board. With --github-repo a repository is created and bound to it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectCreateRun(args[0])
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:     "remove <name-or-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectRemoveRun(args[0])
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectListRun()
	},
}

var projectShowCmd = &cobra.Command{
	Use:     "show <name-or-id>",
	Aliases: []string{"board"},
	Short:   "Show a project's board",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectShowRun(args[0])
	},
}

func init() {
	projectCreateCmd.Flags().StringVar(&projectDescription, "description", "", "Project description")
	projectCreateCmd.Flags().BoolVar(&projectGithubRepo, "github-repo", false, "Create and bind a GitHub repository")
	projectCreateCmd.Flags().BoolVar(&projectPrivate, "private", false, "Make the created repository private")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectRemoveCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	rootCmd.AddCommand(projectCmd)
}

func projectCreateRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would create project: %s", name)
		return nil
	}

	imp := newImporter(s)
	result, err := imp.CreateProject(context.Background(), importer.CreateProjectInput{
		Name:             name,
		Description:      projectDescription,
		IsPrivate:        projectPrivate,
		CreateGithubRepo: projectGithubRepo,
	})
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	ui.Success("Created project: %s", output.Cyan(result.Project.Name))
	if result.Project.GitHubRepoURL != "" {
		ui.Info("Repository: %s", result.Project.GitHubRepoURL)
	}
	for _, w := range result.Warnings {
		ui.Warning("%s", w)
	}
	return nil
}

func projectRemoveRun(nameOrID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, nameOrID)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove project: %s", p.Name)
		return nil
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		return fmt.Errorf("remove project: %w", err)
	}

	ui.Success("Removed project: %s", output.Cyan(p.Name))
	return nil
}

func projectListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		ui.Info("No projects yet. Use 'hubboard import <owner>/<repo>' or 'hubboard project create <name>'.")
		return nil
	}

	table := ui.Table([]string{"Name", "Repository", "Open Tasks", "Created"})
	for _, p := range projects {
		open := 0
		tasks, _ := s.ListTasks(ctx, store.TaskListFilter{ProjectID: p.ID})
		for _, t := range tasks {
			if t.Status != models.TaskStatusDone && t.Status != models.TaskStatusCancelled {
				open++
			}
		}

		repo := "-"
		if p.GitHubOwner != "" {
			repo = p.GitHubOwner + "/" + p.GitHubRepo
		}

		table.Append([]string{
			output.Cyan(p.Name),
			repo,
			fmt.Sprintf("%d", open),
			timeAgo(p.CreatedAt),
		})
	}
	table.Render()
	return nil
}

func projectShowRun(nameOrID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolveProject(ctx, s, nameOrID)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(p.Name))
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", p.Description)
	}
	if p.GitHubRepoURL != "" {
		fmt.Fprintf(ui.Out, "  Repository: %s\n", p.GitHubRepoURL)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", timeAgo(p.CreatedAt))
	fmt.Fprintln(ui.Out)

	columns, err := s.ListColumns(ctx, p.ID)
	if err != nil {
		return err
	}

	for _, col := range columns {
		tasks, err := s.ListTasks(ctx, store.TaskListFilter{ColumnID: col.ID})
		if err != nil {
			return err
		}

		fmt.Fprintf(ui.Out, "%s (%d)\n", output.Yellow(col.Name), len(tasks))
		if len(tasks) == 0 {
			continue
		}

		table := ui.Table([]string{"Title", "Priority", "Status", "Issue", "PR"})
		for _, t := range tasks {
			issue, pr := "-", "-"
			if t.GitHubIssueNumber != 0 {
				issue = fmt.Sprintf("#%d", t.GitHubIssueNumber)
			}
			if t.GitHubPRNumber != 0 {
				pr = fmt.Sprintf("#%d", t.GitHubPRNumber)
			}
			table.Append([]string{
				t.Title,
				output.PriorityColor(string(t.Priority)),
				output.StatusColor(string(t.Status)),
				issue,
				pr,
			})
		}
		table.Render()
		fmt.Fprintln(ui.Out)
	}

	return nil
}

// resolveProject finds a project by id or name.
func resolveProject(ctx context.Context, s store.Store, nameOrID string) (*models.Project, error) {
	if p, err := s.GetProject(ctx, nameOrID); err == nil {
		return p, nil
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.Name == nameOrID {
			return p, nil
		}
	}

	return nil, fmt.Errorf("project not found: %s", nameOrID)
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
