package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/hopewell/crm/internal/kanban"
	"github.com/spf13/cobra"
)

func newPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Pipeline commands",
	}

	cmd.AddCommand(newPipelineListCmd())
	return cmd
}

func newPipelineListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			cat := a.svc.Catalog()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTAGES")
			for _, id := range cat.IDs() {
				def, _ := cat.Definition(id)
				fmt.Fprintf(w, "%s\t%s\t%d\n", id, def.Kind, len(a.svc.ListStages(ctx, id)))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	return cmd
}

func newStageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Manage the stages of a pipeline",
	}

	cmd.AddCommand(newStageListCmd())
	cmd.AddCommand(newStageAddCmd())
	cmd.AddCommand(newStageRenameCmd())
	cmd.AddCommand(newStageRecolorCmd())
	cmd.AddCommand(newStageDeleteCmd())
	cmd.AddCommand(newStageReorderCmd())
	cmd.AddCommand(newStageResetCmd())
	return cmd
}

func newStageListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list <pipeline>",
		Short: "List the stages of a pipeline with card counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStageList(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	return cmd
}

func runStageList(cmd *cobra.Command, configPath, pipeline string) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.svc.Board(context.Background(), pipeline)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(p.Buckets) == 1 {
		fmt.Fprintf(out, "Pipeline %s has no stages.\n", pipeline)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tKEY\tLABEL\tCOLOR\tCARDS")
	for _, b := range p.Buckets {
		if b.Stage.Key == kanban.Uncategorised {
			if len(b.Cards) > 0 {
				fmt.Fprintf(w, "-\t%s\t%s\t-\t%d\n", b.Stage.Key, b.Stage.Label, len(b.Cards))
			}
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", b.Stage.SortOrder, b.Stage.Key, b.Stage.Label, b.Stage.Color, len(b.Cards))
	}
	return w.Flush()
}

func newStageAddCmd() *cobra.Command {
	var (
		configPath string
		color      string
	)

	cmd := &cobra.Command{
		Use:   "add <pipeline> <label>",
		Short: "Append a stage to a pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.svc.AddStage(context.Background(), args[0], kanban.StageInput{Label: args[1], Color: color})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added stage %s (%s) to %s at position %d\n", st.Key, st.Label, args[0], st.SortOrder)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	cmd.Flags().StringVar(&color, "color", "", "stage colour, e.g. #3b82f6 (default: next palette colour)")
	return cmd
}

func newStageRenameCmd() *cobra.Command {
	var (
		configPath string
		newKey     string
		newLabel   string
	)

	cmd := &cobra.Command{
		Use:   "rename <pipeline> <key>",
		Short: "Change a stage's key or label",
		Long:  "Changes a stage's key and/or label. A key change moves every card on the stage to the new key.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if newKey == "" && newLabel == "" {
				return fmt.Errorf("one of --key or --label is required")
			}
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.svc.RenameStage(context.Background(), args[0], args[1], newKey, newLabel)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stage %s is now %s (%s)\n", args[1], st.Key, st.Label)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	cmd.Flags().StringVar(&newKey, "key", "", "new stage key")
	cmd.Flags().StringVar(&newLabel, "label", "", "new stage label")
	return cmd
}

func newStageRecolorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "recolor <pipeline> <key> <color>",
		Short: "Change a stage's colour",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.svc.RecolorStage(context.Background(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stage %s colour set to %s\n", st.Key, st.Color)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	return cmd
}

func newStageDeleteCmd() *cobra.Command {
	var (
		configPath  string
		fallback    string
		skipConfirm bool
	)

	cmd := &cobra.Command{
		Use:   "delete <pipeline> <key>",
		Short: "Delete a stage, moving its cards to a fallback",
		Long:  "Deletes a stage. Its cards move to --fallback, or become uncategorised when no fallback is given.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStageDelete(cmd, configPath, args[0], args[1], fallback, skipConfirm)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	cmd.Flags().StringVar(&fallback, "fallback", "", "stage that receives the deleted stage's cards")
	cmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runStageDelete(cmd *cobra.Command, configPath, pipeline, key, fallback string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	n, err := a.svc.PreviewDelete(ctx, pipeline, key)
	if err != nil {
		return err
	}
	target := fallback
	if target == "" {
		target = kanban.Uncategorised
	}

	if !skipConfirm && n > 0 {
		fmt.Fprintf(out, "Deleting stage %q will move %d card(s) to %q.\n", key, n, target)
		fmt.Fprint(out, "Continue? [y/N]: ")
		scanner := bufio.NewScanner(cmd.InOrStdin())
		answer := ""
		if scanner.Scan() {
			answer = strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	res, err := a.svc.DeleteStage(ctx, pipeline, key, fallback)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted stage %s from %s; moved %d card(s) to %s\n", key, pipeline, res.Affected, target)
	return nil
}

func newStageReorderCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reorder <pipeline> <key>...",
		Short: "Set the order of every stage in a pipeline",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stages, err := a.svc.ReorderStages(context.Background(), args[0], args[1:])
			if err != nil {
				return err
			}
			keys := make([]string, len(stages))
			for i, st := range stages {
				keys[i] = st.Key
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stage order for %s: %s\n", args[0], strings.Join(keys, ", "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	return cmd
}

func newStageResetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reset <pipeline>",
		Short: "Restore a pipeline's default stages",
		Long:  "Restores the default stages. Cards are not changed; cards on removed stages become uncategorised.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stages, err := a.svc.ResetStages(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s to %d default stages\n", args[0], len(stages))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	return cmd
}
