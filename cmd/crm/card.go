package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/hopewell/crm/internal/kanban"
	"github.com/spf13/cobra"
)

func newCardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Manage cards",
	}

	cmd.AddCommand(newCardCreateCmd())
	cmd.AddCommand(newCardListCmd())
	cmd.AddCommand(newCardShowCmd())
	cmd.AddCommand(newCardUpdateCmd())
	cmd.AddCommand(newCardMoveCmd())
	cmd.AddCommand(newCardDeleteCmd())
	return cmd
}

func newCardCreateCmd() *cobra.Command {
	var (
		configPath string
		in         kanban.CardInput
	)

	cmd := &cobra.Command{
		Use:   "create <pipeline>",
		Short: "Create a card",
		Long:  "Creates a card. Without --stage it starts in the pipeline's first stage.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.svc.CreateCard(context.Background(), args[0], in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created card %s in %s/%s\n", c.ID, c.Pipeline, c.StageRef)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	cmd.Flags().StringVar(&in.Title, "title", "", "card title (required)")
	cmd.Flags().StringVar(&in.StageRef, "stage", "", "stage key")
	cmd.Flags().StringVar(&in.Rank, "rank", "", "priority or risk level, e.g. high")
	cmd.Flags().StringVar(&in.Kind, "kind", "", "card kind: task or seeker (default: the pipeline's kind)")
	cmd.Flags().StringToStringVar(&in.Fields, "field", nil, "extra field as key=value (repeatable)")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newCardListCmd() *cobra.Command {
	var (
		configPath string
		filter     kanban.CardFilter
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCardList(cmd, configPath, filter)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	cmd.Flags().StringVar(&filter.Pipeline, "pipeline", "", "filter by recorded pipeline")
	cmd.Flags().StringVar(&filter.StageRef, "stage", "", "filter by stage key")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "filter by kind")
	return cmd
}

func runCardList(cmd *cobra.Command, configPath string, filter kanban.CardFilter) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	cards, err := a.svc.ListCards(context.Background(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(cards) == 0 {
		fmt.Fprintln(out, "No cards found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPIPELINE\tSTAGE\tRANK\tTITLE")
	for _, c := range cards {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Pipeline, orDash(c.StageRef), orDash(c.Rank), c.Title)
	}
	return w.Flush()
}

func newCardShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.svc.GetCard(context.Background(), args[0])
			if err != nil {
				return err
			}
			printCard(cmd, c)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	return cmd
}

func printCard(cmd *cobra.Command, c kanban.Card) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", c.ID)
	fmt.Fprintf(w, "Title:\t%s\n", c.Title)
	fmt.Fprintf(w, "Pipeline:\t%s\n", c.Pipeline)
	fmt.Fprintf(w, "Kind:\t%s\n", c.Kind)
	fmt.Fprintf(w, "Stage:\t%s\n", orDash(c.StageRef))
	fmt.Fprintf(w, "Rank:\t%s\n", orDash(c.Rank))
	for _, k := range slices.Sorted(maps.Keys(c.Fields)) {
		fmt.Fprintf(w, "%s:\t%s\n", k, c.Fields[k])
	}
	fmt.Fprintf(w, "Created:\t%s\n", c.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Updated:\t%s\n", c.UpdatedAt.Format("2006-01-02 15:04"))
	w.Flush()
}

func newCardUpdateCmd() *cobra.Command {
	var (
		configPath                   string
		title, stage, rank, pipeline string
		fields                       map[string]string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a card's fields",
		Long:  "Updates the given fields of a card. --field key= removes an extra field.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch kanban.CardPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("stage") {
				patch.StageRef = &stage
			}
			if flags.Changed("rank") {
				patch.Rank = &rank
			}
			if flags.Changed("pipeline") {
				patch.Pipeline = &pipeline
			}
			if flags.Changed("field") {
				patch.Fields = fields
			}
			if patch.Title == nil && patch.StageRef == nil && patch.Rank == nil &&
				patch.Pipeline == nil && patch.Fields == nil {
				return fmt.Errorf("nothing to update")
			}

			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.svc.UpdateCard(context.Background(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated card %s\n", c.ID)
			printCard(cmd, c)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&stage, "stage", "", "new stage key (empty for uncategorised)")
	cmd.Flags().StringVar(&rank, "rank", "", "new priority or risk level")
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "new pipeline")
	cmd.Flags().StringToStringVar(&fields, "field", nil, "set an extra field as key=value (repeatable)")
	return cmd
}

func newCardMoveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "move <id> <stage>",
		Short: "Move a card to another column of its board",
		Long:  "Moves a card as a drag and drop would. Use \"uncategorised\" to clear its stage.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			id, stage := args[0], args[1]
			outcome, err := a.svc.OnCardMoved(context.Background(), id, stage)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch outcome {
			case kanban.Moved:
				fmt.Fprintf(out, "Moved card %s to %s\n", id, stage)
			case kanban.NoOp:
				fmt.Fprintf(out, "Card %s is already on %s\n", id, stage)
			default:
				fmt.Fprintf(out, "%q is not a column of the card's board; nothing changed\n", stage)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	return cmd
}

func newCardDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.DeleteCard(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted card %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to CRM config file")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
