package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paulexconde/surveyflow/internal/definition"
	"github.com/paulexconde/surveyflow/internal/pkg/paginator"
	"github.com/paulexconde/surveyflow/internal/repository"
	"github.com/paulexconde/surveyflow/internal/services"
	"github.com/paulexconde/surveyflow/pkg/choicekey"
)

var cleanupDraftsCmd = &cobra.Command{
	Use:   "cleanup-drafts",
	Short: "Delete expired drafts from the configured draft store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		drafts, err := a.draftService(cmd.Context())
		if err != nil {
			return err
		}
		n, err := drafts.CleanupExpiredDrafts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired drafts\n", n)
		return nil
	},
}

var (
	checkCyclesFile   string
	checkCyclesSurvey int64
	checkCyclesStrict bool
)

var checkCyclesCmd = &cobra.Command{
	Use:   "check-cycles",
	Short: "Report circular branching in a survey definition file or a stored survey",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (checkCyclesFile == "") == (checkCyclesSurvey == 0) {
			return errors.New("exactly one of --file or --survey is required")
		}

		var survey *services.Survey
		if checkCyclesFile != "" {
			s, err := definition.LoadFile(checkCyclesFile)
			if err != nil {
				return err
			}
			survey = s
		} else {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			s, err := repository.NewSurveyRepository(a.db, a.log).LoadSurvey(cmd.Context(), checkCyclesSurvey)
			if err != nil {
				return err
			}
			survey = s
		}

		cycles := services.DetectCycles(survey)
		printCycles(cmd.OutOrStdout(), survey, cycles)
		if checkCyclesStrict && len(cycles) > 0 {
			return fmt.Errorf("%d circular branching path(s) found", len(cycles))
		}
		return nil
	},
}

func printCycles(w io.Writer, survey *services.Survey, cycles []services.Cycle) {
	if len(cycles) == 0 {
		fmt.Fprintln(w, "No circular branching found")
		return
	}
	for _, c := range cycles {
		names := make([]string, 0, len(c.Path)+1)
		for _, id := range c.Path {
			names = append(names, sectionLabel(survey, id))
		}
		names = append(names, sectionLabel(survey, c.Path[0]))
		fmt.Fprintf(w, "Circular branching: %s\n", strings.Join(names, " -> "))
	}
}

func sectionLabel(survey *services.Survey, id int64) string {
	if s := survey.Section(id); s != nil && s.Name != "" {
		return fmt.Sprintf("%q (%d)", s.Name, id)
	}
	return fmt.Sprintf("section %d", id)
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize TEXT...",
	Short: "Print the branch key for each choice text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, text := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", text, choicekey.Normalize(text))
		}
		return nil
	},
}

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Store a survey definition file in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		survey, err := definition.LoadFile(importFile)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.connect(cmd.Context()); err != nil {
			return err
		}

		id, cycles, err := definition.Import(cmd.Context(), repository.NewSurveyRepository(a.db, a.log), survey)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported survey %d\n", id)
		if len(cycles) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Warning: %d circular branching path(s), run check-cycles --survey %d\n", len(cycles), id)
		}
		return nil
	},
}

var (
	draftsSurvey int64
	draftsPage   int
	draftsLimit  int
)

var draftsCmd = &cobra.Command{
	Use:   "drafts",
	Short: "Inspect stored drafts",
}

var draftsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a survey's drafts from postgres, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.connect(cmd.Context()); err != nil {
			return err
		}

		page, err := repository.NewDraftRepository(a.db).ListDrafts(cmd.Context(), draftsSurvey, draftsPage, draftsLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	},
}

func init() {
	checkCyclesCmd.Flags().StringVar(&checkCyclesFile, "file", "", "Survey definition file (YAML)")
	checkCyclesCmd.Flags().Int64Var(&checkCyclesSurvey, "survey", 0, "Stored survey id")
	checkCyclesCmd.Flags().BoolVar(&checkCyclesStrict, "strict", false, "Exit with an error when cycles are found")

	importCmd.Flags().StringVar(&importFile, "file", "", "Survey definition file (YAML)")
	_ = importCmd.MarkFlagRequired("file")

	draftsListCmd.Flags().Int64Var(&draftsSurvey, "survey", 0, "Survey id")
	draftsListCmd.Flags().IntVar(&draftsPage, "page", 1, "Page number")
	draftsListCmd.Flags().IntVar(&draftsLimit, "limit", paginator.DefaultLimit, "Page size")
	_ = draftsListCmd.MarkFlagRequired("survey")
	draftsCmd.AddCommand(draftsListCmd)
}
