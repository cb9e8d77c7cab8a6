package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print a student's graded results with section rollups",
		Args:  cobra.NoArgs,
		RunE:  runResults,
	}
	cmd.Flags().Int("student", 0, "Student id (required)")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func runResults(cmd *cobra.Command, _ []string) error {
	studentID, _ := cmd.Flags().GetInt("student")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	results, err := e.resultService().ListForStudent(contextOf(cmd), studentID)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), results)
}

func overrideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "override <submission-id>",
		Short: "Override the score of a submission on behalf of the exam's teacher",
		Args:  cobra.ExactArgs(1),
		RunE:  runOverride,
	}
	f := cmd.Flags()
	f.Int("teacher", 0, "Teacher id owning the exam (required)")
	f.Float64("score", 0, "New score within [0, max score] (required)")
	f.String("feedback", "", "Feedback for the student")
	_ = cmd.MarkFlagRequired("teacher")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func runOverride(cmd *cobra.Command, args []string) error {
	submissionID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid submission id: %w", err)
	}
	f := cmd.Flags()
	teacherID, _ := f.GetInt("teacher")
	score, _ := f.GetFloat64("score")

	var feedback *string
	if f.Changed("feedback") {
		v, _ := f.GetString("feedback")
		feedback = &v
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	sub, err := e.resultService().GradeOverride(contextOf(cmd), submissionID, teacherID, score, feedback)
	if err != nil {
		return fmt.Errorf("override: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), sub)
}
