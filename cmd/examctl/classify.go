package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-engine/internal/integrity"
	"github.com/stemsi/exstem-engine/internal/model"
)

func classifyCmd() *cobra.Command {
	def := model.DefaultAntiCheatPolicy()

	cmd := &cobra.Command{
		Use:   "classify [summary.json]",
		Short: "Classify an integrity summary offline (reads stdin without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runClassify,
	}
	f := cmd.Flags()
	f.Int("max-tab-switches", def.MaxTabSwitches, "Tab switches tolerated before flagging")
	f.Int("max-fullscreen-exits", def.MaxFullscreenExits, "Fullscreen exits tolerated before flagging")
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	var summary model.IntegritySummary
	if err := json.NewDecoder(in).Decode(&summary); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}

	policy := model.DefaultAntiCheatPolicy()
	policy.MaxTabSwitches, _ = cmd.Flags().GetInt("max-tab-switches")
	policy.MaxFullscreenExits, _ = cmd.Flags().GetInt("max-fullscreen-exits")

	return writeJSON(cmd.OutOrStdout(), integrity.Evaluate(summary, policy))
}
