package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dongho-jung/lanes/internal/embed"
	"github.com/dongho-jung/lanes/internal/logging"
	"github.com/dongho-jung/lanes/internal/merge"
	"github.com/dongho-jung/lanes/internal/proposal"
	"github.com/dongho-jung/lanes/internal/run"
	"github.com/dongho-jung/lanes/internal/tui"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs with a plan record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp("runs")
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		svc, err := a.OpenService()
		if err != nil {
			return err
		}
		slugs, err := svc.ListRuns()
		if err != nil {
			return err
		}
		for _, slug := range slugs {
			fmt.Fprintln(cmd.OutOrStdout(), slug)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <slug>",
	Short: "Show divergence, overlap, and risk per lane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp("info")
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		a.SetRun(args[0])

		svc, err := a.OpenService()
		if err != nil {
			return err
		}
		info, err := svc.MergeInfo(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderInfo(info))
		return nil
	},
}

var (
	proposeOverrides []string
	proposeDiff      bool
	proposeCopy      bool
)

var proposeCmd = &cobra.Command{
	Use:   "propose <slug>",
	Short: "Compute and save a merge proposal",
	Args:  cobra.ExactArgs(1),
	RunE:  runPropose,
}

func init() {
	proposeCmd.Flags().StringArrayVar(&proposeOverrides, "override", nil, "Force a method for a lane (lane=method)")
	proposeCmd.Flags().BoolVar(&proposeDiff, "diff", false, "Show how the prompt changed since the last proposal")
	proposeCmd.Flags().BoolVar(&proposeCopy, "copy", false, "Copy the prompt to the clipboard")
}

// parseOverrides turns lane=method flags into an override map.
func parseOverrides(flags []string) (map[string]run.MergeMethod, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]run.MergeMethod, len(flags))
	for _, f := range flags {
		lane, method, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(lane) == "" {
			return nil, fmt.Errorf("invalid override %q: want lane=method", f)
		}
		m, err := run.ParseMergeMethod(method)
		if err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", f, err)
		}
		out[strings.TrimSpace(lane)] = m
	}
	return out, nil
}

func runPropose(cmd *cobra.Command, args []string) error {
	overrides, err := parseOverrides(proposeOverrides)
	if err != nil {
		return err
	}

	a, err := loadApp("propose")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	a.SetRun(args[0])

	svc, err := a.OpenService()
	if err != nil {
		return err
	}

	var previous *proposal.Proposal
	if proposeDiff {
		previous, err = svc.GetProposal(args[0])
		if err != nil && !errors.Is(err, proposal.ErrNotFound) {
			return err
		}
	}

	p, err := svc.CreateProposal(args[0], proposal.Options{Overrides: overrides})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, tui.RenderProposal(p))

	if proposeDiff {
		diff, err := proposal.PromptDiff(previous, p)
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Fprintln(out, "prompt unchanged")
		} else {
			fmt.Fprint(out, diff)
		}
	}

	if proposeCopy {
		if err := clipboard.WriteAll(p.Prompt); err != nil {
			logging.Warn("failed to copy prompt: %v", err)
		} else {
			fmt.Fprintln(out, tui.Success("prompt copied to clipboard"))
		}
	}
	return nil
}

var proposalPrompt bool

var proposalCmd = &cobra.Command{
	Use:   "proposal <slug>",
	Short: "Show the saved merge proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp("proposal")
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		a.SetRun(args[0])

		svc, err := a.OpenService()
		if err != nil {
			return err
		}
		p, err := svc.GetProposal(args[0])
		if err != nil {
			if errors.Is(err, proposal.ErrNotFound) {
				return fmt.Errorf("no proposal for %s; run `lanes propose %s` first", args[0], args[0])
			}
			return err
		}
		if proposalPrompt {
			fmt.Fprint(cmd.OutOrStdout(), p.Prompt)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderProposal(p))
		return nil
	},
}

func init() {
	proposalCmd.Flags().BoolVar(&proposalPrompt, "prompt", false, "Print the markdown prompt instead of the summary")
}

var (
	mergeLanes   []string
	mergeToMain  bool
	mergeConfirm bool
	mergeReset   bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <slug>",
	Short: "Execute the saved merge proposal",
	Args:  cobra.ExactArgs(1),
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().StringArrayVar(&mergeLanes, "lane", nil, "Restrict to this lane (repeatable)")
	mergeCmd.Flags().BoolVar(&mergeToMain, "to-main", false, "Fold the integration branch into main afterwards")
	mergeCmd.Flags().BoolVar(&mergeConfirm, "confirm", false, "Confirm --to-main")
	mergeCmd.Flags().BoolVar(&mergeReset, "reset", false, "Forget merge markers before executing")
}

func runMerge(cmd *cobra.Command, args []string) error {
	slug := args[0]
	req := merge.Request{LaneIDs: mergeLanes, MergeToMain: mergeToMain, ConfirmMergeToMain: mergeConfirm}
	if req.MergeToMain && !req.ConfirmMergeToMain {
		return fmt.Errorf("%w: pass --confirm with --to-main", merge.ErrConfirmationRequired)
	}

	a, err := loadApp("merge")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	a.SetRun(args[0])

	svc, err := a.OpenService()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if mergeReset {
		n, err := svc.ResetMarkers(slug)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "forgot %d merge markers\n", n)
	}

	var res *merge.Result
	execute := func(status func(string)) (string, error) {
		var err error
		res, err = svc.Merge(slug, req, func(e proposal.Entry) {
			status(fmt.Sprintf("merging %s (%s)", e.LaneID, e.Method))
		})
		if err != nil {
			return "", err
		}
		if res.Conflict != nil {
			return "", fmt.Errorf("conflict in %s", res.Conflict.LaneID)
		}
		return fmt.Sprintf("%d lanes", len(res.Lanes)), nil
	}

	var runErr error
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		_, runErr = tui.RunSpinner("merging "+slug, execute)
	} else {
		spinner := tui.NewSimpleSpinner(out, "merging "+slug, false)
		spinner.Start()
		var result string
		result, runErr = execute(spinner.SetMessage)
		spinner.Stop(runErr == nil, result)
	}

	if res != nil {
		fmt.Fprint(out, tui.RenderResult(res))
	}
	if res != nil && res.Conflict != nil {
		guide, err := a.ConflictGuide(res.Conflict)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, guide)
		return fmt.Errorf("merge halted on conflict in %s", res.Conflict.LaneID)
	}
	return runErr
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Write editable copies of the prompt documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp("prompts")
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		for _, name := range []string{embed.PromptMergeChecklist, embed.PromptConflictResolution} {
			path, err := embed.WriteDefaultPrompt(a.PromptDir(), name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}
