package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"deep-research-agent/pkg/events"
	"deep-research-agent/pkg/research"
	"deep-research-agent/pkg/validation"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	stageOK       = color.New(color.FgGreen).SprintFunc()
	stageDegraded = color.New(color.FgYellow).SprintFunc()
	headline      = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint         = color.New(color.Faint).SprintFunc()
)

func newRunCmd() *cobra.Command {
	var (
		contextFile string
		depth       string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Research a question through every stage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reportDepth, err := validation.ValidateReportDepth(depth)
			if err != nil {
				return err
			}

			researchContext, err := readContextFile(contextFile)
			if err != nil {
				return err
			}

			if err := app.load(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if !quiet {
				progress, err := app.container.ProgressService.Subscribe(ctx)
				if err != nil {
					return err
				}
				go printProgress(progress)
			}

			query := strings.Join(args, " ")
			fmt.Println(headline("Researching:"), query)

			result, err := app.container.ResearchService.Run(ctx, query, researchContext)
			if err != nil {
				return err
			}
			printResult(result, reportDepth)
			return nil
		},
	}

	cmd.Flags().StringVarP(&contextFile, "context", "c", "", "JSON file with user_info / constraints / preferences")
	cmd.Flags().StringVar(&depth, "depth", validation.DepthStandard, "report depth: quick, standard or detailed")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the final result")
	return cmd
}

func readContextFile(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, validation.Wrap("context", "is not a JSON object", err)
	}
	return out, nil
}

func printProgress(progress <-chan events.Envelope) {
	for env := range progress {
		if env.Type != events.TypeStageCompleted {
			continue
		}
		fmt.Println(formatStageLine(env.Data))
	}
}

func formatStageLine(data map[string]interface{}) string {
	line := fmt.Sprintf("[%v/%v] %v", data["stage"], data["total_stages"], data["stage_name"])
	if degraded, _ := data["degraded"].(bool); degraded {
		return stageDegraded(line+" (degraded)") + " " + faint(fmt.Sprint(data["error"]))
	}
	return stageOK(line)
}

func printResult(result *research.RunResult, depth string) {
	fmt.Println()
	fmt.Println(headline("Session:"), result.SessionID)
	fmt.Printf("%s %.2f\n", headline("Confidence:"), result.ConfidenceScore)

	if c := result.Conclusions; c != nil {
		fmt.Printf("%s %d completed, %d degraded\n", headline("Stages:"), c.StagesCompleted, c.StagesDegraded)
		fmt.Println(headline("Summary:"), c.Summary)
		printList("Key findings", c.KeyFindings)
		printList("Recommendations", c.Recommendations)
		printList("Knowledge gaps", c.KnowledgeGaps)
	}
	fmt.Println(faint(fmt.Sprintf("Report depth %q: hand the session to a report generator, then `research sessions set-report %s <path>`.", depth, result.SessionID)))
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Println(headline(title + ":"))
	for _, item := range items {
		fmt.Println("  -", item)
	}
}
