package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skillkit/sk/internal/agent"
	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/skerr"
	"github.com/skillkit/sk/internal/sync"
)

var (
	warnColor = color.New(color.FgYellow)
	okColor   = color.New(color.FgGreen)
	errColor  = color.New(color.FgRed)
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Install and reconcile skills from skills.toml",
	Long: `Resolve every dependency declared in skills.toml, fetch the packages,
and install their skills for each enabled agent. Skills installed by a
previous run but no longer declared are removed; files sk does not manage
are never touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		dir, _ := cmd.Flags().GetString("dir")
		agentFilter, _ := cmd.Flags().GetStringSlice("agents")

		if dir == "" {
			var err error
			dir, err = os.Getwd()
			if err != nil {
				return err
			}
		}

		manifestPath, err := manifest.Find(dir)
		if err != nil {
			return err
		}
		m, err := manifest.ParseFile(manifestPath)
		if err != nil {
			return err
		}

		agents, err := selectAgents(m, agentFilter)
		if err != nil {
			return err
		}
		if len(agents) == 0 {
			return fmt.Errorf("no agents selected; enable agents in [agents] or pass --agents")
		}

		syncer := sync.New(sync.Options{DryRun: dryRun})
		outcomes := syncer.All(cmd.Context(), m, agents)

		failed := 0
		for _, outcome := range outcomes {
			printOutcome(outcome, dryRun)
			if outcome.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d agent(s) failed to sync", failed)
		}
		return nil
	},
}

// selectAgents intersects the manifest's enabled agents with an optional
// --agents filter.
func selectAgents(m *manifest.Manifest, filter []string) ([]agent.Agent, error) {
	all, err := agent.Load()
	if err != nil {
		return nil, err
	}

	ids := m.EnabledAgents()
	if len(filter) > 0 {
		ids = filter
	}

	var agents []agent.Agent
	for _, id := range ids {
		a, err := agent.ByID(all, id)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

func printOutcome(outcome sync.AgentOutcome, dryRun bool) {
	name := outcome.Agent.DisplayName

	if outcome.Err != nil {
		stage := skerr.StageOf(outcome.Err)
		if stage != "" {
			errColor.Fprintf(os.Stderr, "%s: failed at %s: %v\n", name, stage, outcome.Err)
		} else {
			errColor.Fprintf(os.Stderr, "%s: %v\n", name, outcome.Err)
		}
		return
	}

	result := outcome.Result
	for _, warning := range result.Warnings {
		warnColor.Fprintf(os.Stderr, "%s: warning: %s\n", name, warning)
	}

	switch {
	case result.NoDependencies:
		fmt.Printf("%s: no dependencies declared, nothing to do\n", name)
	case dryRun:
		fmt.Printf("%s: would install %d skill(s), remove %d\n", name, result.Installed, result.Removed)
		for _, task := range result.Plan.Tasks {
			fmt.Printf("  + %s -> %s\n", task.TargetName, task.TargetPath)
		}
	default:
		okColor.Printf("%s: %d installed, %d removed", name, result.Installed, result.Removed)
		if result.Plugins > 0 {
			okColor.Printf(", %d plugin(s) via native installer", result.Plugins)
		}
		fmt.Println()
	}
}

func init() {
	syncCmd.Flags().Bool("dry-run", false, "Show what would be done without making changes")
	syncCmd.Flags().StringP("dir", "d", "", "Directory to search for skills.toml (default: current directory)")
	syncCmd.Flags().StringSlice("agents", nil, "Agent IDs to sync (default: agents enabled in the manifest)")
	rootCmd.AddCommand(syncCmd)
}
