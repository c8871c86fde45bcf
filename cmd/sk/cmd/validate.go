package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillkit/sk/internal/manifest"
	"github.com/skillkit/sk/internal/resolve"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse skills.toml and report its declarations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
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

		fmt.Printf("%s is valid\n", manifestPath)
		if m.Package != nil {
			fmt.Printf("package: %s %s\n", m.Package.Name, m.Package.Version)
		}
		if agents := m.EnabledAgents(); len(agents) > 0 {
			fmt.Printf("agents:  %v\n", agents)
		}
		for _, pkg := range resolve.Packages(m) {
			strategy := string(pkg.Strategy.Kind)
			if pkg.Strategy.Sparse {
				strategy += " (sparse)"
			}
			fmt.Printf("  %-16s %-14s %-18s %s\n",
				pkg.Alias(), pkg.Decl.Kind(), strategy, pkg.Decl.Source())
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringP("dir", "d", "", "Directory to search for skills.toml (default: current directory)")
	rootCmd.AddCommand(validateCmd)
}
