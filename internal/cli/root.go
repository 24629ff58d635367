package cli

import (
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/project"
)

// NewRootCmd собирает корневую команду conveyor.
func NewRootCmd(version string) *cobra.Command {
	var projectDir string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor — workflow execution tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&projectDir, "project", ".", "Project directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.SetFlagErrorFunc(WrapFlagError)

	outputFn := func() *Output { return NewOutput(jsonOutput) }
	loadFn := func(opts ...project.Option) (*project.Project, error) {
		return project.Load(projectDir, opts...)
	}

	rootCmd.AddCommand(
		newListCmd(loadFn, outputFn),
		newValidateCmd(loadFn, outputFn),
		newExecuteCmd(loadFn, outputFn),
		newWatchCmd(outputFn),
		newApplyCmd(loadFn, outputFn),
	)
	return rootCmd
}

// loadFunc — ленивая загрузка проекта после разбора PersistentFlags.
type loadFunc func(opts ...project.Option) (*project.Project, error)
