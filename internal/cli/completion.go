package cli

import (
	"github.com/spf13/cobra"
)

// completionCommand creates the completion command. CI images run bash;
// zsh covers developer machines.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh]",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for arduci.

  $ source <(arduci completion bash)
  $ arduci completion zsh > "${fpath[1]}/_arduci"

Library directory arguments complete to directories, and deps --format
completes to the supported output formats.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "zsh" {
				return cmd.Root().GenZshCompletion(stdout)
			}
			return cmd.Root().GenBashCompletionV2(stdout, true)
		},
	}
}

// completeLibraryDir completes the optional [library-dir] argument.
func completeLibraryDir(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveFilterDirs
}

// completeFormats completes deps --format.
func completeFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{
		formatTree + "\tindented dependency tree",
		formatDOT + "\tGraphviz source",
		formatSVG + "\trendered graph",
		formatJSON + "\tnodes and edges",
	}, cobra.ShellCompDirectiveNoFileComp
}
