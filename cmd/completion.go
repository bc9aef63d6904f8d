package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// completionCmd represents the completion command
var completionCmd = &cobra.Command{
	Use:   "completion <bash|zsh|fish>",
	Short: "Generate shell completion code for the specified shell",
	Long: `To load completions:

Bash:

  $ source <(%[1]s completion bash), e.g. source <(multifork completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ %[1]s completion bash > /etc/bash_completion.d/%[1]s
  # macOS:
  $ %[1]s completion bash > $(brew --prefix)/etc/bash_completion.d/%[1]s

Zsh:

  $ %[1]s completion zsh > "${fpath[1]}/_%[1]s"

Fish:

  $ %[1]s completion fish > ~/.config/fish/completions/%[1]s.fish`,
	ValidArgs:     []string{"bash", "zsh", "fish"},
	Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletionV2(cmd.OutOrStdout(), true)
		case "zsh":
			err = cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			err = cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		}
		return errors.Wrapf(err, "unable to generate a %s completion", args[0])
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
