package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crytic/multifork/chain/config"
	"github.com/crytic/multifork/logging/colors"
	"github.com/crytic/multifork/utils"
	"github.com/spf13/cobra"
)

// initCmd represents the command provider for init
var initCmd = &cobra.Command{
	Use:           "init",
	Short:         "Initializes a forking configuration",
	Long:          `Initializes a forking configuration, optionally with endpoint aliases given as alias=url pairs`,
	Args:          cobra.NoArgs,
	RunE:          cmdRunInit,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	initCmd.Flags().String("out", "", "output path for the new forking configuration file")
	initCmd.Flags().StringToString("endpoint", nil, "endpoint alias and URL as alias=url, may be repeated")
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration file without prompting")
	rootCmd.AddCommand(initCmd)
}

// cmdRunInit executes the init CLI command and writes the default forking configuration updated with any flags
func cmdRunInit(cmd *cobra.Command, args []string) error {
	// Check to see if --out flag was used and store the value of --out flag
	outputFlagUsed := cmd.Flags().Changed("out")
	outputPath, err := cmd.Flags().GetString("out")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	// If we weren't provided an output path (flag was not used), we use our working directory
	if !outputFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			cmdLogger.Error("Failed to run the init command", err)
			return err
		}
		outputPath = filepath.Join(workingDirectory, DefaultConfigFilename)
	}

	forkingConfig, err := config.DefaultForkingConfig()
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	// Update the forking configuration given whatever flags were set using the CLI
	endpoints, err := cmd.Flags().GetStringToString("endpoint")
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}
	for alias, url := range endpoints {
		forkingConfig.RpcEndpoints[alias] = url
	}
	if err = forkingConfig.Validate(); err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if _, err = os.Stat(outputPath); err == nil && !force {
		// Prompt user for overwrite confirmation
		fmt.Fprint(cmd.OutOrStdout(), "The file already exists. Overwrite? (y/n): ")
		var response string
		if _, err := fmt.Fscan(cmd.InOrStdin(), &response); err != nil {
			cmdLogger.Error("Failed to scan input", err)
			return err
		}

		if response != "y" && response != "Y" {
			fmt.Fprintln(cmd.OutOrStdout(), "Operation canceled.")
			return nil
		}
	}

	// Write our forking configuration
	err = utils.MakeDirectory(filepath.Dir(outputPath))
	if err == nil {
		err = forkingConfig.WriteToFile(outputPath)
	}
	if err != nil {
		cmdLogger.Error("Failed to run the init command", err)
		return err
	}

	// Print a success message
	if absoluteOutputPath, err := filepath.Abs(outputPath); err == nil {
		outputPath = absoluteOutputPath
	}
	cmdLogger.Info("Forking configuration successfully output to: ", colors.Bold, outputPath, colors.Reset)
	return nil
}
