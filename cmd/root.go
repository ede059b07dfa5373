package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/docs"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/logger"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/render"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "jurinex",
	Short: "Chat with your case documents",
	Long: `Ask questions about the documents in a case folder and watch the answer
stream in, with the sources it was drawn from.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.jurinex/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "warn", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("base-url", "", "document service base url")
	viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("base-url"))

	rootCmd.PersistentFlags().String("token", "", "bearer token for the document service")
	viper.BindPFlag("api.token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(askCmd, historyCmd, deleteCmd, foldersCmd, statusCmd)
}

func initConfig() error {
	if _, err := config.Load(cfgFile); err != nil {
		return err
	}
	return logger.Init()
}

// colorEnabled honours --no-color on top of terminal detection
func colorEnabled(cmd *cobra.Command) bool {
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		return false
	}
	return render.DetectColor(cmd.OutOrStdout())
}

func newRenderer(cmd *cobra.Command) *render.Renderer {
	return render.New(cmd.OutOrStdout(), 100, colorEnabled(cmd))
}

func newDocsClient() *docs.Client {
	return docs.NewClientFromConfig(config.Get())
}
