package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/config"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/headless"
	"github.com/pravin-sarule/jurinex-dev-sub002/pkg/stream"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about a folder's documents",
	Long: `Streams an answer grounded in the documents of a folder. Pass the question
as arguments or with --question, or run a predefined analysis with --secret.
Press Ctrl-C to stop generation and keep the partial answer.`,
	RunE: runAsk,
}

func init() {
	addAskFlags(askCmd.Flags())
	askCmd.MarkFlagRequired("folder")
}

func addAskFlags(flags *pflag.FlagSet) {
	flags.StringP("folder", "f", "", "folder id")
	flags.StringP("question", "q", "", "question to ask")
	flags.String("secret", "", "id of a predefined analysis prompt")
	flags.String("secret-name", "", "label stored in history for the analysis prompt")
	flags.String("session", "", "continue an existing chat session")
	flags.StringP("model", "m", "", "model name (default from chat.model)")
	flags.Bool("no-typing", false, "print the answer at once")
	flags.Bool("links", false, "resolve viewer links for cited documents")
}

func runAsk(cmd *cobra.Command, args []string) error {
	settings := config.Get()

	req, err := askRequest(cmd, args, settings.Chat.Model)
	if err != nil {
		return err
	}

	noTyping, _ := cmd.Flags().GetBool("no-typing")
	links, _ := cmd.Flags().GetBool("links")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	msg, err := headless.RunHeadless(ctx, settings, cmd.OutOrStdout(), req,
		headless.WithTyping(settings.Typing.Enabled && !noTyping),
		headless.WithColor(colorEnabled(cmd)),
		headless.WithViewerLinks(links),
	)
	if errors.Is(err, headless.ErrInterrupted) {
		return nil
	}
	if err != nil {
		return err
	}

	if msg.SessionID != "" && req.SessionID == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), newRenderer(cmd).Muted("session: "+msg.SessionID))
	}
	return nil
}

func askRequest(cmd *cobra.Command, args []string, defaultModel string) (stream.Request, error) {
	flags := cmd.Flags()
	folder, _ := flags.GetString("folder")
	question, _ := flags.GetString("question")
	secret, _ := flags.GetString("secret")
	secretName, _ := flags.GetString("secret-name")
	session, _ := flags.GetString("session")
	model, _ := flags.GetString("model")

	if question == "" {
		question = strings.Join(args, " ")
	}
	if model == "" {
		model = defaultModel
	}

	req := stream.Request{
		FolderID:         folder,
		Question:         question,
		SecretPromptID:   secret,
		SecretPromptName: secretName,
		SessionID:        session,
		ModelName:        model,
	}
	return req, req.Validate()
}
