package cli

import (
	"context"
	"fmt"
	"time"

	"atsexpert/internal/common"
	"atsexpert/internal/types"

	"github.com/spf13/cobra"
)

// submissionFlags are the flags shared by evaluate and ats-score
type submissionFlags struct {
	output  common.CommandConfig
	jobFile string
}

var (
	evaluateFlags submissionFlags
	atsFlags      submissionFlags
)

var evaluateCmd = newSubmissionCommand(types.IntentEvaluation, &evaluateFlags, &cobra.Command{
	Use:   "evaluate <resume.pdf>",
	Short: "Evaluate a resume the way an HR reviewer would",
	Long: `Render the first page of a PDF resume and ask the model for a
professional evaluation: strengths, weaknesses and how well the profile
fits the optional job description.`,
	Example: `  atsexpert evaluate resume.pdf --job job.txt
  cat job.txt | atsexpert evaluate resume.pdf --job - --format markdown`,
})

var atsScoreCmd = newSubmissionCommand(types.IntentATSScoring, &atsFlags, &cobra.Command{
	Use:     "ats-score <resume.pdf>",
	Aliases: []string{"ats", "score"},
	Short:   "Score a resume against a job description like an ATS scanner",
	Long: `Render the first page of a PDF resume and ask the model for a
percentage match against the job description, missing keywords and final
thoughts.`,
	Example: `  atsexpert ats-score resume.pdf --job job.txt --format json -o score.json`,
})

// newSubmissionCommand completes cmd into a command that runs one
// submission with the given intent
func newSubmissionCommand(intent types.Intent, flags *submissionFlags, cmd *cobra.Command) *cobra.Command {
	cmd.Args = cobra.ExactArgs(1)
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		// Apply default format if not specified
		if flags.output.OutputFormat == "" {
			flags.output.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(flags.output.OutputFormat, cfg.App.SupportedFormats)
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runSubmission(cmd.Context(), intent, flags, args[0])
	}

	cmd.Flags().StringVarP(&flags.output.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flags.output.OutputFormat, "format", "", "Output format: json, text, or markdown")
	cmd.Flags().StringVarP(&flags.jobFile, "job", "j", "", `Job description file ("-" reads stdin)`)

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return []string{}, cobra.ShellCompDirectiveError
		}
		return cfg.App.SupportedFormats, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runSubmission(ctx context.Context, intent types.Intent, flags *submissionFlags, document string) error {
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(ctx)
	if err != nil {
		return err
	}

	rt, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rt.Close(shutdownCtx)
	}()

	err = common.RunSubmission(ctx, logger, rt.Pipeline, flags.output, common.SubmissionFiles{
		Document:        document,
		JobDescription:  flags.jobFile,
		Intent:          intent,
		MaxDocumentSize: cfg.App.MaxUploadSize,
	}, nil)
	if err != nil {
		return fmt.Errorf("%s failed: %w", intent.Title(), err)
	}
	logger.Info("Submission completed successfully", "intent", intent)
	return nil
}
