package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/headless"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

var (
	generateURL            string
	generateFetch          bool
	generateFile           string
	generateStdin          bool
	generateMode           string
	generateLessonType     string
	generateStudentLevel   string
	generateTargetLanguage string
	generateOutputFormat   string
	generateTimeout        string
	generateRetry          bool
	generateSessionID      string
	generateQuiet          bool
	generateVerbose        bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [url]",
	Short: "Generate a lesson from a page or text",
	Long: `Generate a lesson without starting the server.

The source is fetched from the URL (--fetch), read from a local text or
HTML file (--file), or read from stdin (--stdin). Progress is streamed in
the chosen output format (text, json, or jsonl).

Examples:
  # Fetch a page and build a discussion lesson
  lessonpipe generate --fetch https://example.com/article

  # Use saved HTML, retrying failed attempts
  lessonpipe generate -f page.html --retry https://example.com/article

  # Pipe plain text and stream JSONL progress events
  cat article.txt | lessonpipe generate --stdin -o jsonl https://example.com/article

  # Resume a failed session
  lessonpipe generate --fetch -s 01J... https://example.com/article`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	// Source
	generateCmd.Flags().StringVarP(&generateURL, "url", "u", "", "Source page URL")
	generateCmd.Flags().BoolVar(&generateFetch, "fetch", false, "Download and extract the source URL")
	generateCmd.Flags().StringVarP(&generateFile, "file", "f", "", "Read the source from a text or HTML file")
	generateCmd.Flags().BoolVar(&generateStdin, "stdin", false, "Read source text from stdin")
	generateCmd.Flags().StringVarP(&generateMode, "mode", "m", string(types.ModeFullPage), "Extraction mode: full-page, selection, article")

	// Lesson
	generateCmd.Flags().StringVar(&generateLessonType, "lesson-type", "", "Lesson type (default from config)")
	generateCmd.Flags().StringVar(&generateStudentLevel, "level", "", "Student level (default from config)")
	generateCmd.Flags().StringVar(&generateTargetLanguage, "language", "", "Target language (default from config)")

	// Session
	generateCmd.Flags().StringVarP(&generateSessionID, "session", "s", "", "Continue existing session ID")
	generateCmd.Flags().BoolVar(&generateRetry, "retry", false, "Retry failed attempts through the retry policy")

	// Output format
	generateCmd.Flags().StringVarP(&generateOutputFormat, "output-format", "o", "text", "Output format: text, json, jsonl")
	generateCmd.Flags().BoolVarP(&generateQuiet, "quiet", "q", false, "Suppress progress output, only show result")
	generateCmd.Flags().BoolVarP(&generateVerbose, "verbose", "v", false, "Show all events")

	// Execution limits
	generateCmd.Flags().StringVarP(&generateTimeout, "timeout", "t", "", "Maximum generation time (e.g., 5m); default from config")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var outputFormat headless.OutputFormat
	switch strings.ToLower(generateOutputFormat) {
	case "text":
		outputFormat = headless.OutputText
	case "json":
		outputFormat = headless.OutputJSON
	case "jsonl":
		outputFormat = headless.OutputJSONL
	default:
		return fmt.Errorf("invalid output format: %s (must be text, json, or jsonl)", generateOutputFormat)
	}

	url := generateURL
	if url == "" && len(args) > 0 {
		url = args[0]
	}
	if url == "" {
		return errors.New("source URL required. Provide via argument or --url")
	}
	if !generateFetch && generateFile == "" && !generateStdin {
		return errors.New("source required. Use --fetch, --file, or --stdin")
	}

	mode := types.ExtractionMode(generateMode)
	if !mode.Valid() {
		return fmt.Errorf("invalid mode: %s", generateMode)
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.Generation()
	if err != nil {
		return fmt.Errorf("%w (set generation.endpoint or LESSONPIPE_GENERATION_URL)", err)
	}

	gen := a.Config.Generation
	cfg := headless.DefaultConfig()
	cfg.SourceURL = url
	cfg.Fetch = generateFetch
	cfg.InputFile = generateFile
	cfg.ReadStdin = generateStdin
	cfg.Mode = mode
	cfg.LessonType = firstNonEmpty(generateLessonType, gen.LessonType, cfg.LessonType)
	cfg.StudentLevel = firstNonEmpty(generateStudentLevel, gen.StudentLevel, cfg.StudentLevel)
	cfg.TargetLanguage = firstNonEmpty(generateTargetLanguage, gen.TargetLanguage, cfg.TargetLanguage)
	cfg.OutputFormat = outputFormat
	cfg.Retry = generateRetry
	cfg.SessionID = generateSessionID
	cfg.Quiet = generateQuiet
	cfg.Verbose = generateVerbose

	switch {
	case generateTimeout != "":
		timeout, err := time.ParseDuration(generateTimeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		cfg.Timeout = timeout
	case gen.Timeout > 0:
		cfg.Timeout = gen.Timeout.Std()
	}

	runner := headless.NewRunner(cfg, a.Manager, orch, a.Bus)
	result, err := runner.Run(cmd.Context(), os.Stdout)

	if result != nil && result.ExitCode != headless.ExitSuccess {
		if outputFormat == headless.OutputText && err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		a.Close()
		os.Exit(int(result.ExitCode))
	}

	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
