package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"corpusprep/internal/app"
	"corpusprep/internal/config"
	"corpusprep/internal/language"
	"corpusprep/internal/logger"
	"corpusprep/internal/transcriber"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "corpusprep",
		Short:         "Build a speech-synthesis corpus from raw recordings",
		Long:          "corpusprep separates vocals, transcribes speech and slices recordings into per-utterance clips with a pipe-delimited annotation file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, configFlag)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (yaml, toml or json)")
	addPipelineFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCommand(&configFlag))
	rootCmd.AddCommand(newShortsCommand(&configFlag))
	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newModelsCommand())

	return rootCmd
}

func addPipelineFlags(flags *pflag.FlagSet) {
	flags.String("input-dir", "raw_data", "Directory with raw audio and video files")
	flags.String("output-dir", ".", "Parent directory of the speaker directory")
	flags.String("speaker", "speaker", "Speaker name; clips are written to <output-dir>/<speaker> (wiped on every run)")
	flags.Int("sample-rate", 0, "Target sample rate of clips, 0 keeps the original")
	flags.Int("bit-depth", 0, "Target bit depth of clips (16, 24 or 32), 0 keeps the original")
	flags.String("languages", string(language.PresetCJE), "Language preset: CJE, CJ or C")
	flags.Bool("tag-languages", true, "Wrap transcript text in language tags")
	flags.String("recognition-model-size", "small", "Whisper model size")
	flags.String("mode", config.ModeLong, "Pipeline mode: long (separate, transcribe and slice) or shorts (convert and transcribe whole clips)")
	flags.String("annotation-path", "long_character_anno.txt", "Annotation file to write in long mode")
	flags.String("shorts-annotation-path", "", "Annotation file to write in shorts mode (default <speaker>_text_train.txt)")
	flags.String("work-dir", "work", "Directory for denoised tracks and scratch output")
	flags.Bool("keep-denoised", true, "Keep denoised tracks after processing")
	flags.String("device", "auto", "Inference device: auto, cpu or cuda")
	flags.String("separator-command", "demucs", "Vocal separation executable")
	flags.String("transcriber-command", "whisper", "Speech recognition executable")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-file", "", "Also write JSON logs to this rotating file")
	flags.Bool("log-development", false, "Human readable console logs")
	flags.Bool("log-benchmark", false, "Log every stage timing as it completes")
}

func newRunCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the input directory (default action)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, *configFlag)
		},
	}
}

func newShortsCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "shorts",
		Short: "Convert and transcribe pre-cut short WAV clips without separation or slicing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Flags().Set("mode", config.ModeShorts); err != nil {
				return err
			}
			return runPipeline(cmd, *configFlag)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "corpusprep %s\n", version)
		},
	}
}

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List recognition model sizes and language presets",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Recognition models:")
			for _, m := range transcriber.AvailableModels() {
				fmt.Fprintf(out, "  %s\n", m)
			}
			fmt.Fprintln(out, "Language presets:")
			for _, p := range language.Presets() {
				tokens, err := language.ParsePreset(string(p))
				if err != nil {
					continue
				}
				fmt.Fprintf(out, "  %s:", p)
				for _, tok := range tokens.Tokens() {
					fmt.Fprintf(out, " %s=%s (%s)", tok.Code, tok.Tag, language.DisplayName(tok.Code))
				}
				fmt.Fprintln(out)
			}
		},
	}
}

func runPipeline(cmd *cobra.Command, configFile string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logger.NewLoggerWithOptions(logger.Options{
		Level:       cfg.GetLogLevel(),
		File:        cfg.GetLogFile(),
		Development: cfg.GetLogDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("corpusprep starting up",
		zap.String("component", "main"),
		zap.String("version", version))

	application, err := app.NewApplication(cfg, log, app.WithSummaryWriter(cmd.OutOrStdout()))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Warn("error during shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := application.Run(ctx)
	if err != nil {
		log.Error("run failed", zap.Error(err), zap.String("component", "main"))
		return err
	}

	log.Info("corpusprep finished",
		zap.String("component", "main"),
		zap.Int("records", report.Records),
		zap.String("annotation", report.AnnotationPath))
	if report.Interrupted {
		return context.Canceled
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
