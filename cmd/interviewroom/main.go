package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"interviewroom/internal/app"
	"interviewroom/internal/auth"
	"interviewroom/internal/config"
	"interviewroom/internal/database"
	pkgdatabase "interviewroom/pkg/database"
	"interviewroom/pkg/types"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "interviewroom",
		Short:         "Live AI interview orchestration server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("INTERVIEWROOM_CONFIG_FILE"), "YAML configuration file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	root.AddCommand(newTokenCmd(&configPath))
	root.AddCommand(newContextCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the interview gateway and API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

// serve runs until ctx is cancelled, then shuts down gracefully
func serve(ctx context.Context, cfg *config.Config) error {
	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	log.Printf("Shutdown requested, stopping gracefully")

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func newMigrateCmd(configPath *string) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return migrate(cmd.OutOrStdout(), cfg, status)
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "list pending migrations without applying them")
	return cmd
}

func migrate(out io.Writer, cfg *config.Config, statusOnly bool) error {
	db, err := database.NewManager(app.DatabaseConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	migrations := pkgdatabase.NewMigrationManager(db.GetDB(), cfg.Database.MigrationsPath)
	pending, err := migrations.Pending()
	if err != nil {
		return err
	}
	if statusOnly {
		if len(pending) == 0 {
			_, _ = fmt.Fprintln(out, "schema up to date")
			return nil
		}
		for _, m := range pending {
			_, _ = fmt.Fprintf(out, "pending %s %s\n", m.Version, m.Description)
		}
		return nil
	}

	if err := migrations.ApplyMigrations(); err != nil {
		return err
	}
	if err := pkgdatabase.NewSchemaValidator(db.GetDB()).Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "applied %d migrations\n", len(pending))
	return nil
}

func newTokenCmd(configPath *string) *cobra.Command {
	var interviewID, candidateID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a candidate invite token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return mintToken(cmd.OutOrStdout(), cfg, interviewID, candidateID, ttl)
		},
	}
	cmd.Flags().StringVar(&interviewID, "interview", "", "interview id")
	cmd.Flags().StringVar(&candidateID, "candidate", "", "candidate id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("interview")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func mintToken(out io.Writer, cfg *config.Config, interviewID, candidateID string, ttl time.Duration) error {
	if !types.IsValidID(interviewID) || !types.IsValidID(candidateID) {
		return types.ErrInvalidID
	}
	invites, err := auth.NewInvites(cfg.Auth.InviteSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	token, err := invites.Mint(interviewID, candidateID, ttl)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, token)
	return nil
}

// contextFile is the on-disk shape accepted by "context load"
type contextFile struct {
	InterviewID    string   `yaml:"interview_id"`
	CandidateID    string   `yaml:"candidate_id"`
	CandidateName  string   `yaml:"candidate_name"`
	JobTitle       string   `yaml:"job_title"`
	JobDescription string   `yaml:"job_description"`
	CVText         string   `yaml:"cv_text"`
	Rubric         []string `yaml:"rubric"`
	Language       string   `yaml:"language"`
	VoiceID        string   `yaml:"voice_id"`
}

func newContextCmd(configPath *string) *cobra.Command {
	contextCmd := &cobra.Command{Use: "context", Short: "Manage interview job and candidate material"}

	loadCmd := &cobra.Command{
		Use:   "load <file.yaml>",
		Short: "Store the context for one interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return loadContext(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}
	contextCmd.AddCommand(loadCmd)
	return contextCmd
}

func loadContext(ctx context.Context, out io.Writer, cfg *config.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file contextFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	db, err := database.NewManager(app.DatabaseConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	ic := types.InterviewContext{
		InterviewID:    file.InterviewID,
		CandidateID:    file.CandidateID,
		CandidateName:  file.CandidateName,
		JobTitle:       file.JobTitle,
		JobDescription: file.JobDescription,
		CVText:         file.CVText,
		Rubric:         file.Rubric,
		Language:       file.Language,
		VoiceID:        file.VoiceID,
	}
	if err := db.SaveInterviewContext(ctx, ic); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "stored context for interview %s\n", ic.InterviewID)
	return nil
}
