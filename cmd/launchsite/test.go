package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dripdrop/launchsite/internal/app"
	"github.com/dripdrop/launchsite/internal/config"
	"github.com/dripdrop/launchsite/internal/validate"
)

var (
	testSendTo        string
	testSendFirstName string
	testSendLastName  string
	testSendTimeout   int
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Testing commands",
}

var testSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a test welcome email through the configured provider",
	RunE:  runTestSend,
}

func init() {
	testSendCmd.Flags().StringVar(&testSendTo, "to", "", "Recipient email address (required)")
	testSendCmd.Flags().StringVar(&testSendFirstName, "first-name", "", "Recipient first name")
	testSendCmd.Flags().StringVar(&testSendLastName, "last-name", "", "Recipient last name")
	testSendCmd.Flags().IntVar(&testSendTimeout, "timeout", 30, "Send timeout in seconds")
	testSendCmd.MarkFlagRequired("to")

	testCmd.AddCommand(testSendCmd)
	rootCmd.AddCommand(testCmd)
}

func runTestSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	email := validate.NormalizeEmail(testSendTo)
	if !validate.Email(email) {
		return fmt.Errorf("invalid recipient address %q", testSendTo)
	}

	if !cfg.SignupConfigured() {
		return fmt.Errorf("provider %s is not configured, run `launchsite config env`", cfg.Signup.Provider)
	}

	// Quiet logger so the command output stays readable
	cfg.Logging.Level = "error"
	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	fmt.Printf("Sending test welcome email...\n")
	fmt.Printf("  Provider: %s\n", cfg.Signup.Provider)
	fmt.Printf("  To: %s\n", email)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(testSendTimeout)*time.Second)
	defer cancel()

	result := application.Service().Signup(ctx, email, testSendFirstName, testSendLastName)

	fmt.Printf("\nContact: success=%v message=%q\n", result.ContactAdded.Success, result.ContactAdded.Message)
	fmt.Printf("Email:   success=%v message=%q\n", result.EmailSent.Success, result.EmailSent.Message)

	if !result.OverallSuccess {
		return fmt.Errorf("test send failed")
	}

	fmt.Println("\nTest send succeeded")
	return nil
}
