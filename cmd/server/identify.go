package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"reconcile/internal/contact/models"
	"reconcile/pkg/requestcontext"
)

var (
	identifyEmail string
	identifyPhone string
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Resolve one email/phone pair against the configured store and print the identity",
	RunE:  runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	identifyCmd.Flags().StringVar(&identifyEmail, "email", "", "contact email")
	identifyCmd.Flags().StringVar(&identifyPhone, "phone", "", "contact phone number")
}

func runIdentify(cmd *cobra.Command, _ []string) error {
	ctx := requestcontext.WithTime(cmd.Context(), time.Now().UTC())
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	req := models.IdentifyRequest{}
	if cmd.Flags().Changed("email") {
		req.Email = &identifyEmail
	}
	if cmd.Flags().Changed("phone") {
		req.PhoneNumber = &identifyPhone
	}

	result, err := a.service.Identify(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"outcome": result.Outcome.Kind,
		"contact": result.Identity,
	})
}
