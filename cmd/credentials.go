package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kpisync/internal/common"
	"kpisync/internal/security"
	"kpisync/internal/ui"
)

var credentialsEntry string

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the stored service account key",
	Long: `Store a Google service account key in the OS keyring (or an encrypted
file when no keyring is available). It is used when sheets.credentials_file
is not set.`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <key-file>",
	Short: "Store a service account key file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := common.CleanPath(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path) // #nosec G304 - path given on the command line
		if err != nil {
			return fmt.Errorf("failed to read key file: %w", err)
		}

		var key struct {
			Type        string `json:"type"`
			ClientEmail string `json:"client_email"`
		}
		if err := json.Unmarshal(data, &key); err != nil || key.Type != "service_account" {
			return fmt.Errorf("%s is not a service account key", args[0])
		}

		store, err := openKeyring()
		if err != nil {
			return err
		}
		if err := store.Set(credentialsEntry, string(data)); err != nil {
			return err
		}

		where := "encrypted file"
		if store.UsesKeyring() {
			where = "OS keyring"
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Stored key for %s in the %s as %q", key.ClientEmail, where, credentialsEntry))
		return nil
	},
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the stored service account key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openKeyring()
		if err != nil {
			return err
		}
		if err := store.Delete(credentialsEntry); err != nil {
			return err
		}
		ui.ShowSuccess(cmd.OutOrStdout(), fmt.Sprintf("Deleted %q", credentialsEntry))
		return nil
	},
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openKeyring()
		if err != nil {
			return err
		}
		names, err := store.List()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	credentialsCmd.PersistentFlags().StringVar(&credentialsEntry, "name", security.DefaultEntry, "Keyring entry name")
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsDeleteCmd, credentialsListCmd)
	rootCmd.AddCommand(credentialsCmd)
}
