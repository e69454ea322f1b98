package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"audiolink/internal/core"
	"audiolink/internal/store"
	"audiolink/pkg/streamlink"
)

const maskedPrefix = 4

var (
	credentialReveal bool
	credentialVerify string
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Inspect or refresh the cached SoundCloud client id",
}

var credentialDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scrape a fresh client id and overwrite the cached one",
	Args:  cobra.NoArgs,
	RunE:  runCredentialDiscover,
}

var credentialShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached client id",
	Args:  cobra.NoArgs,
	RunE:  runCredentialShow,
}

var credentialForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Drop the cached client id and scan ledger",
	Args:  cobra.NoArgs,
	RunE:  runCredentialForget,
}

func init() {
	credentialShowCmd.Flags().BoolVar(&credentialReveal, "reveal", false, "print the full client id")
	credentialDiscoverCmd.Flags().BoolVar(&credentialReveal, "reveal", false, "print the full client id")
	credentialDiscoverCmd.Flags().StringVar(&credentialVerify, "verify", "", "SoundCloud URL resolved with the new client id")

	credentialCmd.AddCommand(credentialDiscoverCmd, credentialShowCmd, credentialForgetCmd)
}

func openStore(ctx context.Context) (store.CredentialStore, error) {
	if err := config.Validate(); err != nil && !errors.Is(err, core.ErrNoProviderEnabled) {
		return nil, err
	}
	credStore, err := store.Open(ctx, config.Store.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", config.Store.Driver, err)
	}
	return credStore, nil
}

func runCredentialDiscover(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	credStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	_, cached, err := credStore.Get(ctx, streamlink.CredentialStoreKey)
	if err != nil {
		_ = credStore.Close()
		return err
	}

	cfg := *config
	cfg.SoundCloud.Enabled = true
	cfg.YouTube.Enabled = false

	svc, err := core.NewServiceWithStore(ctx, &cfg, credStore, logger.Named("service"), nil)
	if err != nil {
		_ = credStore.Close()
		return err
	}
	defer func() {
		if closeErr := svc.Close(ctx); closeErr != nil {
			logger.Debug("Failed to close service", zap.Error(closeErr))
		}
	}()

	// Without a cached id the service already scraped one while starting.
	clientID := svc.Credential()
	if cached || clientID == "" {
		clientID, err = svc.Rediscover(ctx)
		if err != nil {
			if cached {
				return fmt.Errorf("discovery failed, cached client id kept: %w", err)
			}
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), displayCredential(clientID))

	if credentialVerify != "" {
		song, err := svc.Resolve(ctx, credentialVerify)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "verified: %s\n", songSummary(song))
	}
	return nil
}

func runCredentialShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	credStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer credStore.Close()

	clientID, found, err := credStore.Get(ctx, streamlink.CredentialStoreKey)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(cmd.OutOrStdout(), "no cached client id")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), displayCredential(clientID))
	return nil
}

func runCredentialForget(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	credStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer credStore.Close()

	for _, key := range []string{streamlink.CredentialStoreKey, core.ScannedScriptsKey} {
		if err := credStore.Delete(ctx, key); err != nil {
			return err
		}
	}
	logger.Info("Forgot cached SoundCloud credential", zap.String("store", config.Store.Driver))
	fmt.Fprintln(cmd.OutOrStdout(), "cached client id removed")
	return nil
}

func displayCredential(clientID string) string {
	if credentialReveal || len(clientID) <= maskedPrefix {
		return clientID
	}
	return clientID[:maskedPrefix] + "…"
}
