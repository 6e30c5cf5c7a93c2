package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmdip/keymaster/pkg/config"
	"github.com/openmdip/keymaster/pkg/credential"
	"github.com/openmdip/keymaster/pkg/identity"
	"github.com/openmdip/keymaster/pkg/registry"
	"github.com/openmdip/keymaster/pkg/wallet"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "keymaster",
	Short: "A self-sovereign identity wallet and credential engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (optional; without it, built-in defaults and environment overrides apply)")
	rootCmd.AddCommand(showCmd, createIdCmd, listCmd, useCmd, resolveDidCmd, encryptCmd, decryptCmd)
}

// app bundles the wallet-backed dependencies every subcommand needs.
type app struct {
	Wallet   *wallet.Wallet
	Registry *registry.Client
	Identity *identity.Manager
	Engine   *credential.Engine
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	w, err := wallet.Load(cfg.DataDir.WalletFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	client, err := registry.NewClient(registry.Config{
		URL:            cfg.Registry.URL,
		Name:           cfg.Registry.Name,
		TimeoutSeconds: cfg.Registry.TimeoutSeconds,
		CachePath:      cfg.Registry.CachePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build registry client: %w", err)
	}

	idm := identity.New(w, client)
	return &app{
		Wallet:   w,
		Registry: client,
		Identity: idm,
		Engine:   credential.New(idm, client),
	}, nil
}
