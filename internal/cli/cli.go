// Package cli wires the kiosk's components behind the exitscan command tree:
//
//	exitscan run                 # offline cache, scan workflow and HTTP surface
//	exitscan cache install       # precache the manifest once
//	exitscan cache activate      # prune every cache but the current version
//	exitscan cache status        # list cache stores in the backend
//	exitscan verify <payload>    # submit one payload and print the result
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"exitscan/internal/config"
	"exitscan/internal/logging"
	"exitscan/internal/model"
	"exitscan/internal/verify"
)

type options struct {
	cfg      *config.AppConfig
	manifest string
	origin   string
}

// BuildCLI returns the root command. Configuration comes from the environment
// (and .env); flags override individual values.
func BuildCLI() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "exitscan",
		Short:         "School exit control kiosk",
		Long:          "exitscan reads student QR codes, verifies them against the school backend and shows the result on the kiosk display.",
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if opts.manifest != "" {
				cfg.Cache.ManifestPath = opts.manifest
			}
			if opts.origin != "" {
				cfg.Scan.Origin = strings.TrimRight(opts.origin, "/")
			}
			logging.Init(cfg.LogLevel, cfg.LogFormat, cfg.Location())
			opts.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.manifest, "manifest", "m", "", "offline cache manifest (overrides CACHE_MANIFEST)")
	rootCmd.PersistentFlags().StringVar(&opts.origin, "origin", "", "backend origin (overrides KIOSK_ORIGIN)")

	rootCmd.AddCommand(buildRunCommand(opts))
	rootCmd.AddCommand(buildCacheCommand(opts))
	rootCmd.AddCommand(buildVerifyCommand(opts))

	return rootCmd
}

func buildRunCommand(opts *options) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the kiosk",
		Long:  "Install and activate the offline cache, start the camera and serve the kiosk HTTP surface until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				opts.cfg.Port = port
			}
			return runKiosk(cmd.Context(), opts.cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "HTTP port (overrides PORT)")
	return cmd
}

func buildCacheCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the offline asset cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Fetch every manifest URL into the current cache version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(cmd.Context(), opts.cfg, nil)
			if err != nil {
				return err
			}
			if err := cache.Install(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%d urls)\n", cache.Version(), len(cache.URLs()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activate",
		Short: "Delete every cache version except the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(cmd.Context(), opts.cfg, nil)
			if err != nil {
				return err
			}
			deleted, err := cache.Activate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active %s\n", cache.Version())
			for _, name := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List cache versions present in the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(cmd.Context(), opts.cfg, nil)
			if err != nil {
				return err
			}
			names, err := cache.Keys(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "current %s\n", cache.Version())
			for _, name := range names {
				marker := " "
				if name == cache.Version() {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	})

	return cmd
}

func buildVerifyCommand(opts *options) *cobra.Command {
	var door string

	cmd := &cobra.Command{
		Use:   "verify <payload>",
		Short: "Submit one QR payload and print the verification result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.ParsePayload(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", verify.MsgInvalidPayload, err)
			}
			if door == "" {
				door = opts.cfg.Scan.Door
			}

			res := newVerifier(opts.cfg, nil).Verify(cmd.Context(), model.ScanRequest{StudentID: id, Door: door})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("rejected: %s", res.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&door, "door", "d", "", "door sent with the scan (overrides KIOSK_DOOR)")
	return cmd
}
