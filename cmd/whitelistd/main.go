package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/whitelist/internal/whitelistd"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagHTTPListenAddr  = "http-listen-addr"
	flagGRPCListenAddr  = "grpc-listen-addr"
	flagStorageDriver   = "storage-driver"
	flagStorageDSN      = "storage-dsn"
	flagDataDir         = "data-dir"
	flagRedisKeyPrefix  = "redis-key-prefix"
	flagCoinCost        = "coin-cost"
	flagDefaultHours    = "default-hours"
	flagSweepInterval   = "sweep-interval"
	flagRequestTimeout  = "request-timeout"
	flagAllowedOrigins  = "allowed-origins"
	flagCreditRateLimit = "credit-rate-limit"
	flagCreditRateBurst = "credit-rate-burst"
	flagJWTSigningKey   = "jwt-signing-key"
	flagJWTIssuer       = "jwt-issuer"
	flagJWTCookieName   = "jwt-cookie-name"
	envPrefix           = "WHITELISTD"
	envPort             = "PORT"
)

var configFlags = []string{
	flagHTTPListenAddr, flagGRPCListenAddr, flagStorageDriver, flagStorageDSN, flagDataDir,
	flagRedisKeyPrefix, flagCoinCost, flagDefaultHours, flagSweepInterval, flagRequestTimeout,
	flagAllowedOrigins, flagCreditRateLimit, flagCreditRateBurst, flagJWTSigningKey, flagJWTIssuer,
	flagJWTCookieName,
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "whitelistd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &whitelistd.Config{}
	cmd := &cobra.Command{
		Use:           "whitelistd",
		Short:         "Region-partitioned UID whitelist with coin-gated writes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagHTTPListenAddr, "", "HTTP listen address (default :9046, or :$PORT)")
	flags.String(flagGRPCListenAddr, "", "gRPC listen address (default :7046)")
	flags.String(flagStorageDriver, whitelistd.DriverFile, "storage driver: file, sqlite, postgres, pgx or redis")
	flags.String(flagStorageDSN, "", "storage connection string for sqlite, postgres, pgx and redis")
	flags.String(flagDataDir, "", "directory for JSON documents and the default sqlite file (default data)")
	flags.String(flagRedisKeyPrefix, "", "prefix for redis hash keys")
	flags.Int64(flagCoinCost, 0, "coins charged per whitelist add (default 100)")
	flags.Int64(flagDefaultHours, 0, "whitelist duration when a request omits hours (default 24)")
	flags.Duration(flagSweepInterval, 0, "interval between expiry sweeps; 0 disables the sweeper")
	flags.Duration(flagRequestTimeout, 0, "per-request storage timeout (default 5s)")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins; empty allows all")
	flags.Float64(flagCreditRateLimit, 0, "coin credits per second allowed per user (default 1)")
	flags.Int(flagCreditRateBurst, 0, "coin credit burst per user (default 5)")
	flags.String(flagJWTSigningKey, "", "TAuth JWT signing key; empty falls back to the X-User-ID header")
	flags.String(flagJWTIssuer, "", "expected JWT issuer (default tauth)")
	flags.String(flagJWTCookieName, "", "JWT cookie name (default app_session)")

	cmd.AddCommand(newServeCommand(cfg), newCleanupCommand(cfg), newBootstrapCommand(cfg))
	return cmd
}

func newServeCommand(cfg *whitelistd.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return whitelistd.Run(ctx, *cfg)
		},
	}
}

func newCleanupCommand(cfg *whitelistd.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired entries from every region",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := whitelistd.RunCleanup(cmd.Context(), *cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", removed)
			return err
		},
	}
}

func newBootstrapCommand(cfg *whitelistd.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create every region partition and the accounts collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := whitelistd.RunBootstrap(cmd.Context(), *cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "storage initialized")
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command, cfg *whitelistd.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range configFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}
	if err := v.BindEnv(envPort, envPort); err != nil {
		return err
	}

	cfg.HTTPListenAddr = strings.TrimSpace(v.GetString(flagHTTPListenAddr))
	if cfg.HTTPListenAddr == "" {
		if port := strings.TrimSpace(v.GetString(envPort)); port != "" {
			cfg.HTTPListenAddr = ":" + port
		}
	}
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.StorageDriver = strings.TrimSpace(v.GetString(flagStorageDriver))
	cfg.StorageDSN = strings.TrimSpace(v.GetString(flagStorageDSN))
	cfg.DataDir = strings.TrimSpace(v.GetString(flagDataDir))
	cfg.RedisKeyPrefix = strings.TrimSpace(v.GetString(flagRedisKeyPrefix))
	cfg.CoinCost = v.GetInt64(flagCoinCost)
	cfg.DefaultTTLHours = v.GetInt64(flagDefaultHours)
	cfg.SweepInterval = v.GetDuration(flagSweepInterval)
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	cfg.AllowedOrigins = whitelistd.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.CreditRateLimit = v.GetFloat64(flagCreditRateLimit)
	cfg.CreditRateBurst = v.GetInt(flagCreditRateBurst)
	cfg.SessionSigningKey = v.GetString(flagJWTSigningKey)
	cfg.SessionIssuer = strings.TrimSpace(v.GetString(flagJWTIssuer))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagJWTCookieName))

	return cfg.Validate()
}
