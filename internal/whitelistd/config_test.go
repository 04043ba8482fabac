package whitelistd

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/whitelist/pkg/whitelist"
)

func TestConfigValidateAppliesDefaults(test *testing.T) {
	test.Parallel()
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.HTTPListenAddr != defaultHTTPListenAddr || cfg.GRPCListenAddr != defaultGRPCListenAddr {
		test.Fatalf("unexpected listen addrs %q %q", cfg.HTTPListenAddr, cfg.GRPCListenAddr)
	}
	if cfg.StorageDriver != DriverFile || cfg.DataDir != defaultDataDir {
		test.Fatalf("unexpected storage %q %q", cfg.StorageDriver, cfg.DataDir)
	}
	if cfg.CoinCost != whitelist.DefaultCoinCost || cfg.DefaultTTLHours != whitelist.DefaultTTLHours {
		test.Fatalf("unexpected pricing %d %d", cfg.CoinCost, cfg.DefaultTTLHours)
	}
	if cfg.RequestTimeout != defaultRequestTimeout || cfg.SweepInterval != 0 {
		test.Fatalf("unexpected timings %s %s", cfg.RequestTimeout, cfg.SweepInterval)
	}
	if cfg.SessionEnabled() {
		test.Fatalf("session must be disabled without a signing key")
	}
}

func TestConfigValidateRejectsBadValues(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "unknown driver", cfg: Config{StorageDriver: "mongo"}, wantErr: "unsupported storage driver"},
		{name: "postgres without dsn", cfg: Config{StorageDriver: DriverPostgres}, wantErr: "storage dsn is required"},
		{name: "pgx without dsn", cfg: Config{StorageDriver: DriverPGX}, wantErr: "storage dsn is required"},
		{name: "redis without dsn", cfg: Config{StorageDriver: DriverRedis}, wantErr: "storage dsn is required"},
		{name: "negative cost", cfg: Config{CoinCost: -5}, wantErr: "coin cost"},
		{name: "hours above limit", cfg: Config{DefaultTTLHours: whitelist.MaxTTLHours + 1}, wantErr: "default hours"},
		{name: "negative sweep", cfg: Config{SweepInterval: -time.Second}, wantErr: "sweep interval"},
		{name: "negative rate", cfg: Config{CreditRateLimit: -1}, wantErr: "credit rate limit"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			err := testCase.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				test.Fatalf("expected error containing %q, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestConfigValidateNormalizesDriver(test *testing.T) {
	test.Parallel()
	cfg := Config{StorageDriver: " SQLite ", SessionSigningKey: "secret"}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.StorageDriver != DriverSQLite {
		test.Fatalf("expected sqlite driver, got %q", cfg.StorageDriver)
	}
	if !cfg.SessionEnabled() || cfg.SessionIssuer != defaultSessionIssuer || cfg.SessionCookieName != defaultSessionCookie {
		test.Fatalf("unexpected session settings %+v", cfg)
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: []string{}},
		{raw: "  ", want: []string{}},
		{raw: "http://a.test", want: []string{"http://a.test"}},
		{raw: " http://a.test , ,http://b.test ", want: []string{"http://a.test", "http://b.test"}},
	}
	for _, testCase := range testCases {
		if got := ParseAllowedOrigins(testCase.raw); !reflect.DeepEqual(got, testCase.want) {
			test.Fatalf("ParseAllowedOrigins(%q) = %v, want %v", testCase.raw, got, testCase.want)
		}
	}
}
