package leader

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"k8s.io/client-go/kubernetes"

	"github.com/jensholdgaard/art-auction/internal/config"
)

func TestIdentity_FromPodName(t *testing.T) {
	t.Setenv("POD_NAME", "auctiond-abc123")
	if got := identity(); got != "auctiond-abc123" {
		t.Errorf("identity() = %q, want %q", got, "auctiond-abc123")
	}
}

func TestIdentity_Hostname(t *testing.T) {
	t.Setenv("POD_NAME", "")
	host, err := os.Hostname()
	if err != nil {
		t.Skip("cannot get hostname")
	}
	if got := identity(); got != host {
		t.Errorf("identity() = %q, want %q", got, host)
	}
}

func TestValidate(t *testing.T) {
	valid := config.Default().LeaderElection
	tests := []struct {
		name    string
		mutate  func(c *config.LeaderElectionConfig)
		wantErr bool
	}{
		{"defaults", func(*config.LeaderElectionConfig) {}, false},
		{"missing lease name", func(c *config.LeaderElectionConfig) { c.LeaseName = "" }, true},
		{"missing namespace", func(c *config.LeaderElectionConfig) { c.LeaseNamespace = "" }, true},
		{"renew exceeds lease", func(c *config.LeaderElectionConfig) { c.RenewDeadline = c.LeaseDuration }, true},
		{"zero retry", func(c *config.LeaderElectionConfig) { c.RetryPeriod = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := validate(cfg); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_ClientError(t *testing.T) {
	orig := ClientFactory
	ClientFactory = func() (kubernetes.Interface, error) {
		return nil, errors.New("no cluster")
	}
	t.Cleanup(func() { ClientFactory = orig })

	err := Run(context.Background(), config.Default().LeaderElection, slog.Default(),
		func(context.Context) { t.Error("must not lead without a client") },
		func() {},
	)
	if err == nil {
		t.Fatal("expected client error")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := config.Default().LeaderElection
	cfg.RetryPeriod = -time.Second
	if err := Run(context.Background(), cfg, slog.Default(), func(context.Context) {}, func() {}); err == nil {
		t.Fatal("expected config error")
	}
}
