package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/credentials"
	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/internal/telemetry"
	"github.com/marmos91/yeep/pkg/api"
	"github.com/marmos91/yeep/pkg/config"
	"github.com/marmos91/yeep/pkg/session"
	"github.com/marmos91/yeep/pkg/yeep"
)

var (
	keepaliveInterval   time.Duration
	keepaliveStatusPort int
)

var keepaliveCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Keep the stored session alive",
	Long: `Hold the session of the current context open and renew it until
interrupted.

Bearer tokens are renewed shortly before they expire and the new token is
written back to the credential store, so other yeepctl invocations keep
working. Cookie sessions are refreshed every --interval.

The command exits when the session is logged out, including by
'yeepctl logout' from another terminal.

With metrics enabled in the configuration, or --status-port set, a status
server exposes /health, /health/session and /metrics.

Examples:
  # Keep the current session alive
  yeepctl keepalive

  # Refresh a cookie session every minute
  yeepctl keepalive --interval 1m

  # Serve session health and metrics on port 9464
  yeepctl keepalive --status-port 9464`,
	RunE: runKeepalive,
}

func init() {
	keepaliveCmd.Flags().DurationVar(&keepaliveInterval, "interval", 5*time.Minute, "Refresh interval for cookie sessions")
	keepaliveCmd.Flags().IntVar(&keepaliveStatusPort, "status-port", 0, "Serve the status endpoints on this port")
}

func runKeepalive(cmd *cobra.Command, args []string) error {
	if keepaliveInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.TracingConfig(cmdutil.Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is done by the time this runs
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(cfg.ProfilingConfig(cmdutil.Version))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s, err := cmdutil.OpenSession(ctx, cfg, yeep.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer s.Close()

	k := &keeper{
		session:  s,
		interval: keepaliveInterval,
		out:      cmd.OutOrStdout(),
	}
	if port := statusPort(cfg); port != 0 {
		k.status = api.NewServer(api.APIConfig{Port: port}, s.Client.Session(), reg)
	}
	return k.run(ctx)
}

// statusPort returns the port of the status server, or 0 when it is off.
func statusPort(cfg *config.Config) int {
	if keepaliveStatusPort != 0 {
		return keepaliveStatusPort
	}
	if cfg.Metrics.Enabled {
		return cfg.Metrics.Port
	}
	return 0
}

// keeper renews one stored session until it ends.
type keeper struct {
	session  *cmdutil.Session
	interval time.Duration
	status   *api.Server
	out      io.Writer
}

func (k *keeper) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := k.session.Client.Session()
	events := make(chan session.Event, 16)
	unsubscribe := manager.Subscribe(func(e session.Event) {
		select {
		case events <- e:
		default:
			logger.Warn("Dropped session event", logger.Event(string(e.Type)))
		}
	})
	defer unsubscribe()

	errChan := make(chan error, 2)
	if k.status != nil {
		if err := k.status.Listen(); err != nil {
			return err
		}
		go func() {
			if err := k.status.Start(ctx); err != nil {
				errChan <- err
			}
		}()
		fmt.Fprintf(k.out, "Status server listening on %s\n", k.status.Addr())
	}

	changed := make(chan struct{}, 1)
	go func() {
		err := credentials.Watch(ctx, k.session.Store.ConfigPath(), func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		if err != nil {
			errChan <- err
		}
	}()

	var tick <-chan time.Time
	if k.session.Client.Config().AuthType == session.AuthCookie {
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()
		tick = ticker.C
		k.refresh(ctx)
	}

	fmt.Fprintf(k.out, "Keeping session alive for context %s (Ctrl+C to stop)\n", k.session.ContextName)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(k.out, "Stopped")
			return nil

		case err := <-errChan:
			return err

		case <-tick:
			k.refresh(ctx)

		case <-changed:
			if k.loggedOutElsewhere() {
				fmt.Fprintln(k.out, "Session was logged out, stopping")
				return nil
			}

		case e := <-events:
			switch e.Type {
			case session.EventRefresh:
				if err := k.session.SaveRenewed(); err != nil {
					if errors.Is(err, cmdutil.ErrLoggedOut) {
						fmt.Fprintln(k.out, "Session was logged out, stopping")
						return nil
					}
					logger.Warn("Failed to save renewed session", logger.Err(err))
					continue
				}
				if e.State.Kind == session.StateBearer {
					fmt.Fprintf(k.out, "Session renewed, expires %s\n", e.State.ExpiresAt.Local().Format(time.RFC3339))
				} else {
					fmt.Fprintln(k.out, "Session renewed")
				}
			case session.EventError:
				logger.Warn("Session refresh failed",
					logger.Err(e.Err), logger.Attempt(e.Attempt), logger.Delay(e.Retry))
			case session.EventLogout:
				fmt.Fprintln(k.out, "Session ended")
				return nil
			}
		}
	}
}

// refresh renews a cookie session. The resulting event saves it.
func (k *keeper) refresh(ctx context.Context) {
	err := k.session.Client.Session().Refresh(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logger.Warn("Session refresh failed", logger.Err(err))
	fmt.Fprintf(k.out, "Refresh failed: %s\n", cmdutil.DescribeError(err))
}

// loggedOutElsewhere reports whether the stored context no longer holds a
// session. A file caught mid-write is ignored; the next write triggers
// another check.
func (k *keeper) loggedOutElsewhere() bool {
	store, err := credentials.NewStoreAt(k.session.Store.ConfigPath())
	if err != nil {
		logger.Debug("Could not read credential store", logger.Err(err))
		return false
	}
	stored, err := store.GetContext(k.session.ContextName)
	if err != nil {
		return errors.Is(err, credentials.ErrContextNotFound)
	}
	return !stored.HasSession()
}
