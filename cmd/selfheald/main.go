// Command selfheald runs the self-healing control core as a daemon: it
// monitors a set of components over HTTP probes, trips circuit breakers,
// executes recovery plans against a control plane, and tunes its own
// parameters with a genetic optimizer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yunusovt983/selfheal/api"
	"github.com/yunusovt983/selfheal/config/adaptive"
	"github.com/yunusovt983/selfheal/coordination"
	"github.com/yunusovt983/selfheal/healing"
	"github.com/yunusovt983/selfheal/healing/circuitbreaker"
	"github.com/yunusovt983/selfheal/healing/recovery"
	"github.com/yunusovt983/selfheal/monitoring"
	"github.com/yunusovt983/selfheal/optimizer/genetic"
	"github.com/yunusovt983/selfheal/storage"
)

var log = logging.Logger("selfheal/daemon")

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "selfheald",
		Short: "Self-healing control core daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadBootstrap(configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), v)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "bootstrap config file")
	return cmd
}

func loadBootstrap(configFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("listen", ":8720")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "selfheal.db")
	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("monitor.fetch_timeout", 10*time.Second)
	v.SetDefault("monitor.max_consecutive_misses", 3)
	v.SetDefault("optimizer.enabled", true)
	v.SetDefault("optimizer.interval", 5*time.Minute)
	v.SetDefault("coordinator.url", "")
	v.SetDefault("control.url", "")

	v.SetEnvPrefix("SELFHEAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read bootstrap config: %w", err)
		}
	}
	return v, nil
}

func run(ctx context.Context, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, v.GetString("store.backend"), v.GetString("store.path"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	source := monitoring.NewHTTPProbeSource(v.GetStringMapString("monitor.components"), nil)

	monitorConfig := monitoring.DefaultMonitorConfig()
	monitorConfig.Interval = v.GetDuration("monitor.interval")
	monitorConfig.FetchTimeout = v.GetDuration("monitor.fetch_timeout")
	monitorConfig.MaxConsecutiveMisses = v.GetInt("monitor.max_consecutive_misses")

	monitor := monitoring.NewMonitor(monitorConfig, source)
	for _, name := range source.Components() {
		monitor.Register(name)
	}

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())

	var executor recovery.Executor
	if controlURL := v.GetString("control.url"); controlURL != "" {
		executor = recovery.NewHTTPExecutor(controlURL, nil)
	} else {
		executor = recovery.ExecutorFunc(func(ctx context.Context, component string, strategy recovery.Strategy) error {
			log.Warnf("no control plane configured, %s for %s is a no-op", strategy, component)
			return nil
		})
	}

	recoveryMgr := recovery.NewManager(recovery.DefaultManagerConfig(), executor)
	recoveryMgr.SetPersister(store)
	if err := loadPlans(v, recoveryMgr); err != nil {
		return err
	}

	configStore, err := adaptive.NewStore(adaptive.DefaultStoreConfig(), tunableDefaults(), tunableConstraints())
	if err != nil {
		return fmt.Errorf("build config store: %w", err)
	}
	configStore.SetPersister(store)

	var optimizer *genetic.Optimizer
	if v.GetBool("optimizer.enabled") {
		optConfig := genetic.DefaultConfig()
		optConfig.EvolveInterval = v.GetDuration("optimizer.interval")
		optimizer, err = genetic.NewOptimizer(optConfig, tunableTemplate(), controlLoopFitness)
		if err != nil {
			return fmt.Errorf("build optimizer: %w", err)
		}
		optimizer.SetSnapshotStore(store)

		if generation, snapshot, ok, err := store.LoadPopulationSnapshot(ctx); err != nil {
			log.Warnf("population snapshot load failed, starting fresh: %v", err)
		} else if ok {
			if err := optimizer.RestorePopulation(generation, snapshot); err != nil {
				log.Warnf("population snapshot rejected, starting fresh: %v", err)
			} else {
				log.Infof("restored optimizer population at generation %d", generation)
			}
		}
	}

	var coordinator coordination.Coordinator = coordination.NopCoordinator{}
	if url := v.GetString("coordinator.url"); url != "" {
		coordinator = coordination.NewHTTPCoordinator(url, nil)
	}

	manager := healing.NewManager(healing.DefaultManagerConfig(),
		monitor, breakers, recoveryMgr, configStore, optimizer, coordinator)

	applyTunedParameters(configStore, monitor, recoveryMgr)

	if err := manager.Start(); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			log.Errorf("manager shutdown: %v", err)
		}
	}()

	server := api.NewServer(v.GetString("listen"), manager)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func loadPlans(v *viper.Viper, mgr *recovery.Manager) error {
	var plans []recovery.Plan
	if err := v.UnmarshalKey("recovery.plans", &plans); err != nil {
		return fmt.Errorf("decode recovery plans: %w", err)
	}

	if len(plans) == 0 {
		plans = defaultPlans()
	}
	for _, plan := range plans {
		if err := mgr.AddPlan(plan); err != nil {
			return fmt.Errorf("recovery plan %q: %w", plan.FailureType, err)
		}
	}
	return nil
}

func defaultPlans() []recovery.Plan {
	return []recovery.Plan{
		{
			FailureType: "component_critical",
			Primary:     recovery.StrategyReconfigure,
			Fallbacks:   []recovery.Strategy{recovery.StrategyRestart},
			MaxRetries:  2,
			RetryDelay:  5 * time.Second,
		},
		{
			FailureType: "component_failed",
			Primary:     recovery.StrategyRestart,
			Fallbacks:   []recovery.Strategy{recovery.StrategyScaleResources, recovery.StrategyFallback},
			MaxRetries:  2,
			RetryDelay:  10 * time.Second,
		},
	}
}
