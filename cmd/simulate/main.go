package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"matchbook/config"
	"matchbook/infra/logging"
	"matchbook/jobs/brokers"
	"matchbook/service"
)

func main() {
	var (
		configFile string
		text       bool
	)
	flag.StringVar(&configFile, "config-file", "", "Specify config file path; built-in defaults when empty")
	flag.BoolVar(&text, "text", true, "Print [ORDER]/[TRADE] lines to stdout")
	brokerCount := flag.Int("brokers", 0, "Override simulation.brokers")
	orders := flag.Int("orders", 0, "Override simulation.orders_per_broker")
	maxDelay := flag.Duration("max-delay", -1, "Override simulation.max_delay")
	maxArrival := flag.Duration("max-arrival", -1, "Override simulation.max_arrival")
	seed := flag.Uint64("seed", 0, "Override simulation.seed")
	flag.Parse()

	cfg := config.Default()
	if configFile != "" || os.Getenv("CONFIG_FILE") != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			panic(err)
		}
	}
	cfg.Journal.Text = text

	sim := &cfg.Simulation
	if *brokerCount > 0 {
		sim.Brokers = *brokerCount
		sim.MinBrokers = 0
	}
	if *orders > 0 {
		sim.OrdersPerBroker = *orders
	}
	if *maxDelay >= 0 {
		sim.MaxDelay = *maxDelay
	}
	if *maxArrival >= 0 {
		sim.MaxArrival = *maxArrival
	}
	if *seed != 0 {
		sim.Seed = *seed
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := service.LoadDirectory(ctx, cfg.Engine, log)
	if err != nil {
		log.Fatal("instrument directory", zap.Error(err))
	}

	svc, err := service.New(cfg, dir, log)
	if err != nil {
		log.Fatal("engine service init failed", zap.Error(err))
	}
	svc.Start(ctx)

	driver := brokers.New(svc, brokers.Config{
		MinBrokers:      sim.MinBrokers,
		Brokers:         sim.Brokers,
		OrdersPerBroker: sim.OrdersPerBroker,
		RandomOrders:    sim.RandomOrders,
		Universe:        cfg.Engine.Universe,
		Ladder:          svc.Engine().Ladder(),
		MaxDelay:        sim.MaxDelay,
		MaxArrival:      sim.MaxArrival,
		Seed:            sim.Seed,
	}, log.Named("brokers"))
	driver.Run(ctx)

	st := svc.Stats()
	log.Info("engine stats",
		zap.Uint64("books", st.Books),
		zap.Uint64("contention_retries", st.ContentionRetries),
		zap.Uint64("sink_errors", st.SinkErrors),
		zap.Uint64("retired", st.Retired),
		zap.Uint64("recycled", st.Recycled),
	)
	if err := svc.Close(); err != nil {
		log.Error("engine service close", zap.Error(err))
	}
}
