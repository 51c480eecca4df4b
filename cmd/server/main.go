package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"matchbook/api/grpcserver"
	"matchbook/config"
	"matchbook/infra/logging"
	"matchbook/jobs/broadcaster"
	"matchbook/service"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	log = log.With(zap.String("service", cfg.ServiceName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Instruments ----------------

	dir, err := service.LoadDirectory(ctx, cfg.Engine, log)
	if err != nil {
		log.Fatal("instrument directory", zap.Error(err))
	}

	// ---------------- Service ----------------

	svc, err := service.New(cfg, dir, log)
	if err != nil {
		log.Fatal("engine service init failed", zap.Error(err))
	}
	svc.Start(ctx)

	var jobs sync.WaitGroup

	// ---------------- Broadcaster ----------------

	if cfg.Kafka.Enabled {
		producer, err := broadcaster.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatal("kafka producer init failed", zap.Error(err))
		}
		bc := broadcaster.New(svc.Outbox(), producer, cfg.Kafka.TradeTopic,
			broadcaster.WithInterval(cfg.Kafka.PollInterval),
			broadcaster.WithMaxRetries(cfg.Kafka.MaxRetries),
			broadcaster.WithLogger(log.Named("broadcaster")),
		)
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			bc.Run(ctx)
			if err := bc.Close(); err != nil {
				log.Warn("kafka producer close", zap.Error(err))
			}
		}()
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatal("listen failed", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}

	grpcSrv := grpcserver.NewGRPCServer(grpcserver.NewServer(svc, log.Named("grpc")))
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		grpcSrv.GracefulStop()
	}()

	log.Info("matchbook running", zap.String("addr", lis.Addr().String()))
	if err := grpcSrv.Serve(lis); err != nil {
		log.Error("gRPC server exited", zap.Error(err))
		stop()
	}

	jobs.Wait()
	if err := svc.Close(); err != nil {
		log.Error("engine service close", zap.Error(err))
	}
}
