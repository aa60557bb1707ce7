package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"broker-rpc/calculator"
	"broker-rpc/client"
	"broker-rpc/codec"
	"broker-rpc/config"
	"broker-rpc/loadbalance"
	"broker-rpc/logging"
	"broker-rpc/middleware"
	"broker-rpc/registry"
	"broker-rpc/server"
	"broker-rpc/transport"

	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (optional)")
	mode := flag.String("mode", "serve", "serve|call")
	target := flag.String("target", "", "module to call; empty resolves through etcd")
	a := flag.Float64("a", 1, "first operand")
	b := flag.Float64("b", 2, "second operand")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	logger, err := logging.Setup(cfg.Log)
	if err != nil {
		fatalf("setup logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker, err := transport.DialRedis(cfg.Redis.URL, cfg.Redis.PoolSize)
	if err != nil {
		logger.Fatal("dial redis", zap.Error(err))
	}
	defer broker.Close()

	var reg *registry.EtcdRegistry
	if len(cfg.Etcd.Endpoints) > 0 {
		if reg, err = registry.NewEtcdRegistry(cfg.Etcd.Endpoints, logger); err != nil {
			logger.Fatal("connect etcd", zap.Error(err))
		}
		defer reg.Close()
	}

	switch *mode {
	case "serve":
		err = serve(ctx, cfg, broker, reg, logger)
	case "call":
		err = call(ctx, cfg, broker, reg, logger, *target, *a, *b)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("calculator failed", zap.Error(err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, broker transport.Broker, reg *registry.EtcdRegistry, logger *zap.Logger) error {
	c := codec.GetCodec(cfg.CodecType())

	svr, err := server.NewServer(cfg.Module, broker, cfg.Workers)
	if err != nil {
		return err
	}
	svr.SetLogger(logger)
	svr.SetCodec(c)
	if reg != nil {
		svr.SetRegistry(reg, cfg.Etcd.TTL)
	}
	for _, mw := range middlewares(cfg, logger) {
		svr.Use(mw)
	}

	obj, err := calculator.New(c)
	if err != nil {
		return err
	}
	if err := svr.Register(obj); err != nil {
		return err
	}
	return svr.Run(ctx)
}

// middlewares returns the dispatch chain enabled by cfg, outermost first.
func middlewares(cfg *config.Config, logger *zap.Logger) []middleware.Middleware {
	mws := []middleware.Middleware{middleware.LoggingMiddleware(logger)}
	if cfg.RateLimit.RPS > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.HandlerTimeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(cfg.HandlerTimeout))
	}
	return mws
}

func call(ctx context.Context, cfg *config.Config, broker transport.Broker, reg *registry.EtcdRegistry, logger *zap.Logger, target string, a, b float64) error {
	cli := client.NewClient(broker)
	cli.SetLogger(logger)
	cli.SetCodec(codec.GetCodec(cfg.CodecType()))
	cli.SetTimeout(cfg.Client.Timeout)
	if reg != nil {
		bal, err := loadbalance.New(cfg.Client.Balancer)
		if err != nil {
			return err
		}
		cli.SetResolver(reg, bal)
	} else if target == "" {
		target = cfg.Module
	}

	stub := calculator.NewStub(cli, target)
	sum, err := stub.Add(ctx, a, b)
	fmt.Printf("add(%v, %v) => %v, %v\n", a, b, sum, err)
	q, err := stub.Divide(ctx, a, b)
	fmt.Printf("divide(%v, %v) => %v, %v\n", a, b, q, err)
	greeting, err := stub.Hello(ctx, "broker-rpc")
	fmt.Printf("hello => %q, %v\n", greeting, err)
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
