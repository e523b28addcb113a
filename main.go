package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ethfolio/pkg/alchemy"
	"ethfolio/pkg/config"
	"ethfolio/pkg/models"
	"ethfolio/pkg/portfolio"
	"ethfolio/pkg/server"
	"ethfolio/pkg/tui"
	"ethfolio/pkg/wallet"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version should be set during build
var Version = "dev"

const logFileName = ".ethfolio.log"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	initFlag := flag.Bool("init", false, "Write a default configuration file and exit")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	addressFlag := flag.String("address", "", "Address to view on startup")
	networkFlag := flag.String("network", "", "Network to view on startup")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("ethfolio version %s\n", Version)
		os.Exit(0)
	}

	path, err := config.GetConfigPath(*configFlag)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *initFlag {
		if err := config.SaveConfig(config.Default(), path); err != nil {
			fmt.Printf("Failed to write config to %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := config.LoadEnv(&cfg, ".env"); err != nil {
		fmt.Printf("Error loading environment: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Printf("Invalid config %s: %v\n", path, err)
		os.Exit(1)
	}

	network := cfg.Network
	if *networkFlag != "" {
		if network, err = models.ParseNetwork(*networkFlag); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Network = network
	}

	opts := alchemy.Options{
		APIKey:   cfg.Env.AlchemyAPIKey,
		Endpoint: cfg.Env.AlchemyEndpoint,
		Timeout:  cfg.RequestTimeout(),
	}

	if *testFlag || *testLongFlag {
		report := selfTest(alchemy.NewDialer(opts, nil), cfg, path, *jsonFlag)
		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		}
		if report.Failed {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := cfg.Env.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Println("Set it in the environment or in a .env file next to the binary.")
		os.Exit(1)
	}

	if cfg.LogFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.LogFile = filepath.Join(home, logFileName)
		}
	}
	logger, closeLog, err := newLogger(cfg, *serverFlag)
	if err != nil {
		fmt.Printf("Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	dialer := alchemy.NewDialer(opts, logger)

	o := portfolio.New(portfolio.DialerFunc(func(ctx context.Context, n models.Network) (portfolio.DataSource, error) {
		c, err := dialer.Dial(ctx, n)
		if err != nil {
			return nil, err
		}
		return c, nil
	}), portfolio.Options{
		BalanceDecimals:     int32(cfg.BalanceDecimals),
		MetadataConcurrency: cfg.MetadataConcurrency,
	}, logger)
	defer o.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := wallet.NewBridge(logger)
	connector := wallet.NewConnector(bridge, logger)
	release := connector.Start(ctx)
	defer release()

	srv := server.NewServer(o, bridge, connector, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	initial := *addressFlag
	if initial == "" {
		initial = cfg.DefaultAddress
	}
	if initial != "" {
		if err := o.View(initial, network); err != nil {
			logger.Warn("Initial address rejected", zap.String("address", initial), zap.Error(err))
		}
	}

	if *serverFlag {
		fmt.Printf("Running in server mode on port %d...\n", *portFlag)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(*portFlag) }()
		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("Server stopped", zap.Error(err))
				os.Exit(1)
			}
		case <-ctx.Done():
			logger.Info("Shutting down")
		}
		return
	}

	go func() {
		if err := srv.Start(*portFlag); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	if err := tui.Start(tui.Options{
		Orchestrator: o,
		Connector:    connector,
		Config:       cfg,
		WalletURL:    fmt.Sprintf("http://localhost:%d/wallet", *portFlag),
	}, Version); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes JSON logs to stdout in server mode and to the configured
// log file otherwise, so the dashboard owns the terminal.
func newLogger(cfg config.Config, serverMode bool) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Env.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if !serverMode {
		if cfg.LogFile == "" {
			return zap.NewNop(), closeFn, nil
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(out), level)
	logger := zap.New(core)
	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}

// selfTest dials every network and checks that it answers eth_chainId.
func selfTest(dialer *alchemy.Dialer, cfg config.Config, path string, quiet bool) models.TestReport {
	report := models.TestReport{
		ConfigPath:    path,
		APIKeyPresent: cfg.Env.AlchemyAPIKey != "",
	}
	say := func(format string, args ...interface{}) {
		if !quiet {
			fmt.Printf(format, args...)
		}
	}

	say("Testing configuration at: %s\n", path)
	if err := cfg.Env.Validate(); err != nil {
		say("Error: %v\n", err)
		report.Failed = true
		return report
	}

	for _, n := range models.Networks() {
		say("  %s ... ", n.Label())
		result := probe(dialer, n, cfg.RequestTimeout())
		if result.Status != "ok" {
			report.Failed = true
			say("Failed: %s\n", result.Error)
		} else {
			say("OK (ChainID: %d, %s)\n", result.ChainID, result.Latency.Round(time.Millisecond))
		}
		report.Networks = append(report.Networks, result)
	}
	return report
}

func probe(dialer *alchemy.Dialer, n models.Network, timeout time.Duration) models.NetworkResult {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := models.NetworkResult{Network: string(n)}
	start := time.Now()
	client, err := dialer.Dial(ctx, n)
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		return result
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	result.Latency = time.Since(start)
	if err != nil {
		result.Status = "error"
		result.Error = fmt.Sprintf("Failed to get ChainID: %v", err)
		return result
	}
	result.Status = "ok"
	result.ChainID = id.Int64()
	return result
}
