package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/TranTop2806/speedrun-challenge-5/publish"
	"github.com/TranTop2806/speedrun-challenge-5/publish/contracts/corn"
	"github.com/TranTop2806/speedrun-challenge-5/publish/contracts/corndex"
	"github.com/TranTop2806/speedrun-challenge-5/publish/contracts/lending"
	"github.com/TranTop2806/speedrun-challenge-5/publish/contracts/moveprice"
	"github.com/TranTop2806/speedrun-challenge-5/publish/logging"
	"github.com/TranTop2806/speedrun-challenge-5/publish/orchestrate"
	"github.com/TranTop2806/speedrun-challenge-5/publish/registry"
)

const (
	_ = iota
	exitConfig
	exitPrivateKey
	exitDial
	exitRegistry
	exitRun
	exitReport
)

const (
	keyringService = "corn-deploy"
	localRPCURL    = "http://127.0.0.1:8545"
	// Account #0 of every Hardhat and Anvil node. Never holds real funds.
	localDevKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

type config struct {
	Network        string
	RPCURL         string
	ChainID        int64
	PrivateKey     string
	Keyring        bool
	ArtifactsDir   string
	RegistryDB     string
	GasFeeCap      int64
	GasTipCap      int64
	RPCRate        float64
	TimeoutSeconds int
	ReportFormat   string
	MetricsFile    string
	LoggingType    string
	LogLevel       string
}

// exitError carries the process exit code of a failure class.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func main() {
	includeEnv()

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		exitErr(fail(exitConfig, err))
	}
	if err := logging.Initialize(cfg.LoggingType, cfg.LogLevel); err != nil {
		exitErr(fail(exitConfig, err))
	}

	if err := run(cfg, os.Stdout); err != nil {
		exitErr(err)
	}
}

func includeEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintln(fs.Output(), "Usage:")
	fmt.Fprintln(fs.Output(), "  corn-deploy [flags]")
	fmt.Fprintln(fs.Output())
	fmt.Fprintln(fs.Output(), "Core flags/env: --network(NETWORK) --rpc-url(RPC_URL) --private-key(DEPLOYER_PRIVATE_KEY) --artifacts(ARTIFACTS_DIR)")
	fmt.Fprintln(fs.Output())
	fs.PrintDefaults()
}

func parseFlags(args []string) (config, error) {
	cfg := config{
		Network:        envOr("NETWORK", orchestrate.LocalNetworkName),
		RPCURL:         envOr("RPC_URL", ""),
		ChainID:        envInt64("CHAIN_ID", 0),
		PrivateKey:     envOr("DEPLOYER_PRIVATE_KEY", ""),
		ArtifactsDir:   envOr("ARTIFACTS_DIR", "artifacts"),
		RegistryDB:     envOr("REGISTRY_DB", "deployments.db"),
		GasFeeCap:      envInt64("GAS_FEE_CAP", 2_000_000_000),
		GasTipCap:      envInt64("GAS_TIP_CAP", 1_000_000_000),
		RPCRate:        envFloat("RPC_RATE", 0),
		TimeoutSeconds: int(envInt64("TIMEOUT_SECONDS", 600)),
		ReportFormat:   envOr("REPORT_FORMAT", "json"),
		MetricsFile:    envOr("METRICS_FILE", ""),
		LoggingType:    envOr("LOGGING_TYPE", logging.Tint),
		LogLevel:       envOr("LOG_LEVEL", "info"),
	}

	fs := flag.NewFlagSet("corn-deploy", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }
	fs.StringVar(&cfg.Network, "network", cfg.Network, "network name; \"localhost\" selects local bootstrap")
	fs.StringVar(&cfg.RPCURL, "rpc-url", cfg.RPCURL, "RPC URL (default "+localRPCURL+" on localhost)")
	fs.Int64Var(&cfg.ChainID, "chain-id", cfg.ChainID, "chain id (0 = ask the node)")
	fs.StringVar(&cfg.PrivateKey, "private-key", cfg.PrivateKey, "deployer private key hex")
	fs.BoolVar(&cfg.Keyring, "keyring", cfg.Keyring, "read the deployer key from the OS keyring (service "+keyringService+", user = network)")
	fs.StringVar(&cfg.ArtifactsDir, "artifacts", cfg.ArtifactsDir, "compiled artifacts directory (hardhat artifacts/ or foundry out/)")
	fs.StringVar(&cfg.RegistryDB, "registry-db", cfg.RegistryDB, "deployment registry sqlite file")
	fs.Int64Var(&cfg.GasFeeCap, "gas-fee-cap", cfg.GasFeeCap, "EIP-1559 fee cap")
	fs.Int64Var(&cfg.GasTipCap, "gas-tip-cap", cfg.GasTipCap, "EIP-1559 tip cap")
	fs.Float64Var(&cfg.RPCRate, "rpc-rate", cfg.RPCRate, "max RPC requests per second (0 = unlimited)")
	fs.IntVar(&cfg.TimeoutSeconds, "timeout-seconds", cfg.TimeoutSeconds, "timeout in seconds (0 = none)")
	fs.StringVar(&cfg.ReportFormat, "report-format", cfg.ReportFormat, "json|yaml")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write run metrics to this node-exporter textfile")
	fs.StringVar(&cfg.LoggingType, "logging-type", cfg.LoggingType, "logging type: json, text or tint")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logging level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.Network = strings.TrimSpace(cfg.Network)
	if cfg.Network == "" {
		return config{}, errors.New("network is required")
	}
	if cfg.Network == orchestrate.LocalNetworkName {
		if cfg.RPCURL == "" {
			cfg.RPCURL = localRPCURL
		}
		if cfg.PrivateKey == "" && !cfg.Keyring {
			cfg.PrivateKey = localDevKey
		}
	}
	if cfg.RPCURL == "" {
		return config{}, fmt.Errorf("rpc-url is required for network %s", cfg.Network)
	}
	if cfg.ReportFormat != "json" && cfg.ReportFormat != "yaml" {
		return config{}, fmt.Errorf("unknown report format: %s", cfg.ReportFormat)
	}

	return cfg, nil
}

func run(cfg config, out io.Writer) error {
	key, deployerAddr, err := loadKey(cfg)
	if err != nil {
		return fail(exitPrivateKey, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	d, err := publish.NewDeployer(ctx, publish.Config{
		RPCURL:            cfg.RPCURL,
		ChainID:           cfg.ChainID,
		PrivateKey:        key,
		GasFeeCap:         big.NewInt(cfg.GasFeeCap),
		GasTipCap:         big.NewInt(cfg.GasTipCap),
		RequestsPerSecond: cfg.RPCRate,
	})
	if err != nil {
		return fail(exitDial, err)
	}
	defer d.Close()

	db, err := registry.Open(cfg.RegistryDB)
	if err != nil {
		return fail(exitRegistry, err)
	}
	defer db.Close()

	runID := uuid.New()
	log := slog.Default().With("run", runID.String())
	log.Info("starting deployment", "network", cfg.Network, "chain", d.ChainID(), "deployer", deployerAddr.Hex())

	metricsReg := prometheus.NewRegistry()
	orch := &orchestrate.Orchestrator{
		Registry: &registry.Registry{
			Network:   cfg.Network,
			RunID:     runID,
			Chain:     d,
			Artifacts: publish.ArtifactDir{Root: cfg.ArtifactsDir},
			Records:   &registry.Store{DB: db},
			GasLimits: map[string]uint64{
				corn.Name():      corn.ImplGasLimit,
				corndex.Name():   corndex.ImplGasLimit,
				lending.Name():   lending.ImplGasLimit,
				moveprice.Name(): moveprice.ImplGasLimit,
			},
			Logger: log,
		},
		Handles:  handles{d},
		Network:  orchestrate.NewNetwork(cfg.Network, d),
		Balances: d,
		Deployer: deployerAddr,
		RunID:    runID.String(),
		Metrics:  orchestrate.NewMetrics(metricsReg),
		Logger:   log,
	}

	rep, runErr := orch.Run(ctx)

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, metricsReg); err != nil {
			log.Warn("could not write metrics file", "path", cfg.MetricsFile, "error", err)
		}
	}
	if err := writeReport(out, cfg.ReportFormat, rep); err != nil {
		return fail(exitReport, err)
	}
	if runErr != nil {
		return fail(exitRun, runErr)
	}
	return nil
}

type handles struct {
	d *publish.Deployer
}

func (h handles) Token(addr common.Address) orchestrate.Token {
	return corn.NewHandle(h.d, addr)
}

func (h handles) Exchange(addr common.Address) orchestrate.Exchange {
	return corndex.NewHandle(h.d, addr)
}

func loadKey(cfg config) (*ecdsa.PrivateKey, common.Address, error) {
	secret := cfg.PrivateKey
	if cfg.Keyring {
		v, err := keyring.Get(keyringService, cfg.Network)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("read keyring %s/%s: %w", keyringService, cfg.Network, err)
		}
		secret = v
	}
	if strings.TrimSpace(secret) == "" {
		return nil, common.Address{}, fmt.Errorf("private-key is required for network %s", cfg.Network)
	}
	return publish.ParsePrivateKey(secret)
}

func writeReport(w io.Writer, format string, rep orchestrate.Report) error {
	var (
		blob []byte
		err  error
	)
	switch format {
	case "yaml":
		blob, err = yaml.Marshal(rep)
	default:
		blob, err = json.MarshalIndent(rep, "", "  ")
		blob = append(blob, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = w.Write(blob)
	return err
}

func envOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func exitErr(err error) {
	os.Exit(printErr(os.Stderr, err))
}

// printErr writes err once and returns the process exit code for it.
func printErr(w io.Writer, err error) int {
	code := 1
	var e *exitError
	if errors.As(err, &e) {
		code = e.code
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return code
}
