package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/openstack-archive/poppy-sub002/cdn"
	cdnmock "github.com/openstack-archive/poppy-sub002/cdn/provider/mock"
	cdnmemory "github.com/openstack-archive/poppy-sub002/cdn/storage/memory"
	"github.com/openstack-archive/poppy-sub002/cert"
	certmock "github.com/openstack-archive/poppy-sub002/cert/backend/mock"
	certmemory "github.com/openstack-archive/poppy-sub002/cert/storage/memory"
	"github.com/openstack-archive/poppy-sub002/conductor"
	"github.com/openstack-archive/poppy-sub002/distributedtask"
	"github.com/openstack-archive/poppy-sub002/flow"
	"github.com/openstack-archive/poppy-sub002/jobboard"
	"github.com/openstack-archive/poppy-sub002/jobboard/kv"
	kvmemory "github.com/openstack-archive/poppy-sub002/jobboard/kv/memory"
	"github.com/openstack-archive/poppy-sub002/jobboard/kv/zookeeper"
	"github.com/openstack-archive/poppy-sub002/persistence"
	storememory "github.com/openstack-archive/poppy-sub002/persistence/store/memory"
	"github.com/openstack-archive/poppy-sub002/persistence/store/postgres"
	"github.com/openstack-archive/poppy-sub002/service"
	"github.com/openstack-archive/poppy-sub002/tracing/tracer"
)

var (
	appName = "poppy-conductor"
	appSha  = "populated-at-link-time"
	logger  *logrus.Entry
)

func main() {
	host, _ := os.Hostname()
	rootLogger := logrus.New()
	rootLogger.SetFormatter(new(logrus.JSONFormatter))
	logger = rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"sha":  appSha,
		"host": host,
	})

	if err := makeApp().Run(os.Args); err != nil {
		logger.WithField("err", err).Error("shutting down due to error")
		_ = os.Stderr.Sync()
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "board-uri",
			Value:  "in-memory://",
			EnvVar: "BOARD_URI",
			Usage:  "The URI for connecting to the job-board coordination backend (supported URIs: in-memory://, zk://host1:2181,...,hostN:2181)",
		},
		cli.StringFlag{
			Name:   "board-path",
			Value:  "/poppy/board",
			EnvVar: "BOARD_PATH",
			Usage:  "The coordination-backend path the job board lives under",
		},
		cli.StringFlag{
			Name:   "store-uri",
			Value:  "in-memory://",
			EnvVar: "STORE_URI",
			Usage:  "The URI for connecting to the logbook/flow-detail store (supported URIs: in-memory://, postgresql://user@host:5432/poppy?sslmode=disable)",
		},
		cli.StringFlag{
			Name:   "providers",
			Value:  "mock",
			EnvVar: "CDN_PROVIDERS",
			Usage:  "A comma-delimited list of the CDN provider drivers to fan service operations out to",
		},
		cli.StringFlag{
			Name:   "dns-driver",
			Value:  "mock",
			EnvVar: "DNS_DRIVER",
			Usage:  "The DNS driver that maps customer domains to provider access URLs",
		},
		cli.StringFlag{
			Name:   "edge-property",
			Value:  "san.poppy-edge.net",
			EnvVar: "EDGE_PROPERTY",
			Usage:  "The edge property carrying the shared SAN certificate hostnames",
		},
		cli.IntFlag{
			Name:   "num-workers",
			Value:  1,
			EnvVar: "NUM_WORKERS",
			Usage:  "The number of conductor workers to run in this process",
		},
		cli.IntFlag{
			Name:   "metrics-port",
			Value:  9090,
			EnvVar: "METRICS_PORT",
			Usage:  "The port for exposing prometheus metrics",
		},
		cli.IntFlag{
			Name:   "pprof-port",
			Value:  6060,
			EnvVar: "PPROF_PORT",
			Usage:  "The port for exposing pprof endpoints",
		},
	}
	app.Action = runMain
	return app
}

func runMain(appCtx *cli.Context) error {
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	tracers := new(tracer.Provider)
	defer func() { _ = tracers.Close() }()

	store, err := getStore(appCtx.String("store-uri"))
	if err != nil {
		return err
	}

	kvClient, err := getKVClient(appCtx.String("board-uri"))
	if err != nil {
		return err
	}
	board, err := jobboard.NewKVJobBoard(jobboard.Config{
		Client: kvClient,
		Store:  store,
		Path:   appCtx.String("board-path"),
		Logger: logger.WithField("component", "job_board"),
	})
	if err != nil {
		return err
	}
	defer func() { _ = board.Close() }()

	flows := flow.NewRegistry()
	metrics := conductor.NewMetrics(prometheus.DefaultRegisterer)

	jaegerTracer, err := tracers.Tracer(appName)
	if err != nil {
		logger.WithField("err", err).Warn("could not set up tracer; spans will not be captured")
		jaegerTracer = opentracing.NoopTracer{}
	}

	taskClient, err := distributedtask.NewClient(distributedtask.Config{
		Board:   board,
		Store:   store,
		Flows:   flows,
		Metrics: metrics,
		Tracer:  jaegerTracer,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if err := registerServiceFlows(appCtx, flows); err != nil {
		return err
	}
	if err := registerCertFlows(appCtx, flows, taskClient); err != nil {
		return err
	}

	var svcGroup service.Group
	for i := 0; i < appCtx.Int("num-workers"); i++ {
		worker, err := taskClient.TaskWorker(fmt.Sprintf("conductor-%d", i))
		if err != nil {
			return err
		}
		svcGroup = append(svcGroup, worker)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		select {
		case s := <-sigCh:
			logger.WithField("signal", s.String()).Info("shutting down due to signal")
			cancelFn()
		case <-ctx.Done():
		}
	}()

	if err := serveMetrics(ctx, appCtx.Int("metrics-port")); err != nil {
		return err
	}
	if err := servePprof(ctx, appCtx.Int("pprof-port")); err != nil {
		return err
	}

	return svcGroup.Run(ctx)
}

// registerServiceFlows assembles the CDN driver set and installs the
// service lifecycle flows.
func registerServiceFlows(appCtx *cli.Context, flows *flow.Registry) error {
	drivers := cdn.NewDriverRegistry()
	if err := drivers.RegisterProvider("mock", func(string) (cdn.ProviderAdapter, error) {
		return cdnmock.NewProvider("mock"), nil
	}); err != nil {
		return err
	}
	if err := drivers.RegisterDNS("mock", func(string) (cdn.DNSAdapter, error) {
		return cdnmock.NewDNS(), nil
	}); err != nil {
		return err
	}
	if err := drivers.RegisterStorage("in-memory", func(string) (cdn.StorageAdapter, error) {
		return cdnmemory.NewInMemoryStorage(), nil
	}); err != nil {
		return err
	}

	providers := make(map[string]cdn.ProviderAdapter)
	for _, name := range strings.Split(appCtx.String("providers"), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		adapter, err := drivers.BuildProvider(name, "")
		if err != nil {
			return err
		}
		providers[name] = adapter
	}

	dnsAdapter, err := drivers.BuildDNS(appCtx.String("dns-driver"), "")
	if err != nil {
		return err
	}
	cdnStorage, err := drivers.BuildStorage("in-memory", "")
	if err != nil {
		return err
	}

	orc, err := cdn.NewOrchestrator(cdn.Config{
		Providers: providers,
		DNS:       dnsAdapter,
		Storage:   cdnStorage,
		Logger:    logger.WithField("component", "orchestrator"),
	})
	if err != nil {
		return err
	}
	return orc.RegisterFlows(flows)
}

// registerCertFlows installs the SAN certificate provisioning flows.
func registerCertFlows(appCtx *cli.Context, flows *flow.Registry, poster cert.JobPoster) error {
	certFlows, err := cert.NewFlows(cert.Deps{
		Backend:  certmock.NewBackend("mock", 3),
		Storage:  certmemory.NewInMemoryStorage(),
		Queue:    certmemory.NewInMemoryQueue(),
		Poster:   poster,
		Property: appCtx.String("edge-property"),
		Logger:   logger.WithField("component", "cert_flows"),
	})
	if err != nil {
		return err
	}
	return certFlows.Register(flows)
}

func serveMetrics(ctx context.Context, port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.WithField("port", port).Info("exposing prometheus metrics")
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		_ = srv.Serve(listener)
	}()
	return nil
}

func servePprof(ctx context.Context, port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()
	go func() {
		logger.WithField("port", port).Info("exposing pprof endpoints")
		_ = http.Serve(listener, nil)
	}()
	return nil
}

// getStore returns a logbook/flow-detail store matching the provided URI.
func getStore(storeURI string) (persistence.Store, error) {
	if storeURI == "in-memory://" {
		logger.Info("using in-memory logbook store")
		return storememory.NewInMemoryStore(), nil
	} else if strings.HasPrefix(storeURI, "postgresql://") {
		logger.Info("using postgres logbook store")
		return postgres.NewPostgresStore(storeURI)
	}
	return nil, xerrors.Errorf("unsupported logbook store URI: %s", storeURI)
}

// getKVClient returns a coordination-backend client matching the provided
// URI.
func getKVClient(boardURI string) (kv.Client, error) {
	if boardURI == "in-memory://" {
		logger.Info("using in-memory coordination backend")
		return kvmemory.NewInMemoryClient(), nil
	} else if strings.HasPrefix(boardURI, "zk://") {
		logger.Info("using zookeeper coordination backend")
		servers := strings.Split(strings.TrimPrefix(boardURI, "zk://"), ",")
		return zookeeper.NewZookeeperClient(servers, 10*time.Second)
	}
	return nil, xerrors.Errorf("unsupported coordination backend URI: %s", boardURI)
}
