// Command metrics-gateway serves normalized pod and node metrics from a Prometheus-compatible backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/tosin2013/metrics-gateway/internal/integrations"
	"github.com/tosin2013/metrics-gateway/internal/rbac"
	v1 "github.com/tosin2013/metrics-gateway/pkg/api/v1"
	"github.com/tosin2013/metrics-gateway/pkg/config"
	"github.com/tosin2013/metrics-gateway/pkg/gateway"
	"github.com/tosin2013/metrics-gateway/pkg/middleware"
)

// Version is set at build time with -ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	log.WithFields(logrus.Fields{
		"version":            Version,
		"port":               cfg.Port,
		"metrics_port":       cfg.MetricsPort,
		"prometheus_url":     cfg.Prometheus.URL,
		"measurement_window": cfg.MeasurementWindow.String(),
		"inventory_cache":    cfg.InventoryCacheTTL.String(),
	}).Info("Starting metrics gateway")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Metrics gateway exited with error")
	}
	log.Info("Metrics gateway stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	clientset, err := newKubernetesClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifyPermissions(ctx, clientset, cfg.Namespace, log)

	catalog, err := gateway.LoadCatalogFile(cfg.QueryCatalogFile)
	if err != nil {
		return err
	}

	promClient, err := integrations.NewPrometheusClient(integrations.PrometheusClientConfig{
		BaseURL:            cfg.Prometheus.URL,
		ConnectTimeout:     cfg.Prometheus.ConnectTimeout,
		BearerTokenFile:    cfg.Prometheus.BearerTokenFile,
		InsecureSkipVerify: cfg.Prometheus.InsecureSkipVerify,
	}, log)
	if err != nil {
		return err
	}
	defer promClient.Close()

	var inventory integrations.NodeInventory = integrations.NewKubeNodeInventory(clientset, log)
	if cfg.UseInventoryCache() {
		inventory = integrations.NewCachedNodeInventory(inventory, cfg.InventoryCacheTTL)
	}
	resolver := integrations.NewNodeResolver(inventory, log)

	gw := gateway.New(catalog, promClient, resolver, log)

	router := mux.NewRouter()
	router.Use(middleware.RequestLogger(log), middleware.Recovery(log))
	router.HandleFunc("/health", healthHandler(promClient)).Methods("GET")
	v1.NewMetricsHandler(gw, catalog, cfg.MeasurementWindowSeconds(), log).RegisterRoutes(router)

	var handler http.Handler = router
	if cfg.EnableCORS {
		handler = middleware.CORS(cfg.CORSAllowOrigin)(router)
	}

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go serve(apiServer, "API", log, errCh)
	go serve(metricsServer, "metrics", log, errCh)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case serveErr = <-errCh:
		log.WithError(serveErr).Error("Server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var shutdownErrs []string
	for _, srv := range []*http.Server{apiServer, metricsServer} {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			shutdownErrs = append(shutdownErrs, serr.Error())
		}
	}
	if len(shutdownErrs) > 0 {
		return fmt.Errorf("graceful shutdown failed: %s", strings.Join(shutdownErrs, "; "))
	}
	return serveErr
}

func serve(srv *http.Server, name string, log *logrus.Logger, errCh chan<- error) {
	log.WithField("addr", srv.Addr).Infof("Starting %s server", name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server: %w", name, err)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// newKubernetesClient uses KUBECONFIG when set, otherwise the in-cluster service account
func newKubernetesClient(cfg *config.Config) (kubernetes.Interface, error) {
	var (
		restConfig *rest.Config
		err        error
	)
	if cfg.Kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}

	restConfig.QPS = cfg.KubernetesQPS
	restConfig.Burst = cfg.KubernetesBurst
	restConfig.UserAgent = "metrics-gateway/" + Version

	return kubernetes.NewForConfig(restConfig)
}

// verifyPermissions logs missing RBAC at startup; node metrics fail at request time without it
func verifyPermissions(ctx context.Context, clientset kubernetes.Interface, namespace string, log *logrus.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results, err := rbac.NewVerifier(clientset, namespace, log).VerifyRequired(checkCtx)
	if err != nil {
		log.WithError(err).Warn("RBAC preflight failed; node metrics will be unavailable")
		if len(results) > 0 {
			log.Warn(rbac.GenerateReport(results))
		}
		return
	}
	log.Info("RBAC preflight passed")
}

func healthHandler(promClient *integrations.PrometheusClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":                "healthy",
			"version":               Version,
			"prometheus_url":        promClient.BaseURL(),
			"prometheus_configured": promClient.IsAvailable(),
			"timestamp":             time.Now().UTC(),
		})
	}
}
