package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/opscart/k8s-gap-auditor/pkg/config"
	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"github.com/opscart/k8s-gap-auditor/pkg/reporter"
	"github.com/opscart/k8s-gap-auditor/pkg/server"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	// Global flags
	configFile    string
	preset        string
	kubeconfig    string
	prometheusURL string
	timeWindow    string
	failureMode   string
	outputFormat  string

	// Command flags
	namespaces      []string
	workloadName    string
	workloadType    string
	cpuThreshold    float64
	memoryThreshold float64
	failOnGaps      bool
	listenAddr      string

	cfg *config.Config
	log logr.Logger
)

// errGapsFound makes `audit --fail-on-gaps` exit with status 2
var errGapsFound = errors.New("containers exceed the gap thresholds")

func main() {
	cfg = config.NewConfig()
	log = klog.NewKlogr()

	rootCmd := &cobra.Command{
		Use:               "gap-audit",
		Short:             "Kubernetes resource gap auditor",
		Long:              `Compare the CPU and memory requests of Deployments and StatefulSets with recommendations derived from Prometheus usage history.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML configuration file")
	pf.StringVar(&preset, "preset", "", "Sizing preset: dev, production, critical")
	pf.StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (in-cluster config is tried first when empty)")
	pf.StringVar(&prometheusURL, "prometheus-url", "", "Prometheus base URL")
	pf.StringVar(&timeWindow, "window", "", "Usage history window, e.g. 14d, 48h, 2w")
	pf.StringVar(&failureMode, "failure-mode", "", "fail-fast or continue")
	pf.StringVarP(&outputFormat, "output", "o", "table", "Output format: json, table, csv")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit API over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from LISTEN_ADDR or :8080)")

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Report containers whose requests diverge from the recommendation",
		Args:  cobra.NoArgs,
		RunE:  runAudit,
	}
	auditCmd.Flags().StringSliceVarP(&namespaces, "namespace", "n", nil, "Namespaces to audit (all when empty)")
	auditCmd.Flags().Float64Var(&cpuThreshold, "cpu-threshold", 0, "CPU gap threshold in percent (default from CPU_GAP_THRESHOLD)")
	auditCmd.Flags().Float64Var(&memoryThreshold, "memory-threshold", 0, "Memory gap threshold in percent (default from MEMORY_GAP_THRESHOLD)")
	auditCmd.Flags().BoolVar(&failOnGaps, "fail-on-gaps", false, "Exit with status 2 when any container exceeds a threshold")

	namespacesCmd := &cobra.Command{
		Use:   "namespaces",
		Short: "List namespaces",
		Args:  cobra.NoArgs,
		RunE:  runNamespaces,
	}

	workloadsCmd := &cobra.Command{
		Use:   "workloads",
		Short: "List workloads with their current resources",
		Args:  cobra.NoArgs,
		RunE:  runWorkloads,
	}
	workloadsCmd.Flags().StringSliceVarP(&namespaces, "namespace", "n", nil, "Namespace")
	_ = workloadsCmd.MarkFlagRequired("namespace")

	recommendCmd := &cobra.Command{
		Use:   "recommend",
		Short: "Show the recommendation for one workload",
		Args:  cobra.NoArgs,
		RunE:  runRecommend,
	}
	recommendCmd.Flags().StringSliceVarP(&namespaces, "namespace", "n", nil, "Namespace")
	recommendCmd.Flags().StringVar(&workloadName, "workload", "", "Workload name")
	recommendCmd.Flags().StringVar(&workloadType, "type", "deployment", "Workload type: deployment or statefulset")
	_ = recommendCmd.MarkFlagRequired("namespace")
	_ = recommendCmd.MarkFlagRequired("workload")

	rootCmd.AddCommand(serveCmd, auditCmd, namespacesCmd, workloadsCmd, recommendCmd)

	if err := rootCmd.Execute(); err != nil {
		klog.Flush()
		if errors.Is(err, errGapsFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	klog.Flush()
}

// loadConfig layers the configuration: environment, then the config file,
// then the preset, then explicitly set flags
func loadConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return err
		}
	}
	if err := cfg.ApplyPreset(preset); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("kubeconfig") {
		cfg.Kubeconfig = kubeconfig
	}
	if flags.Changed("prometheus-url") {
		cfg.PrometheusURL = prometheusURL
	}
	if flags.Changed("window") {
		cfg.TimeWindow = timeWindow
	}
	if flags.Changed("failure-mode") {
		cfg.FailureMode = failureMode
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = listenAddr
	}
	if flags.Changed("cpu-threshold") {
		cfg.CPUGapThreshold = cpuThreshold
	}
	if flags.Changed("memory-threshold") {
		cfg.MemoryGapThreshold = memoryThreshold
	}
	return cfg.Validate()
}

func newReporter() (*reporter.Reporter, error) {
	format, err := reporter.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return reporter.New(format), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.checkConnectivity(ctx); err != nil {
		return err
	}
	go a.purgeExpired(ctx)

	srv := server.New(a.auditor, server.Options{
		Threshold:  cfg.GapThreshold(),
		TimeWindow: cfg.TimeWindow,
		Gatherer:   a.registry,
		Checks:     a.readinessChecks(),
	}, log.WithName("server"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	rep, err := newReporter()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.checkConnectivity(ctx); err != nil {
		return err
	}

	var report *models.GapReport
	if len(namespaces) == 0 {
		report, err = a.auditor.AuditGaps(ctx, cfg.GapThreshold())
	} else {
		report, err = a.auditor.Audit(ctx, namespaces, cfg.GapThreshold())
	}
	if err != nil {
		return err
	}

	if err := rep.WriteReport(os.Stdout, report); err != nil {
		return err
	}
	if failOnGaps && len(report.Entries) > 0 {
		return errGapsFound
	}
	return nil
}

func runNamespaces(cmd *cobra.Command, args []string) error {
	rep, err := newReporter()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := a.auditor.ListNamespaces(ctx)
	if err != nil {
		return err
	}
	return rep.WriteNamespaces(os.Stdout, names)
}

func runWorkloads(cmd *cobra.Command, args []string) error {
	rep, err := newReporter()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var all []models.WorkloadDescriptor
	for _, ns := range namespaces {
		workloads, err := a.auditor.ListWorkloadsWithCurrentResources(ctx, ns)
		if err != nil {
			return err
		}
		all = append(all, workloads...)
	}
	return rep.WriteWorkloads(os.Stdout, all)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	rep, err := newReporter()
	if err != nil {
		return err
	}
	kind, ok := models.ParseWorkloadKind(workloadType)
	if !ok {
		return fmt.Errorf("unknown workload type %q (want deployment or statefulset)", workloadType)
	}
	if len(namespaces) != 1 {
		return fmt.Errorf("recommend takes exactly one namespace")
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.auditor.GetRecommendations(ctx, namespaces[0], workloadName, kind, cfg.TimeWindow)
	if err != nil {
		return err
	}
	return rep.WriteRecommendations(os.Stdout, namespaces[0], workloadName, recs)
}
