package main

import (
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/RedHatInsights/document_source_sync/config"
	"github.com/RedHatInsights/document_source_sync/internal/importpipeline"
	"github.com/RedHatInsights/document_source_sync/internal/logger"
	"github.com/RedHatInsights/document_source_sync/internal/models/cronsecret"
	"github.com/RedHatInsights/document_source_sync/internal/models/itemledger"
	"github.com/RedHatInsights/document_source_sync/internal/models/run"
	"github.com/RedHatInsights/document_source_sync/internal/models/source"
	"github.com/RedHatInsights/document_source_sync/internal/models/sourcesecret"
	"github.com/RedHatInsights/document_source_sync/internal/models/tenant"
	"github.com/RedHatInsights/document_source_sync/internal/oauthflow"
	"github.com/RedHatInsights/document_source_sync/internal/orchestrator"
	"github.com/RedHatInsights/document_source_sync/internal/secrets"
	"github.com/RedHatInsights/document_source_sync/internal/statetoken"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//DatabaseContext used to store the DB being used
type DatabaseContext struct {
	DB *gorm.DB
}

func main() {
	cfg := config.Get()
	log := logger.InitLogger(cfg)
	log.Info("Starting Document Source Sync")
	defer log.Info("Finished Document Source Sync")

	isReady := &atomic.Value{}
	isReady.Store(false)

	go startPrometheus(cfg)

	expvar.Publish("goroutines", expvar.Func(func() interface{} {
		return fmt.Sprintf("%d", runtime.NumGoroutine())
	}))

	dsn := fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.DatabaseUsername,
		cfg.DatabasePassword,
		cfg.DatabaseHostname,
		cfg.DatabasePort,
		cfg.DatabaseName)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database %v", err)
	}
	if err := db.AutoMigrate(
		&tenant.Tenant{},
		&source.Source{},
		&sourcesecret.SourceSecret{},
		&itemledger.Entry{},
		&run.Run{},
		&cronsecret.TenantCronSecret{},
	); err != nil {
		log.Fatalf("failed to migrate schema %v", err)
	}
	log.Info("Connected to database")
	dbContext := DatabaseContext{DB: db}

	cipher, err := secrets.NewCipher(cfg.SecretsMasterKey)
	if err != nil {
		log.Fatalf("secrets master key misconfigured %v", err)
	}
	issuer, err := statetoken.NewIssuer(cfg.StateTokenKey, 0)
	if err != nil {
		log.Fatalf("state token key misconfigured %v", err)
	}

	repos := orchestrator.Repositories{
		Sources:     source.NewGORMRepository(db),
		Secrets:     sourcesecret.NewGORMRepository(db, cipher),
		Ledger:      itemledger.NewGORMRepository(db),
		Runs:        run.NewGORMRepository(db),
		CronSecrets: cronsecret.NewGORMRepository(db),
	}
	pipeline := importpipeline.MakeImportPipeline(cfg.ImportPipelineURL)
	orch := orchestrator.New(cfg, repos, pipeline)
	flow := oauthflow.New(cfg, issuer, repos.Sources, repos.Secrets)
	tenants := tenant.NewGORMRepository(db)

	sigs := make(chan os.Signal, 1)
	shutdown := make(chan struct{})
	var workerGroup sync.WaitGroup
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	workerGroup.Add(1)
	go startKafkaListener(cfg, log, orch, shutdown, &workerGroup)

	workerGroup.Add(1)
	go startRunSweeper(cfg, log, repos.Runs, shutdown, &workerGroup)

	server := &apiServer{cfg: cfg, log: log, orch: orch, flow: flow, tenants: tenants, isReady: isReady}
	go func() {
		isReady.Store(true)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.WebPort), server.Routes()); err != nil {
			log.Errorf("web server stopped %v", err)
		}
	}()

	go func() {
		sig := <-sigs
		log.Infof("Received signal %v", sig)
		close(shutdown)
	}()
	workerGroup.Wait()
	dbContext.close(log)
	log.Info("exiting")
}

func (d DatabaseContext) close(log *logrus.Logger) {
	sqlDB, err := d.DB.DB()
	if err == nil {
		sqlDB.Close()
	} else {
		log.Errorf("error fetching underlying DB handle %v", err)
	}
}

func startPrometheus(cfg *config.SourceSyncConfig) {
	prometheusMux := http.NewServeMux()
	prometheusMux.Handle("/metrics", promhttp.Handler())
	http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), prometheusMux)
}
