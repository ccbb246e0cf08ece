package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/civicpay/unifee/internal/api"
	"github.com/civicpay/unifee/internal/config"
	"github.com/civicpay/unifee/internal/domain"
	"github.com/civicpay/unifee/internal/export"
	"github.com/civicpay/unifee/internal/gpd"
	"github.com/civicpay/unifee/internal/ingestion"
	"github.com/civicpay/unifee/internal/iuv"
	"github.com/civicpay/unifee/internal/orchestrator"
	"github.com/civicpay/unifee/internal/repository"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.Infof("initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("init db: %v", err)
	}
	defer db.Close()

	// Repositories.
	orgRepo := repository.NewOrganizationRepo(db)
	posRepo := repository.NewPositionRepo(db)
	iuvRepo := repository.NewIuvRepo(db)
	queueRepo := repository.NewQueueRepo(db)

	// Seed the organization registry if empty.
	count, err := orgRepo.Count()
	if err != nil {
		log.Fatalf("count organizations: %v", err)
	}
	if count == 0 {
		log.Info("organization registry is empty, seeding from testdata...")
		if err := seedOrganizations(orgRepo, log); err != nil {
			log.Warnf("seed organizations: %v", err)
		}
	} else {
		log.Infof("organization registry has %d entries, skipping seed", count)
	}

	// Services.
	generator := iuv.NewGenerator(iuvRepo, cfg.SegregationCode, cfg.IuvMode,
		cfg.IuvSequenceOffset, cfg.IupdPrefix, log)
	gpdClient := gpd.NewClient(cfg.GpdHost, cfg.GpdTimeout, log)
	ingestionSvc := ingestion.NewService(orgRepo, posRepo, queueRepo, generator, cfg, log)
	exportSvc := export.NewService(posRepo, cfg.OutputDir, log)
	orch := orchestrator.New(gpdClient, posRepo, queueRepo, cfg, log)
	consumer := orchestrator.NewConsumer(queueRepo, orch, cfg.QueuePollInterval, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go consumer.Run(ctx)
	go exportSvc.Run(ctx, cfg.ExportInterval)

	router := api.NewRouter(posRepo, ingestionSvc, exportSvc, log)
	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		<-ctx.Done()
		log.Info("shutting down...")
		_ = server.Shutdown(context.Background())
	}()

	log.Infof("unifee debt-position pipeline listening on http://localhost:%s", cfg.Port)
	log.Infof("  POST /api/v1/notices/ingest")
	log.Infof("  GET  /api/v1/positions")
	log.Infof("  GET  /api/v1/positions/{file}/{id}")
	log.Infof("  GET  /api/v1/batches/{file}/status")
	log.Infof("  GET  /api/v1/batches/{file}/output")
	log.Infof("  GET  /api/v1/dashboard")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

func seedOrganizations(repo *repository.OrganizationRepo, log *logrus.Logger) error {
	candidates := []string{
		"testdata/organizations.json",
		filepath.Join(".", "testdata", "organizations.json"),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "organizations.json"),
			filepath.Join(dir, "..", "..", "testdata", "organizations.json"),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			log.Infof("loaded organizations from %s", path)
			break
		}
	}
	if loadErr != nil {
		return fmt.Errorf("could not find organizations.json in any candidate path: %w", loadErr)
	}

	var orgs []domain.Organization
	if err := json.Unmarshal(data, &orgs); err != nil {
		return fmt.Errorf("unmarshal organizations: %w", err)
	}

	inserted, err := repo.BulkInsert(orgs)
	if err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}
	log.Infof("seeded %d organizations (out of %d in file)", inserted, len(orgs))
	return nil
}
