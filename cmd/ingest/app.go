package main

import (
	"github.com/sirupsen/logrus"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/dates"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/persistence"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/source"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/services"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/configuration"
)

func logger() *logrus.Entry {
	return logrus.NewEntry(configuration.Use().Logger())
}

func newIngestionService() (*services.IngestionService, error) {
	conf := configuration.Use()
	log := logger()
	svc, err := services.NewIngestionService(
		persistence.NewImportPlanRepository(),
		persistence.NewEntityStores(),
		persistence.NewReferenceRepository(persistence.NewTermRepository()),
		source.NewReader(conf.Ingestion.UploadsPath, log),
		dates.New(),
		services.Options{
			Workers:       conf.Ingestion.Workers,
			RunTimeout:    conf.Ingestion.RunTimeout,
			ProgressEvery: conf.Ingestion.ProgressEvery,
			MaxWarnings:   conf.Ingestion.MaxWarnings,
			ActorID:       conf.Ingestion.ActorID,
			Logger:        log,
		},
	)
	if err != nil {
		return nil, withCode(exitValidation, err)
	}
	return svc, nil
}

func newWatchdog() (*services.Watchdog, error) {
	conf := configuration.Use()
	w, err := services.NewWatchdog(persistence.NewImportPlanRepository(), services.WatchdogOptions{
		Interval:   conf.Ingestion.WatchdogInterval,
		StaleAfter: conf.Ingestion.StaleAfter,
		Logger:     logger(),
	})
	if err != nil {
		return nil, withCode(exitValidation, err)
	}
	return w, nil
}
