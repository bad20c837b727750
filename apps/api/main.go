package main

import (
	"log"
	"os"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/schedule"
	"github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/storage/database"
	sqlxrepos "github.com/trezcool/ratiba/storage/database/sqlx"

	echoapi "github.com/trezcool/ratiba/apps/api/echo"
)

func main() {
	std := log.New(os.Stdout, "RATIBA : ", log.LstdFlags|log.Lshortfile)

	var logger core.Logger
	if core.Conf.Debug {
		logger = core.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		logger.Fatal("setting up database", err)
	}
	db, err := database.Open(core.Conf)
	errAndDie(logger, err)
	defer db.Close()
	errAndDie(logger, database.Migrate(db.DB))

	// set up the scheduling engine
	cal, err := schedule.NewCalendar(core.Conf.Scheduling)
	errAndDie(logger, err)
	repo := sqlxrepos.NewScheduleRepository(db, cal)
	schedSvc := schedule.NewService(repo, cal, logger, core.Conf.Scheduling)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:     core.Conf.Server.Address(),
			ScheduleSvc: schedSvc,
			Logger:      logger,
		},
	)
	app.Start()
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
