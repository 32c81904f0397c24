package handlers

import (
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/daffahilmyf/go-imagegen/internal/domain/service"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Accounts         service.AccountService
	Images           service.ImageService
	Generation       service.GenerationService
	Prompts          service.PromptService
	Storage          repository.ObjectStorage
	Store            repository.Store
	HealthcheckToken string
	WatchTimeout     time.Duration
	Log              *logrus.Logger
}

type Handler struct {
	accounts    service.AccountService
	images      service.ImageService
	generation  service.GenerationService
	prompts     service.PromptService
	storage     repository.ObjectStorage
	store       repository.Store
	healthToken string
	watch       time.Duration
	log         *logrus.Logger
}

func NewHandler(d Deps) *Handler {
	watch := d.WatchTimeout
	if watch <= 0 {
		watch = 2 * time.Minute
	}
	return &Handler{
		accounts:    d.Accounts,
		images:      d.Images,
		generation:  d.Generation,
		prompts:     d.Prompts,
		storage:     d.Storage,
		store:       d.Store,
		healthToken: d.HealthcheckToken,
		watch:       watch,
		log:         d.Log,
	}
}
