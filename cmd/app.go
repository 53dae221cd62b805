package cmd

import (
	"fmt"
	"time"

	"github.com/catalystcommunity/app-utils-go/errorutils"
	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/access"
	"github.com/felipet/lacoctelera-backend/internal/audit"
	"github.com/felipet/lacoctelera-backend/internal/config"
	"github.com/felipet/lacoctelera-backend/internal/notify"
	"github.com/felipet/lacoctelera-backend/internal/objects"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/memory_store"
	"github.com/felipet/lacoctelera-backend/internal/store/postgres_store"
	"github.com/felipet/lacoctelera-backend/internal/tokens"
	"github.com/felipet/lacoctelera-backend/internal/workflow"
	"github.com/gammazero/workerpool"
)

// application holds the components shared by the server and the admin commands
type application struct {
	store      store.Store
	service    *workflow.Service
	validator  *access.Validator
	dispatcher *notify.Dispatcher
	recorder   audit.Recorder
}

func newStore() (store.Store, error) {
	timeout := time.Duration(config.StoreTimeoutSeconds) * time.Second
	switch config.StoreType {
	case store.PostgresdbStoreType:
		return postgres_store.NewPostgresStore(config.DbUri, timeout), nil
	case store.MemoryStoreType:
		logging.Log.Warn("Using the in-memory store, accounts and tokens are lost on exit")
		return memory_store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported store type: %q", config.StoreType)
}

func newNotifier() (notify.Notifier, error) {
	switch config.NotifierType {
	case "log":
		return notify.NewLogNotifier(), nil
	case "smtp":
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:       config.SMTPHost,
			Port:       config.SMTPPort,
			Username:   config.SMTPUsername,
			Password:   config.SMTPPassword,
			From:       config.SMTPFrom,
			AdminEmail: config.AdminEmail,
		}), nil
	}
	return nil, fmt.Errorf("unsupported notifier type: %q", config.NotifierType)
}

func newRecorder() (audit.Recorder, error) {
	if config.AuditStoreType == "" || config.AuditStoreType == "none" {
		return audit.NopRecorder{}, nil
	}
	archive, err := objects.NewObjectStore(objects.ObjectStoreConfig{
		Type:     config.AuditStoreType,
		BasePath: config.AuditBasePath,
		S3: objects.S3Config{
			Bucket:    config.AuditBucket,
			Prefix:    config.AuditPrefix,
			Region:    config.AuditS3Region,
			Endpoint:  config.AuditS3Endpoint,
			AccessKey: config.AuditS3AccessKey,
			SecretKey: config.AuditS3SecretKey,
			PathStyle: config.AuditS3PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit archive: %w", err)
	}
	logging.Log.WithField("type", config.AuditStoreType).Info("Audit archive initialized")
	return audit.NewArchiveRecorder(archive), nil
}

func newConfirmer() (*workflow.Confirmer, error) {
	secret := config.ConfirmationSecret
	if secret == "" {
		generated, err := workflow.GenerateSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
		logging.Log.Warn("LACOCTELERA_CONFIRMATION_SECRET not set, confirmation links will not survive a restart")
	}
	return workflow.NewConfirmer(secret, time.Duration(config.ConfirmationValidityHours)*time.Hour)
}

// initStores connects the account store and opens the audit archive side by side,
// both may wait on the network. It returns the recorder and the store cleanup functions.
func initStores(s store.Store, openRecorder func() (audit.Recorder, error)) (audit.Recorder, []func(), error) {
	pool := workerpool.New(2)
	deferredFunctions := []func(){}
	var recorder audit.Recorder
	var recorderErr error

	pool.Submit(func() {
		deferredFunc, err := s.Initialize()
		errorutils.PanicOnErr(nil, "error initializing app store", err)
		if deferredFunc != nil {
			deferredFunctions = append(deferredFunctions, deferredFunc)
		}
		logging.Log.Info("app store initialized")
	})
	pool.Submit(func() {
		recorder, recorderErr = openRecorder()
	})

	pool.StopWait()
	if recorderErr != nil {
		for _, f := range deferredFunctions {
			f()
		}
		return nil, nil, recorderErr
	}
	return recorder, deferredFunctions, nil
}

// newApplication wires every component. The returned cleanup drains pending
// notifications and closes the store.
func newApplication() (*application, func(), error) {
	s, err := newStore()
	if err != nil {
		return nil, nil, err
	}
	recorder, deferred, err := initStores(s, newRecorder)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		for _, f := range deferred {
			f()
		}
	}

	generator, err := tokens.NewGenerator(config.TokenLength, config.TokenAlphabet)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	issuer, err := tokens.NewIssuer(s, generator, time.Duration(config.TokenValidityDays)*24*time.Hour,
		tokens.WithMaxAttempts(config.TokenIssueRetries))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	logging.Log.Infof("Token generator ready (%d characters, %.0f bits of entropy)", generator.Length(), generator.EntropyBits())

	confirmer, err := newConfirmer()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	notifier, err := newNotifier()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	dispatcher := notify.NewDispatcher(notifier, config.NotifyWorkers, notify.DefaultRetryConfig())
	service, err := workflow.NewService(workflow.Deps{
		Store:     s,
		Issuer:    issuer,
		Confirmer: confirmer,
		Notifier:  dispatcher,
		Recorder:  recorder,
		BaseURL:   config.BaseURL,
	})
	if err != nil {
		dispatcher.Close()
		cleanup()
		return nil, nil, err
	}

	app := &application{
		store:      s,
		service:    service,
		validator:  access.NewValidator(s),
		dispatcher: dispatcher,
		recorder:   recorder,
	}
	return app, func() {
		dispatcher.Close()
		cleanup()
	}, nil
}
