package bootstrap

import (
	"net/http"

	"go.uber.org/zap"

	"dialoguerec/internal/audio"
	"dialoguerec/internal/auth"
	"dialoguerec/internal/config"
	"dialoguerec/internal/logging"
	"dialoguerec/internal/messages"
	"dialoguerec/internal/ports"
	"dialoguerec/internal/preview"
	"dialoguerec/internal/templates"
	"dialoguerec/internal/upload"
	"dialoguerec/internal/usecase"
	"dialoguerec/internal/validation"
)

// Services is the assembled runtime graph.
type Services struct {
	Config      config.Config
	Logger      *zap.Logger
	Session     *auth.Session
	Previews    *preview.Store
	Uploads     *upload.Client
	Templates   *templates.Client
	Controller  *usecase.CaptureController
	Submissions *usecase.SubmissionService
	Detector    *validation.LanguageDetector
	Messages    *messages.Catalog
}

// Build wires all backend dependencies for the current runtime. onDetect
// receives debounced transcript language detections.
func Build(eventSink ports.EventSink, onDetect func(validation.Detection)) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return Services{}, err
	}

	catalog, err := messages.New(cfg.UI.Locale)
	if err != nil {
		return Services{}, err
	}

	session := auth.NewSession()
	previews := preview.NewStore()
	httpClient := &http.Client{}

	uploads, err := upload.NewClient(upload.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.UploadTimeout,
		HTTPClient: httpClient,
	}, session, logger.Named("upload"))
	if err != nil {
		return Services{}, err
	}

	controller := usecase.NewCaptureController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		uploads,
		previews,
		eventSink,
		logger.Named("capture"),
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:    cfg.Audio.SampleRate,
				Channels:      cfg.Audio.Channels,
				InputFormat:   cfg.Audio.InputFormat,
				InputDevice:   cfg.Audio.InputDevice,
				ChunkInterval: cfg.Audio.ChunkInterval,
			},
			TickInterval: cfg.Session.TickInterval,
			Ceiling:      cfg.Session.MaxRecordingSeconds,
		},
	)

	logger.Info("services ready",
		zap.String("api", cfg.API.BaseURL),
		zap.String("audio_input", cfg.Audio.InputDevice),
		zap.String("locale", catalog.Locale()),
		zap.String("env_file", cfg.EnvFile),
	)

	return Services{
		Config:      cfg,
		Logger:      logger,
		Session:     session,
		Previews:    previews,
		Uploads:     uploads,
		Templates:   templates.NewClient(cfg.API.BaseURL, httpClient, session, cfg.API.RequestTimeout, logger.Named("templates")),
		Controller:  controller,
		Submissions: usecase.NewSubmissionService(uploads, eventSink, logger.Named("submit")),
		Detector:    validation.NewLanguageDetector(cfg.UI.LanguageDebounce, onDetect),
		Messages:    catalog,
	}, nil
}
