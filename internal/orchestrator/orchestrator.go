// Package orchestrator проводит чтения от ввода данных до сохранения результата:
// анализ ладони, астрологическую анкету и нумерологический расчёт.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/apierr"
	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/derive"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/store"
	"github.com/mmeshcher/palmastro/internal/validation"
)

var (
	// ErrBusy возвращается, если анализ уже выполняется.
	ErrBusy = errors.New("another reading is being analyzed")
	// ErrAnalysisFailed оборачивает ошибку анализа ладони.
	ErrAnalysisFailed = errors.New("palm analysis failed, please try again")
	// ErrGenerationFailed возвращается, если сервер сообщил о неудачной генерации.
	ErrGenerationFailed = errors.New("reading generation failed")
	// ErrPollBudgetExhausted возвращается, если генерация не завершилась за отведённое число проверок.
	ErrPollBudgetExhausted = errors.New("reading generation did not finish in time")
	// ErrSessionConsumed возвращается при повторном использовании сессии после генерации.
	ErrSessionConsumed = errors.New("session has already been used to generate a reading")
)

const progressStep = 5
const progressCap = 90

// API описывает операции клиента, которые использует оркестратор.
type API interface {
	AnalyzeImage(ctx context.Context, img model.Image) (*model.AnalyzeResult, error)
	CreateAstrologyReading(ctx context.Context, intake model.AstrologyIntake) (*model.Reading, error)
	SubmitPersonalInfo(ctx context.Context, info model.PersonalInfo) (*model.SessionHandle, error)
	SubmitBirthDetails(ctx context.Context, sessionID string, birth model.BirthDetails) error
	SubmitPreferences(ctx context.Context, sessionID string, prefs model.Preferences) error
	GenerateReading(ctx context.Context, sessionID string) (*model.SessionHandle, error)
	StartNumerology(ctx context.Context, req model.NumerologyRequest) (*model.SessionHandle, error)
	CheckStatus(ctx context.Context, statusURL string) (*model.StatusReport, error)
	FetchResult(ctx context.Context, resultURL string) (json.RawMessage, error)
	SaveReading(ctx context.Context, req model.SaveReadingRequest) (*model.SaveReadingResponse, error)
}

// Config задаёт параметры опроса и индикации прогресса.
type Config struct {
	PollInterval    time.Duration
	PollAttempts    int
	ExhaustedPolicy string
	ProgressTick    time.Duration
	Seed            uint64
}

// ConfigFrom строит параметры оркестратора из конфигурации клиента.
func ConfigFrom(c *config.ClientConfig) Config {
	return Config{
		PollInterval:    c.PollInterval,
		PollAttempts:    c.PollAttempts,
		ExhaustedPolicy: c.PollExhaustedPolicy,
		ProgressTick:    c.ProgressTick,
		Seed:            uint64(c.DeriveSeed),
	}
}

// Orchestrator выполняет сценарии получения чтений и обновляет хранилище.
type Orchestrator struct {
	api      API
	readings *store.Readings
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New создаёт оркестратор.
func New(api API, readings *store.Readings, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollAttempts < 1 {
		cfg.PollAttempts = 1
	}
	if cfg.ProgressTick <= 0 {
		cfg.ProgressTick = 500 * time.Millisecond
	}
	if cfg.ExhaustedPolicy == "" {
		cfg.ExhaustedPolicy = config.PollExhaustedFetch
	}
	return &Orchestrator{
		api:      api,
		readings: readings,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzePalm загружает изображение ладони на анализ и сохраняет результат.
func (o *Orchestrator) AnalyzePalm(ctx context.Context, img model.Image) (*model.Reading, error) {
	contentType, err := validation.ValidateImage(img)
	if err != nil {
		return nil, err
	}
	if img.ContentType == "" {
		img.ContentType = contentType
	}

	if !o.readings.TryBeginAnalysis() {
		return nil, ErrBusy
	}
	defer o.readings.SetAnalyzing(false)

	r := model.NewReading(uuid.NewString(), model.KindPalm, o.now())
	if err := r.Advance(model.StatusAnalyzing, o.now()); err != nil {
		return nil, err
	}
	o.readings.SetCurrentReading(r)

	stop := o.startProgress()
	res, err := o.api.AnalyzeImage(ctx, img)
	stop()

	if err != nil {
		o.fail(r, err)
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	if res.ReadingID != "" {
		r.ID = res.ReadingID
	}
	if err := o.complete(r, res.Result); err != nil {
		o.fail(r, err)
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	o.logger.Info("palm reading completed", zap.String("reading_id", r.ID), zap.Float64p("accuracy", r.Accuracy))
	o.save(ctx, r)
	out := r.Clone()
	return &out, nil
}

// startProgress запускает косметический индикатор прогресса.
// Возвращаемая функция останавливает его и дожидается завершения горутины.
func (o *Orchestrator) startProgress() func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(o.cfg.ProgressTick)
		defer ticker.Stop()

		p := 0
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if p >= progressCap {
					continue
				}
				p = min(progressCap, p+progressStep)
				o.readings.SetProgress(p)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// complete переводит чтение в completed, вычисляет поля отображения и добавляет его в историю.
func (o *Orchestrator) complete(r *model.Reading, result json.RawMessage) error {
	if len(result) == 0 || string(result) == "null" {
		return derive.ErrEmptyResult
	}
	if err := r.Complete(result, AccuracyFrom(r.Kind, result), o.now()); err != nil {
		return err
	}

	display, err := derive.Display(r.Kind, result, o.cfg.Seed)
	if err != nil {
		o.logger.Warn("failed to derive display fields", zap.String("reading_id", r.ID), zap.Error(err))
	} else {
		r.Display = &display
	}

	o.readings.SetProgress(100)
	o.readings.AddReading(*r)
	o.readings.SetCurrentReading(r)
	return nil
}

func (o *Orchestrator) fail(r *model.Reading, cause error) {
	o.readings.SetProgress(0)
	if err := r.Fail(o.now()); err != nil {
		o.logger.Error("failed to mark reading as failed", zap.String("reading_id", r.ID), zap.Error(err))
	}
	o.readings.SetCurrentReading(r)
	o.logger.Warn("reading failed",
		zap.String("reading_id", r.ID),
		zap.String("kind", string(r.Kind)),
		zap.Error(cause),
	)
}

// save сохраняет чтение в истории пользователя. Ошибки не прерывают сценарий.
func (o *Orchestrator) save(ctx context.Context, r *model.Reading) {
	req := model.SaveReadingRequest{
		Kind:            r.Kind,
		Result:          r.Result,
		Accuracy:        r.Accuracy,
		SourceID:        r.SourceID,
		PalmReferenceID: r.PalmReferenceID,
	}

	res, err := o.api.SaveReading(ctx, req)
	switch {
	case errors.Is(err, apierr.ErrNotAuthenticated):
		o.logger.Info("reading not saved: user is not authenticated", zap.String("reading_id", r.ID))
	case err != nil:
		o.logger.Warn("failed to save reading", zap.String("reading_id", r.ID), zap.Error(err))
	default:
		o.logger.Debug("reading saved", zap.String("reading_id", r.ID), zap.String("saved_id", res.Data.ID))
	}
}
