package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/model"
	"github.com/mmeshcher/palmastro/internal/validation"
)

var errPollExhausted = errors.New("poll attempts exhausted")

// AstrologySession хранит локальный дескриптор серверной сессии астрологической анкеты.
// После Generate сессия считается использованной.
type AstrologySession struct {
	o  *Orchestrator
	id string

	mu       sync.Mutex
	consumed bool
}

// BeginAstrology отправляет первый шаг анкеты и открывает сессию.
func (o *Orchestrator) BeginAstrology(ctx context.Context, info model.PersonalInfo) (*AstrologySession, error) {
	if err := validation.ValidatePersonalInfo(info); err != nil {
		return nil, err
	}
	h, err := o.api.SubmitPersonalInfo(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("submit personal info: %w", err)
	}
	o.logger.Debug("astrology session opened", zap.String("session_id", h.ID))
	return &AstrologySession{o: o, id: h.ID}, nil
}

// ID возвращает идентификатор серверной сессии.
func (s *AstrologySession) ID() string { return s.id }

func (s *AstrologySession) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return ErrSessionConsumed
	}
	return nil
}

// SubmitBirthDetails отправляет данные о рождении.
func (s *AstrologySession) SubmitBirthDetails(ctx context.Context, birth model.BirthDetails) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := validation.ValidateBirthDetails(birth, s.o.now()); err != nil {
		return err
	}
	if err := s.o.api.SubmitBirthDetails(ctx, s.id, birth); err != nil {
		return fmt.Errorf("submit birth details: %w", err)
	}
	return nil
}

// SubmitPreferences отправляет предпочтения чтения.
func (s *AstrologySession) SubmitPreferences(ctx context.Context, prefs model.Preferences) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := validation.ValidatePreferences(prefs); err != nil {
		return err
	}
	if err := s.o.api.SubmitPreferences(ctx, s.id, prefs); err != nil {
		return fmt.Errorf("submit preferences: %w", err)
	}
	return nil
}

// Generate запускает генерацию, дожидается её завершения и возвращает готовое чтение.
func (s *AstrologySession) Generate(ctx context.Context) (*model.Reading, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}

	o := s.o
	if !o.readings.TryBeginAnalysis() {
		return nil, ErrBusy
	}
	defer o.readings.SetAnalyzing(false)

	s.mu.Lock()
	if s.consumed {
		s.mu.Unlock()
		return nil, ErrSessionConsumed
	}
	s.consumed = true
	s.mu.Unlock()

	h, err := o.api.GenerateReading(ctx, s.id)
	if err != nil {
		return nil, fmt.Errorf("generate reading: %w", err)
	}
	return o.await(ctx, model.KindAstrology, s.id, h)
}

// RunAstrology проходит все шаги астрологической анкеты и возвращает готовое чтение.
func (o *Orchestrator) RunAstrology(ctx context.Context, intake model.AstrologyIntake) (*model.Reading, error) {
	s, err := o.BeginAstrology(ctx, intake.Personal)
	if err != nil {
		return nil, err
	}
	if err := s.SubmitBirthDetails(ctx, intake.Birth); err != nil {
		return nil, err
	}
	if err := s.SubmitPreferences(ctx, intake.Preferences); err != nil {
		return nil, err
	}
	return s.Generate(ctx)
}

// QuickAstrology получает астрологическое чтение одним запросом.
func (o *Orchestrator) QuickAstrology(ctx context.Context, intake model.AstrologyIntake) (*model.Reading, error) {
	if err := validation.ValidateBirthDetails(intake.Birth, o.now()); err != nil {
		return nil, err
	}
	if !o.readings.TryBeginAnalysis() {
		return nil, ErrBusy
	}
	defer o.readings.SetAnalyzing(false)

	res, err := o.api.CreateAstrologyReading(ctx, intake)
	if err != nil {
		return nil, fmt.Errorf("create astrology reading: %w", err)
	}

	id := res.ID
	if id == "" {
		id = uuid.NewString()
	}
	r := model.NewReading(id, model.KindAstrology, o.now())
	if err := r.Advance(model.StatusAnalyzing, o.now()); err != nil {
		return nil, err
	}
	o.linkPalm(r)
	if err := o.complete(r, res.Result); err != nil {
		o.fail(r, err)
		return nil, err
	}
	o.save(ctx, r)
	out := r.Clone()
	return &out, nil
}

// RunNumerology выполняет нумерологический расчёт и возвращает готовое чтение.
func (o *Orchestrator) RunNumerology(ctx context.Context, req model.NumerologyRequest) (*model.Reading, error) {
	if err := validation.ValidateNumerology(req, o.now()); err != nil {
		return nil, err
	}
	if !o.readings.TryBeginAnalysis() {
		return nil, ErrBusy
	}
	defer o.readings.SetAnalyzing(false)

	h, err := o.api.StartNumerology(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start numerology: %w", err)
	}
	return o.await(ctx, model.KindNumerology, h.ID, h)
}

// linkPalm связывает чтение с последним завершённым анализом ладони из истории.
func (o *Orchestrator) linkPalm(r *model.Reading) {
	if palm, ok := o.readings.LatestCompleted(model.KindPalm); ok {
		r.PalmReferenceID = palm.ID
	}
}

// await опрашивает статус генерации, забирает результат и завершает чтение.
func (o *Orchestrator) await(ctx context.Context, kind model.ReadingKind, sessionID string, h *model.SessionHandle) (*model.Reading, error) {
	r := model.NewReading(sessionID, kind, o.now())
	r.SourceID = sessionID
	if err := r.Advance(model.StatusAnalyzing, o.now()); err != nil {
		return nil, err
	}
	o.readings.SetCurrentReading(r)

	err := o.poll(ctx, h.StatusURL)
	if errors.Is(err, errPollExhausted) {
		if o.cfg.ExhaustedPolicy == config.PollExhaustedFail {
			o.fail(r, err)
			return nil, ErrPollBudgetExhausted
		}
		o.logger.Warn("status polling exhausted, fetching result anyway",
			zap.String("session_id", sessionID),
			zap.Int("attempts", o.cfg.PollAttempts),
		)
		err = nil
	}
	if err != nil {
		o.fail(r, err)
		return nil, err
	}

	raw, err := o.api.FetchResult(ctx, h.ResultURL)
	if err != nil {
		o.fail(r, err)
		return nil, fmt.Errorf("fetch result: %w", err)
	}

	if kind == model.KindAstrology {
		o.linkPalm(r)
	}
	if err := o.complete(r, raw); err != nil {
		o.fail(r, err)
		return nil, err
	}

	o.logger.Info("reading completed",
		zap.String("reading_id", r.ID),
		zap.String("kind", string(kind)),
		zap.Float64p("accuracy", r.Accuracy),
	)
	o.save(ctx, r)
	out := r.Clone()
	return &out, nil
}

// poll проверяет статус до COMPLETED или FAILED, не более PollAttempts раз,
// с паузой PollInterval между проверками.
func (o *Orchestrator) poll(ctx context.Context, statusURL string) error {
	attempts := o.cfg.PollAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		rep, err := o.api.CheckStatus(ctx, statusURL)
		if err != nil {
			return fmt.Errorf("check status: %w", err)
		}

		switch rep.Status {
		case model.GenerationCompleted:
			return nil
		case model.GenerationFailed:
			msg := rep.ErrorMessage
			if msg == "" {
				msg = "unknown error"
			}
			return fmt.Errorf("%w: %s", ErrGenerationFailed, msg)
		}

		o.readings.SetProgress(min(progressCap, attempt*progressCap/attempts))
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(o.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errPollExhausted
}
