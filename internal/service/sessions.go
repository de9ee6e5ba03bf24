package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/fixtures"
	"github.com/mmeshcher/palmastro/internal/model"
)

var (
	// ErrSessionNotFound возвращается для неизвестной или просроченной сессии.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionGenerating возвращается при попытке изменить сессию после запуска генерации.
	ErrSessionGenerating = errors.New("session generation has already started")
	// ErrResultNotReady возвращается, если генерация ещё не завершена.
	ErrResultNotReady = errors.New("result is not ready")
)

const generationFailedMessage = "reading generation failed"

type session struct {
	id   string
	kind model.ReadingKind

	birth      model.BirthDetails
	prefs      model.Preferences
	numerology model.NumerologyRequest

	generating bool
	checks     int
	status     model.GenerationStatus
	updatedAt  time.Time
}

func (s *session) handle() model.SessionHandle {
	status, result := config.PathAstrologyStatus, config.PathAstrologyResult
	if s.kind == model.KindNumerology {
		status, result = config.PathNumerologyStatus, config.PathNumerologyResult
	}
	return model.SessionHandle{
		ID:        s.id,
		Status:    s.status,
		StatusURL: strings.Replace(status, "{id}", s.id, 1),
		ResultURL: strings.Replace(result, "{id}", s.id, 1),
	}
}

func (s *session) result() json.RawMessage {
	if s.kind == model.KindNumerology {
		return fixtures.NumerologyJSON(s.numerology)
	}
	return fixtures.AstrologyJSON(s.birth, s.prefs)
}

func (s *Service) open(kind model.ReadingKind, fill func(*session)) model.SessionHandle {
	sess := &session{
		id:        uuid.NewString(),
		kind:      kind,
		status:    model.GenerationPending,
		updatedAt: s.now(),
	}
	if fill != nil {
		fill(sess)
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Debug("session opened", zap.String("session_id", sess.id), zap.String("kind", string(kind)))
	return sess.handle()
}

// lookup возвращает сессию указанного типа. Вызывается под s.mu.
func (s *Service) lookup(kind model.ReadingKind, id string) (*session, error) {
	sess, ok := s.sessions[id]
	if !ok || sess.kind != kind {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Service) mutate(id string, fn func(*session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(model.KindAstrology, id)
	if err != nil {
		return err
	}
	if sess.generating {
		return ErrSessionGenerating
	}
	fn(sess)
	sess.updatedAt = s.now()
	return nil
}

// OpenAstrology открывает астрологическую сессию по личным данным.
func (s *Service) OpenAstrology(info model.PersonalInfo) model.SessionHandle {
	return s.open(model.KindAstrology, nil)
}

// UpdateBirthDetails сохраняет данные о рождении в сессии.
func (s *Service) UpdateBirthDetails(id string, birth model.BirthDetails) error {
	return s.mutate(id, func(sess *session) { sess.birth = birth })
}

// UpdatePreferences сохраняет предпочтения в сессии.
func (s *Service) UpdatePreferences(id string, prefs model.Preferences) error {
	return s.mutate(id, func(sess *session) { sess.prefs = prefs })
}

// Generate запускает генерацию по сессии.
func (s *Service) Generate(id string) (model.SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(model.KindAstrology, id)
	if err != nil {
		return model.SessionHandle{}, err
	}
	if sess.generating {
		return model.SessionHandle{}, ErrSessionGenerating
	}
	sess.generating = true
	sess.updatedAt = s.now()

	s.logger.Info("generation started", zap.String("session_id", id))
	return sess.handle(), nil
}

// StartNumerology открывает нумерологическую сессию и сразу запускает расчёт.
func (s *Service) StartNumerology(req model.NumerologyRequest) model.SessionHandle {
	return s.open(model.KindNumerology, func(sess *session) {
		sess.numerology = req
		sess.generating = true
	})
}

// Status возвращает статус генерации. Каждая проверка продвигает сессию по сценарию статусов.
func (s *Service) Status(kind model.ReadingKind, id string) (model.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(kind, id)
	if err != nil {
		return model.StatusReport{}, err
	}
	if !sess.generating {
		return model.StatusReport{Status: model.GenerationPending}, nil
	}

	if sess.status != model.GenerationCompleted && sess.status != model.GenerationFailed {
		sess.status = s.script[min(sess.checks, len(s.script)-1)]
		sess.checks++
		sess.updatedAt = s.now()
	}

	rep := model.StatusReport{Status: sess.status}
	if sess.status == model.GenerationFailed {
		rep.ErrorMessage = generationFailedMessage
	}
	return rep, nil
}

// Result возвращает результат завершённой генерации.
func (s *Service) Result(kind model.ReadingKind, id string) (json.RawMessage, model.GenerationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(kind, id)
	if err != nil {
		return nil, "", err
	}
	if sess.status != model.GenerationCompleted {
		return nil, sess.status, ErrResultNotReady
	}
	return sess.result(), sess.status, nil
}

// StartSessionCleanup запускает фоновое удаление сессий, не менявшихся дольше sessionTTL.
func (s *Service) StartSessionCleanup(ctx context.Context) {
	interval := max(s.sessionTTL/4, time.Second)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sweepSessions(); n > 0 {
					s.logger.Debug("expired sessions removed", zap.Int("count", n))
				}
			}
		}
	}()
}

func (s *Service) sweepSessions() int {
	cutoff := s.now().Add(-s.sessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.updatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
