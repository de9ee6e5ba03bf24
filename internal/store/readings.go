// Package store содержит клиентское состояние: чтения и текущего пользователя.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/mmeshcher/palmastro/internal/model"
)

// EventKind определяет, какая часть состояния изменилась.
type EventKind string

const (
	EventCurrent   EventKind = "current"
	EventHistory   EventKind = "history"
	EventProgress  EventKind = "progress"
	EventAnalyzing EventKind = "analyzing"
)

// Event уведомляет подписчика об изменении и содержит снимок состояния после него.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}

// Snapshot содержит независимую копию состояния хранилища чтений.
type Snapshot struct {
	Current     *model.Reading
	History     []model.Reading
	IsAnalyzing bool
	Progress    int
}

// ReadingLister загружает историю чтений.
type ReadingLister interface {
	ListReadings(ctx context.Context, limit, offset int) (*model.ReadingPage, error)
}

// Readings хранит текущее чтение, историю (от новых к старым) и индикаторы анализа.
type Readings struct {
	lister ReadingLister
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	current   *model.Reading
	history   []model.Reading
	analyzing bool
	progress  int
	subs      map[int]chan Event
	nextSub   int
}

// NewReadings создаёт пустое хранилище чтений.
func NewReadings(lister ReadingLister, logger *zap.Logger) *Readings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Readings{
		lister: lister,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan Event),
	}
}

// Subscribe возвращает канал событий и функцию отписки.
// Если буфер подписчика заполнен, событие для него пропускается.
func (s *Readings) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// notifyLocked рассылает событие. Вызывается под s.mu.
func (s *Readings) notifyLocked(kind EventKind) {
	if len(s.subs) == 0 {
		return
	}
	ev := Event{Kind: kind, Snapshot: s.snapshotLocked()}
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("dropping store event for slow subscriber", zap.Int("subscriber", id), zap.String("kind", string(kind)))
		}
	}
}

func (s *Readings) snapshotLocked() Snapshot {
	snap := Snapshot{
		History:     make([]model.Reading, len(s.history)),
		IsAnalyzing: s.analyzing,
		Progress:    s.progress,
	}
	for i, r := range s.history {
		snap.History[i] = r.Clone()
	}
	if s.current != nil {
		c := s.current.Clone()
		snap.Current = &c
	}
	return snap
}

// Snapshot возвращает копию текущего состояния.
func (s *Readings) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Current возвращает копию текущего чтения.
func (s *Readings) Current() (model.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.Reading{}, false
	}
	return s.current.Clone(), true
}

// History возвращает копию истории.
func (s *Readings) History() []model.Reading {
	return s.Snapshot().History
}

// SetCurrentReading заменяет текущее чтение. nil сбрасывает его.
func (s *Readings) SetCurrentReading(r *model.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == nil {
		s.current = nil
	} else {
		c := r.Clone()
		s.current = &c
	}
	s.notifyLocked(EventCurrent)
}

// AddReading добавляет чтение в начало истории.
func (s *Readings) AddReading(r model.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]model.Reading{r.Clone()}, s.history...)
	s.notifyLocked(EventHistory)
}

// UpdateReading применяет изменения к чтению в истории и к текущему, если id совпадает.
// Для неизвестного id ничего не меняет и возвращает false. Порядок истории сохраняется.
func (s *Readings) UpdateReading(id string, patch model.ReadingPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	found := false
	for i, r := range s.history {
		if r.ID != id {
			continue
		}
		updated, err := patch.Apply(r, now)
		if err != nil {
			return false, err
		}
		s.history[i] = updated
		found = true
		break
	}

	currentChanged := false
	if s.current != nil && s.current.ID == id {
		updated, err := patch.Apply(*s.current, now)
		if err != nil {
			return found, err
		}
		s.current = &updated
		currentChanged = true
	}

	if found {
		s.notifyLocked(EventHistory)
	}
	if currentChanged {
		s.notifyLocked(EventCurrent)
	}
	return found || currentChanged, nil
}

// DeleteReading удаляет чтение из истории и сбрасывает текущее, если это оно.
func (s *Readings) DeleteReading(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for i, r := range s.history {
		if r.ID == id {
			s.history = append(s.history[:i:i], s.history[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		s.notifyLocked(EventHistory)
	}
	if s.current != nil && s.current.ID == id {
		s.current = nil
		s.notifyLocked(EventCurrent)
		removed = true
	}
	return removed
}

// LoadReadings заменяет историю загруженной страницей.
// При ошибке прежняя история сохраняется, а ошибка пишется в лог и возвращается.
func (s *Readings) LoadReadings(ctx context.Context, limit int) error {
	page, err := s.lister.ListReadings(ctx, limit, 0)
	if err != nil {
		s.logger.Warn("failed to load readings", zap.Int("limit", limit), zap.Error(err))
		return err
	}

	history := make([]model.Reading, len(page.Results))
	for i, r := range page.Results {
		history[i] = r.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = history
	s.notifyLocked(EventHistory)
	return nil
}

// TryBeginAnalysis помечает начало анализа. Возвращает false, если анализ уже идёт.
func (s *Readings) TryBeginAnalysis() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analyzing {
		return false
	}
	s.analyzing = true
	s.progress = 0
	s.notifyLocked(EventAnalyzing)
	return true
}

// SetAnalyzing задаёт флаг анализа.
func (s *Readings) SetAnalyzing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analyzing == v {
		return
	}
	s.analyzing = v
	s.notifyLocked(EventAnalyzing)
}

// IsAnalyzing сообщает, идёт ли анализ.
func (s *Readings) IsAnalyzing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzing
}

// SetProgress задаёт прогресс анализа в диапазоне 0..100.
func (s *Readings) SetProgress(p int) {
	p = min(100, max(0, p))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == p {
		return
	}
	s.progress = p
	s.notifyLocked(EventProgress)
}

// Progress возвращает прогресс анализа.
func (s *Readings) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// LatestCompleted возвращает самое новое завершённое чтение указанного типа.
func (s *Readings) LatestCompleted(kind model.ReadingKind) (model.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.history {
		if r.Kind == kind && r.Status == model.StatusCompleted {
			return r.Clone(), true
		}
	}
	return model.Reading{}, false
}

// Stats содержит агрегаты по истории чтений.
type Stats struct {
	Total          int
	Completed      int
	ByKind         map[model.ReadingKind]int
	MeanAccuracy   float64
	MedianAccuracy float64
}

// Stats считает агрегаты по истории. Точность учитывается только у завершённых чтений.
func (s *Readings) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Stats{Total: len(s.history), ByKind: make(map[model.ReadingKind]int)}
	var acc stats.Float64Data
	for _, r := range s.history {
		out.ByKind[r.Kind]++
		if r.Status != model.StatusCompleted {
			continue
		}
		out.Completed++
		if r.Accuracy != nil {
			acc = append(acc, *r.Accuracy)
		}
	}

	if len(acc) == 0 {
		return out
	}
	if mean, err := stats.Mean(acc); err == nil {
		out.MeanAccuracy, _ = stats.Round(mean, 1)
	}
	if median, err := stats.Median(acc); err == nil {
		out.MedianAccuracy = median
	}
	return out
}
