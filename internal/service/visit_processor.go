package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SergeiKhy/linkhub/internal/config"
	"github.com/SergeiKhy/linkhub/internal/geo"
	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	maxRetries     = 3               // Максимальное количество попыток записи
	processTimeout = 5 * time.Second // Таймаут обработки одного визита
)

// VisitProcessor интерфейс для асинхронного учёта визитов
type VisitProcessor interface {
	Start()
	Stop()
	Record(ctx context.Context, event *models.VisitEvent) error
	Failures() <-chan models.VisitFailure
}

// visitProcessor реализация процессора визитов с использованием Worker Pool
type visitProcessor struct {
	visitRepo    repository.VisitRepository
	linkRepo     repository.LinkRepository
	cacheRepo    repository.CacheRepository
	locator      geo.Locator
	logger       *zap.Logger
	visitChannel chan *models.VisitEvent
	failures     chan models.VisitFailure
	workerCount  int
	uniqueWindow time.Duration
	reconcileInt time.Duration
	wg           sync.WaitGroup // Воркеры
	spillWG      sync.WaitGroup // Горутины переполнения
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewVisitProcessor создаёт новый экземпляр процессора визитов
func NewVisitProcessor(
	visitRepo repository.VisitRepository,
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	locator geo.Locator,
	cfg config.VisitsConfig,
	logger *zap.Logger,
) VisitProcessor {
	return &visitProcessor{
		visitRepo:    visitRepo,
		linkRepo:     linkRepo,
		cacheRepo:    cacheRepo,
		locator:      locator,
		logger:       logger,
		visitChannel: make(chan *models.VisitEvent, cfg.BufferSize),
		failures:     make(chan models.VisitFailure, cfg.BufferSize),
		workerCount:  cfg.WorkerCount,
		uniqueWindow: cfg.UniqueWindow,
		reconcileInt: cfg.ReconcileInterval,
	}
}

// Start запускает worker pool и фоновую сверку счётчиков
func (p *visitProcessor) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("Запуск воркеров процессора визитов", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	if p.reconcileInt > 0 {
		p.wg.Add(1)
		go p.reconciler()
	}
}

// Stop корректно останавливает worker pool. Сначала дожидаемся горутин
// переполнения, чтобы не потерять ни одного принятого события.
func (p *visitProcessor) Stop() {
	p.logger.Info("Остановка процессора визитов...")
	p.spillWG.Wait()
	p.cancel()
	p.wg.Wait()
	close(p.failures)
	p.logger.Info("Процессор визитов остановлен")
}

// Failures возвращает канал событий, которые не удалось записать после
// всех попыток
func (p *visitProcessor) Failures() <-chan models.VisitFailure {
	return p.failures
}

// Record отправляет событие визита в worker pool. Вызов никогда не
// блокирует редирект: при переполнении буфера событие досылается
// отдельной горутиной.
func (p *visitProcessor) Record(ctx context.Context, event *models.VisitEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.visitChannel <- event:
		return nil
	default:
	}

	// Буфер заполнен; событие не теряем, а досылаем в фоне
	p.logger.Warn("Буфер канала визитов заполнен, досылаем в фоне",
		zap.String("alias", event.AliasName),
	)
	p.spillWG.Add(1)
	go func() {
		defer p.spillWG.Done()
		p.visitChannel <- event
	}()
	return nil
}

// worker обрабатывает события визитов из канала
func (p *visitProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер визитов запущен", zap.Int("id", id))

	for {
		select {
		case <-p.ctx.Done():
			// Дорабатываем то, что уже в буфере
			for {
				select {
				case event := <-p.visitChannel:
					p.processVisit(event)
				default:
					p.logger.Debug("Воркер визитов остановлен", zap.Int("id", id))
					return
				}
			}

		case event, ok := <-p.visitChannel:
			if !ok {
				return
			}
			p.processVisit(event)
		}
	}
}

// processVisit обогащает и записывает одно событие визита с retry
// логикой. Исходный IP живёт только внутри этого вызова: в хранилище
// попадает отпечаток и грубая география.
func (p *visitProcessor) processVisit(event *models.VisitEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	location := p.locator.Locate(event.SourceIP)
	browser, platform := ClassifyUserAgent(event.UserAgent)

	visit := &models.Visit{
		LinkID:        event.LinkID,
		AliasID:       event.AliasID,
		AliasName:     event.AliasName,
		Fingerprint:   visitFingerprint(event),
		Country:       location.Country,
		StateCode:     location.StateCode,
		UserAgent:     event.UserAgent,
		Browser:       browser,
		Platform:      platform,
		RefererDomain: ExtractDomain(event.Referer),
		VisitedAt:     time.Now().UTC(),
	}
	visit.FirstTime = p.isFirstTime(ctx, visit)

	var err error
	for i := 0; i < maxRetries; i++ {
		if err = p.visitRepo.Insert(ctx, visit); err == nil {
			p.bumpCounters(ctx, visit)
			return
		}
		if i < maxRetries-1 {
			p.logger.Debug("Повторная попытка записи визита",
				zap.String("alias", event.AliasName),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	p.logger.Error("Не удалось записать визит после всех попыток",
		zap.String("alias", event.AliasName),
		zap.Error(err),
	)

	select {
	case p.failures <- models.VisitFailure{Event: *event, Err: err}:
	default:
		// Канал отказов переполнен; ошибка уже в логе
	}
}

// isFirstTime отвечает, первый ли это визит отпечатка за окно
// уникальности. Основной путь — SETNX в Redis; при его отказе
// спрашиваем журнал визитов.
func (p *visitProcessor) isFirstTime(ctx context.Context, visit *models.Visit) bool {
	first, err := p.cacheRepo.FirstVisit(ctx, visit.AliasID, visit.Fingerprint, p.uniqueWindow)
	if err == nil {
		return first
	}

	p.logger.Warn("Redis недоступен, проверяем уникальность по журналу", zap.Error(err))

	seen, err := p.visitRepo.HasRecentVisit(ctx, visit.AliasID, visit.Fingerprint, p.uniqueWindow)
	if err != nil {
		p.logger.Warn("Не удалось проверить уникальность визита", zap.Error(err))
		return false
	}
	return !seen
}

// bumpCounters инкрементирует денормализованные счётчики ссылки.
// Ошибка не критична: фоновая сверка выправит расхождение.
func (p *visitProcessor) bumpCounters(ctx context.Context, visit *models.Visit) {
	if err := p.linkRepo.IncrementCounters(ctx, visit.LinkID, visit.FirstTime); err != nil {
		p.logger.Warn("Не удалось обновить счётчики ссылки",
			zap.Int64("link_id", visit.LinkID),
			zap.Error(err),
		)
	}
}

// reconciler периодически сверяет счётчики ссылок с журналом визитов
func (p *visitProcessor) reconciler() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.reconcileInt)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			fixed, err := p.visitRepo.ReconcileCounters(ctx)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					p.logger.Warn("Сверка счётчиков не удалась", zap.Error(err))
				}
				continue
			}
			if fixed > 0 {
				p.logger.Info("Счётчики ссылок сверены", zap.Int64("fixed", fixed))
			}
		}
	}
}

// visitFingerprint строит анонимный отпечаток посетителя. Сырой адрес
// в него входит, но наружу не выходит.
func visitFingerprint(event *models.VisitEvent) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", event.SourceIP, event.UserAgent, event.AliasName)))
	return hex.EncodeToString(sum[:])
}
