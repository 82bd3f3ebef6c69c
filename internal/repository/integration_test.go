package repository_test

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/linkhub/internal/config"
	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testEnv хранит окружение для интеграционных тестов
type testEnv struct {
	db             *repository.PostgresDB
	redis          *repository.RedisDB
	dbContainer    testcontainers.Container
	redisContainer testcontainers.Container

	links  repository.LinkRepository
	grants repository.GrantRepository
	orgs   repository.OrgRepository
	visits repository.VisitRepository
	cache  repository.CacheRepository
}

// setupTestEnv поднимает PostgreSQL и Redis контейнеры и накатывает схему
func setupTestEnv(t *testing.T) *testEnv {
	ctx := t.Context()

	dbContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("linkhub"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
	)
	require.NoError(t, err)

	dbHost, err := dbContainer.Host(ctx)
	require.NoError(t, err)
	dbPort, err := dbContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	db, err := repository.NewPostgresDB(config.DBConfig{
		Host:     dbHost,
		Port:     dbPort.Port(),
		User:     "user",
		Password: "password",
		Name:     "linkhub",
	})
	require.NoError(t, err)

	// Накатываем схему
	schema, err := os.ReadFile("../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	redisClient, err := repository.NewRedisClient(config.RedisConfig{
		Host: redisHost,
		Port: redisPort.Port(),
	})
	require.NoError(t, err)

	return &testEnv{
		db:             db,
		redis:          redisClient,
		dbContainer:    dbContainer,
		redisContainer: redisContainer,
		links:          repository.NewLinkRepository(db),
		grants:         repository.NewGrantRepository(db),
		orgs:           repository.NewOrgRepository(db),
		visits:         repository.NewVisitRepository(db),
		cache:          repository.NewCacheRepository(redisClient),
	}
}

func (env *testEnv) teardown(t *testing.T) {
	env.db.Close()
	env.redis.Close()

	ctx := t.Context()
	if env.dbContainer != nil {
		env.dbContainer.Terminate(ctx)
	}
	if env.redisContainer != nil {
		env.redisContainer.Terminate(ctx)
	}
}

// TestIntegration_CreateLinkWithAlias проверяет атомарное создание и конфликт имён
func TestIntegration_CreateLinkWithAlias(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)
	ctx := context.Background()

	link := &models.Link{Title: "Docs", OriginalURL: "https://example.com/docs", Owner: "alice"}
	alias := &models.Alias{Name: "docs-2026"}
	require.NoError(t, env.links.CreateLinkWithAlias(ctx, link, alias))
	assert.NotZero(t, link.ID)
	assert.NotZero(t, alias.ID)

	t.Run("конфликт имени алиаса откатывает транзакцию целиком", func(t *testing.T) {
		dup := &models.Link{OriginalURL: "https://example.com/other", Owner: "bob"}
		err := env.links.CreateLinkWithAlias(ctx, dup, &models.Alias{Name: "docs-2026"})
		require.ErrorIs(t, err, repository.ErrAliasExists)

		// Ссылка из неудавшейся транзакции не должна существовать
		links, err := env.links.ListAccessible(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("разрешение по имени алиаса", func(t *testing.T) {
		res, err := env.links.GetByAliasName(ctx, "docs-2026")
		require.NoError(t, err)
		assert.Equal(t, link.ID, res.Link.ID)
		assert.Equal(t, alias.ID, res.AliasID)
	})

	t.Run("имя скрытого алиаса освобождается", func(t *testing.T) {
		require.NoError(t, env.links.SoftDeleteAlias(ctx, alias.ID))

		_, err := env.links.GetByAliasName(ctx, "docs-2026")
		assert.ErrorIs(t, err, repository.ErrAliasNotFound)

		again := &models.Alias{LinkID: link.ID, Name: "docs-2026"}
		assert.NoError(t, env.links.AddAlias(ctx, again))
	})
}

// TestIntegration_ConcurrentAliasClaim: за одно имя борются несколько транзакций
func TestIntegration_ConcurrentAliasClaim(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link := &models.Link{OriginalURL: "https://example.com/race", Owner: "alice"}
			errs <- env.links.CreateLinkWithAlias(ctx, link, &models.Alias{Name: "contested"})
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, repository.ErrAliasExists)
		}
	}
	assert.Equal(t, 1, succeeded)
}

// TestIntegration_ListAccessible проверяет владение, прямые и орг-гранты
func TestIntegration_ListAccessible(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)
	ctx := context.Background()

	owned := &models.Link{OriginalURL: "https://example.com/own", Owner: "bob"}
	require.NoError(t, env.links.CreateLinkWithAlias(ctx, owned, &models.Alias{Name: "own1"}))

	shared := &models.Link{OriginalURL: "https://example.com/shared", Owner: "alice"}
	require.NoError(t, env.links.CreateLinkWithAlias(ctx, shared, &models.Alias{Name: "shared1"}))
	require.NoError(t, env.grants.Upsert(ctx, &models.Grant{
		LinkID: shared.ID, SubjectType: models.SubjectUser, Subject: "bob", Permission: models.PermissionViewer,
	}))

	viaOrg := &models.Link{OriginalURL: "https://example.com/org", Owner: "alice"}
	require.NoError(t, env.links.CreateLinkWithAlias(ctx, viaOrg, &models.Alias{Name: "org1"}))

	org := &models.Organization{Name: "lab"}
	require.NoError(t, env.orgs.Create(ctx, org))
	require.NoError(t, env.orgs.AddMember(ctx, org.ID, "bob", false))
	require.NoError(t, env.grants.Upsert(ctx, &models.Grant{
		LinkID: viaOrg.ID, SubjectType: models.SubjectOrg, Subject: strconv.FormatInt(org.ID, 10), Permission: models.PermissionEditor,
	}))

	unrelated := &models.Link{OriginalURL: "https://example.com/hidden", Owner: "alice"}
	require.NoError(t, env.links.CreateLinkWithAlias(ctx, unrelated, &models.Alias{Name: "hidden1"}))

	links, err := env.links.ListAccessible(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, links, 3)

	ids := map[int64]bool{}
	for _, l := range links {
		ids[l.ID] = true
	}
	assert.True(t, ids[owned.ID])
	assert.True(t, ids[shared.ID])
	assert.True(t, ids[viaOrg.ID])
	assert.False(t, ids[unrelated.ID])
}

// TestIntegration_VisitAggregations проверяет SQL агрегации журнала визитов
func TestIntegration_VisitAggregations(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)
	ctx := context.Background()

	link := &models.Link{OriginalURL: "https://example.com/page", Owner: "alice"}
	alias := &models.Alias{Name: "page1"}
	require.NoError(t, env.links.CreateLinkWithAlias(ctx, link, alias))

	day1 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	seed := []models.Visit{
		{Fingerprint: "fp1", Country: "United States", StateCode: "NJ", Browser: "Chrome", Platform: "Windows", RefererDomain: "example.org", FirstTime: true, VisitedAt: day1},
		{Fingerprint: "fp1", Country: "United States", StateCode: "NJ", Browser: "Chrome", Platform: "Windows", VisitedAt: day1},
		{Fingerprint: "fp2", Country: "Germany", StateCode: "unknown", Browser: "Firefox", Platform: "Linux", FirstTime: true, VisitedAt: day2},
		{Fingerprint: "fp3", Country: "unknown", StateCode: "unknown", Browser: "unknown", Platform: "unknown", FirstTime: true, VisitedAt: day2},
	}
	for i := range seed {
		seed[i].LinkID = link.ID
		seed[i].AliasID = alias.ID
		seed[i].AliasName = alias.Name
		require.NoError(t, env.visits.Insert(ctx, &seed[i]))
	}

	filter := repository.VisitFilter{LinkID: link.ID}

	t.Run("по дням", func(t *testing.T) {
		daily, err := env.visits.GetDailyStats(ctx, filter)
		require.NoError(t, err)
		require.Len(t, daily, 2)
		assert.Equal(t, "2026-08-30", daily[0].Day)
		assert.Equal(t, int64(2), daily[0].Total)
		assert.Equal(t, int64(1), daily[0].FirstTime)
	})

	t.Run("по странам без unknown", func(t *testing.T) {
		countries, err := env.visits.GetGeoStats(ctx, filter, "country")
		require.NoError(t, err)
		require.Len(t, countries, 2)
		assert.Equal(t, "United States", countries[0].Location)
		assert.Equal(t, int64(2), countries[0].Visits)
	})

	t.Run("по штатам США", func(t *testing.T) {
		states, err := env.visits.GetGeoStats(ctx, filter, "state")
		require.NoError(t, err)
		require.Len(t, states, 1)
		assert.Equal(t, "NJ", states[0].Location)
	})

	t.Run("по клиентам", func(t *testing.T) {
		clients, err := env.visits.GetClientStats(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(2), clients.Browser["Chrome"])
		assert.Equal(t, int64(1), clients.Platform["Linux"])
		assert.Equal(t, int64(1), clients.Browser["unknown"])
	})

	t.Run("по источникам переходов с корзиной unknown", func(t *testing.T) {
		referers, err := env.visits.GetRefererStats(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), referers["example.org"])
		assert.Equal(t, int64(3), referers["unknown"])
	})

	t.Run("окно уникальности по журналу", func(t *testing.T) {
		seen, err := env.visits.HasRecentVisit(ctx, alias.ID, "fp1", 240*time.Hour*365)
		require.NoError(t, err)
		assert.True(t, seen)

		seen, err = env.visits.HasRecentVisit(ctx, alias.ID, "fp-none", time.Hour)
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("сверка счётчиков", func(t *testing.T) {
		fixed, err := env.visits.ReconcileCounters(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), fixed)

		stored, err := env.links.GetLinkByID(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), stored.Visits)
		assert.Equal(t, int64(3), stored.UniqueVisits)

		// Повторная сверка ничего не меняет
		fixed, err = env.visits.ReconcileCounters(ctx)
		require.NoError(t, err)
		assert.Zero(t, fixed)
	})
}

// TestIntegration_Cache проверяет кэш разрешений и окно отпечатков в Redis
func TestIntegration_Cache(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)
	ctx := context.Background()

	res := &models.Resolution{
		Link:    models.Link{ID: 1, OriginalURL: "https://example.com/page", Owner: "alice"},
		AliasID: 7,
		Alias:   "page1",
	}

	t.Run("кэш разрешений", func(t *testing.T) {
		_, err := env.cache.GetResolution(ctx, "page1")
		assert.ErrorIs(t, err, repository.ErrCacheMiss)

		require.NoError(t, env.cache.SetResolution(ctx, "page1", res, time.Minute))

		cached, err := env.cache.GetResolution(ctx, "page1")
		require.NoError(t, err)
		assert.Equal(t, res.Link.OriginalURL, cached.Link.OriginalURL)
		assert.Equal(t, res.AliasID, cached.AliasID)

		require.NoError(t, env.cache.DeleteResolution(ctx, "page1"))
		_, err = env.cache.GetResolution(ctx, "page1")
		assert.ErrorIs(t, err, repository.ErrCacheMiss)
	})

	t.Run("окно отпечатков через SETNX", func(t *testing.T) {
		first, err := env.cache.FirstVisit(ctx, 7, "fp1", time.Minute)
		require.NoError(t, err)
		assert.True(t, first)

		first, err = env.cache.FirstVisit(ctx, 7, "fp1", time.Minute)
		require.NoError(t, err)
		assert.False(t, first)

		// Другой алиас — отдельное окно
		first, err = env.cache.FirstVisit(ctx, 8, "fp1", time.Minute)
		require.NoError(t, err)
		assert.True(t, first)
	})

	t.Run("окно истекает", func(t *testing.T) {
		first, err := env.cache.FirstVisit(ctx, 9, "fp2", time.Second)
		require.NoError(t, err)
		require.True(t, first)

		time.Sleep(1500 * time.Millisecond)

		first, err = env.cache.FirstVisit(ctx, 9, "fp2", time.Second)
		require.NoError(t, err)
		assert.True(t, first)
	})
}

// TestIntegration_Organizations проверяет каскад членства при удалении
func TestIntegration_Organizations(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)
	ctx := context.Background()

	org := &models.Organization{Name: "lab"}
	require.NoError(t, env.orgs.Create(ctx, org))

	t.Run("дубликат имени", func(t *testing.T) {
		err := env.orgs.Create(ctx, &models.Organization{Name: "lab"})
		assert.ErrorIs(t, err, repository.ErrOrgExists)
	})

	require.NoError(t, env.orgs.AddMember(ctx, org.ID, "alice", true))
	require.NoError(t, env.orgs.AddMember(ctx, org.ID, "bob", false))

	t.Run("членство и админство", func(t *testing.T) {
		isMember, err := env.orgs.IsMember(ctx, org.ID, "bob")
		require.NoError(t, err)
		assert.True(t, isMember)

		isAdmin, err := env.orgs.IsAdmin(ctx, org.ID, "bob")
		require.NoError(t, err)
		assert.False(t, isAdmin)

		require.NoError(t, env.orgs.SetAdmin(ctx, org.ID, "bob", true))
		isAdmin, err = env.orgs.IsAdmin(ctx, org.ID, "bob")
		require.NoError(t, err)
		assert.True(t, isAdmin)
	})

	t.Run("удаление уносит участников каскадом", func(t *testing.T) {
		require.NoError(t, env.orgs.Delete(ctx, org.ID))

		isMember, err := env.orgs.IsMember(ctx, org.ID, "alice")
		require.NoError(t, err)
		assert.False(t, isMember)

		orgs, err := env.orgs.ListForMember(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, orgs)
	})
}
