package service_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/service"
	"github.com/SergeiKhy/linkhub/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statsEnv struct {
	links  *mocks.MockLinkRepository
	grants *mocks.MockGrantRepository
	visits *mocks.MockVisitRepository
	stats  service.StatsService
}

func setupStatsEnv() *statsEnv {
	links := mocks.NewMockLinkRepository()
	grants := mocks.NewMockGrantRepository()
	orgs := mocks.NewMockOrgRepository()
	visits := mocks.NewMockVisitRepository()
	links.Grants = grants
	logger, _ := zap.NewDevelopment()

	acl := service.NewACLService(links, grants, orgs, logger)
	return &statsEnv{
		links:  links,
		grants: grants,
		visits: visits,
		stats:  service.NewStatsService(visits, links, acl),
	}
}

func (env *statsEnv) seedLinkWithAlias(t *testing.T) (*models.Link, *models.Alias) {
	t.Helper()
	link := &models.Link{OriginalURL: "https://example.com/page", Owner: "alice"}
	alias := &models.Alias{Name: "abc123"}
	require.NoError(t, env.links.CreateLinkWithAlias(context.Background(), link, alias))
	return link, alias
}

func (env *statsEnv) seedVisit(t *testing.T, v models.Visit) {
	t.Helper()
	if v.VisitedAt.IsZero() {
		v.VisitedAt = time.Now().UTC()
	}
	require.NoError(t, env.visits.Insert(context.Background(), &v))
}

// TestStatsService_PermissionGate: аналитика доступна только с правом просмотра
func TestStatsService_PermissionGate(t *testing.T) {
	env := setupStatsEnv()
	ctx := context.Background()
	link, _ := env.seedLinkWithAlias(t)

	_, err := env.stats.DailyStats(ctx, models.Subject{NetID: "stranger"}, link.ID, nil)
	assert.ErrorIs(t, err, service.ErrForbidden)

	// Viewer достаточно
	require.NoError(t, env.grants.Upsert(ctx, &models.Grant{
		LinkID:      link.ID,
		SubjectType: models.SubjectUser,
		Subject:     "bob",
		Permission:  models.PermissionViewer,
	}))
	_, err = env.stats.DailyStats(ctx, models.Subject{NetID: "bob"}, link.ID, nil)
	assert.NoError(t, err)
}

// TestStatsService_Daily: агрегация по дням с разделением первых визитов
func TestStatsService_Daily(t *testing.T) {
	env := setupStatsEnv()
	ctx := context.Background()
	link, alias := env.seedLinkWithAlias(t)
	owner := models.Subject{NetID: "alice"}

	day1 := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, FirstTime: true, VisitedAt: day1})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, FirstTime: false, VisitedAt: day1})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, FirstTime: true, VisitedAt: day2})

	daily, err := env.stats.DailyStats(ctx, owner, link.ID, nil)
	require.NoError(t, err)
	require.Len(t, daily, 2)

	assert.Equal(t, "2026-08-30", daily[0].Day)
	assert.Equal(t, int64(2), daily[0].Total)
	assert.Equal(t, int64(1), daily[0].FirstTime)
	assert.Equal(t, "2026-08-31", daily[1].Day)
	assert.Equal(t, int64(1), daily[1].Total)
}

// TestStatsService_AliasScoping: выборку можно сузить до одного алиаса
func TestStatsService_AliasScoping(t *testing.T) {
	env := setupStatsEnv()
	ctx := context.Background()
	link, alias := env.seedLinkWithAlias(t)
	owner := models.Subject{NetID: "alice"}

	second := &models.Alias{LinkID: link.ID, Name: "second"}
	require.NoError(t, env.links.AddAlias(ctx, second))

	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, FirstTime: true})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: second.ID, FirstTime: true})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: second.ID})

	all, err := env.stats.DailyStats(ctx, owner, link.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(3), all[0].Total)

	scoped, err := env.stats.DailyStats(ctx, owner, link.ID, &second.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, int64(2), scoped[0].Total)

	t.Run("чужой алиас не подставить", func(t *testing.T) {
		otherLink := &models.Link{OriginalURL: "https://example.com/other", Owner: "alice"}
		otherAlias := &models.Alias{Name: "other"}
		require.NoError(t, env.links.CreateLinkWithAlias(ctx, otherLink, otherAlias))

		_, err := env.stats.DailyStats(ctx, owner, link.ID, &otherAlias.ID)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

// TestStatsService_Geo: страны и штаты США считаются раздельно,
// неизвестная география не попадает в выдачу
func TestStatsService_Geo(t *testing.T) {
	env := setupStatsEnv()
	ctx := context.Background()
	link, alias := env.seedLinkWithAlias(t)
	owner := models.Subject{NetID: "alice"}

	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, Country: "United States", StateCode: "NJ"})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, Country: "United States", StateCode: "NJ"})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, Country: "United States", StateCode: "NY"})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, Country: "Germany", StateCode: "unknown"})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, Country: "unknown", StateCode: "unknown"})

	countries, states, err := env.stats.GeoStats(ctx, owner, link.ID, nil)
	require.NoError(t, err)

	require.Len(t, countries, 2)
	assert.Equal(t, "United States", countries[0].Location)
	assert.Equal(t, int64(3), countries[0].Visits)

	require.Len(t, states, 2)
	assert.Equal(t, "NJ", states[0].Location)
	assert.Equal(t, int64(2), states[0].Visits)
}

// TestStatsService_Clients: разбивка по браузерам и платформам
func TestStatsService_Clients(t *testing.T) {
	env := setupStatsEnv()
	ctx := context.Background()
	link, alias := env.seedLinkWithAlias(t)
	owner := models.Subject{NetID: "alice"}

	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, Browser: "Chrome", Platform: "Windows"})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, Browser: "Chrome", Platform: "Android"})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, Browser: "unknown", Platform: "unknown"})

	clients, err := env.stats.ClientStats(ctx, owner, link.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), clients.Browser["Chrome"])
	assert.Equal(t, int64(1), clients.Browser["unknown"])
	assert.Equal(t, int64(1), clients.Platform["Windows"])
	assert.Equal(t, int64(1), clients.Platform["Android"])
}

// TestStatsService_Referers: пустые рефереры образуют корзину unknown
// только когда есть хоть один именованный домен
func TestStatsService_Referers(t *testing.T) {
	env := setupStatsEnv()
	ctx := context.Background()
	link, alias := env.seedLinkWithAlias(t)
	owner := models.Subject{NetID: "alice"}

	t.Run("одни пустые рефереры — пустая выдача", func(t *testing.T) {
		env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID})
		env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID})

		referers, err := env.stats.RefererStats(ctx, owner, link.ID, nil)
		require.NoError(t, err)
		assert.Empty(t, referers)
	})

	t.Run("с именованным доменом появляется корзина unknown", func(t *testing.T) {
		env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, RefererDomain: "example.org"})

		referers, err := env.stats.RefererStats(ctx, owner, link.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), referers["example.org"])
		assert.Equal(t, int64(2), referers["unknown"])
	})
}

// TestStatsService_Overview: сводка отдаёт счётчики и живые алиасы
func TestStatsService_Overview(t *testing.T) {
	env := setupStatsEnv()
	ctx := context.Background()
	link, alias := env.seedLinkWithAlias(t)
	owner := models.Subject{NetID: "alice"}

	require.NoError(t, env.links.IncrementCounters(ctx, link.ID, true))
	require.NoError(t, env.links.IncrementCounters(ctx, link.ID, false))

	overview, err := env.stats.Overview(ctx, owner, link.ID)
	require.NoError(t, err)

	assert.Equal(t, link.ID, overview.LinkID)
	assert.Equal(t, int64(2), overview.Visits)
	assert.Equal(t, int64(1), overview.UniqueVisits)
	require.Len(t, overview.Aliases, 1)
	assert.Equal(t, alias.Name, overview.Aliases[0].Name)
}

// TestStatsService_DeletedAliasKeepsHistory: скрытие алиаса не отрезает
// его историю от аналитики
func TestStatsService_DeletedAliasKeepsHistory(t *testing.T) {
	env := setupStatsEnv()
	ctx := context.Background()
	link, alias := env.seedLinkWithAlias(t)
	owner := models.Subject{NetID: "alice"}

	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID, FirstTime: true})
	env.seedVisit(t, models.Visit{LinkID: link.ID, AliasID: alias.ID})

	require.NoError(t, env.links.SoftDeleteAlias(ctx, alias.ID))

	daily, err := env.stats.DailyStats(ctx, owner, link.ID, &alias.ID)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, int64(2), daily[0].Total)
	assert.Equal(t, int64(1), daily[0].FirstTime)
}
