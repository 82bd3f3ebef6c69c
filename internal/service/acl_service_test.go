package service_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/SergeiKhy/linkhub/internal/service"
	"github.com/SergeiKhy/linkhub/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type aclEnv struct {
	links  *mocks.MockLinkRepository
	grants *mocks.MockGrantRepository
	orgs   *mocks.MockOrgRepository
	acl    service.ACLService
}

func setupACLEnv() *aclEnv {
	links := mocks.NewMockLinkRepository()
	grants := mocks.NewMockGrantRepository()
	orgs := mocks.NewMockOrgRepository()
	links.Grants = grants
	logger, _ := zap.NewDevelopment()

	return &aclEnv{
		links:  links,
		grants: grants,
		orgs:   orgs,
		acl:    service.NewACLService(links, grants, orgs, logger),
	}
}

// seedLink создаёт ссылку с владельцем напрямую через репозиторий
func (env *aclEnv) seedLink(t *testing.T, owner string) *models.Link {
	t.Helper()
	link := &models.Link{OriginalURL: "https://example.com/page", Owner: owner}
	require.NoError(t, env.links.CreateLinkWithAlias(context.Background(), link, nil))
	return link
}

// grantViewer/grantEditor — короткие сидеры грантов
func (env *aclEnv) grant(t *testing.T, linkID int64, subjectType, subject string, perm models.Permission) {
	t.Helper()
	require.NoError(t, env.grants.Upsert(context.Background(), &models.Grant{
		LinkID:      linkID,
		SubjectType: subjectType,
		Subject:     subject,
		Permission:  perm,
	}))
}

// TestACL_EffectivePermission проверяет вычисление действующего уровня
func TestACL_EffectivePermission(t *testing.T) {
	env := setupACLEnv()
	ctx := context.Background()
	link := env.seedLink(t, "alice")

	t.Run("владелец", func(t *testing.T) {
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "alice"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionOwner, perm)
	})

	t.Run("администратор сервиса", func(t *testing.T) {
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "root", Admin: true})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionOwner, perm)
	})

	t.Run("посторонний", func(t *testing.T) {
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "mallory"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionNone, perm)
	})

	t.Run("прямой viewer", func(t *testing.T) {
		env.grant(t, link.ID, models.SubjectUser, "bob", models.PermissionViewer)
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionViewer, perm)
	})

	t.Run("несуществующая ссылка", func(t *testing.T) {
		_, err := env.acl.EffectivePermission(ctx, 9999, models.Subject{NetID: "alice"})
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

// TestACL_OrgPath: доступ через организацию, максимум по всем путям
func TestACL_OrgPath(t *testing.T) {
	env := setupACLEnv()
	ctx := context.Background()
	link := env.seedLink(t, "alice")

	org, err := env.acl.CreateOrganization(ctx, models.Subject{NetID: "lead", PowerUser: true}, "lab")
	require.NoError(t, err)
	require.NoError(t, env.orgs.AddMember(ctx, org.ID, "bob", false))

	orgSubject := strconv.FormatInt(org.ID, 10)
	env.grant(t, link.ID, models.SubjectOrg, orgSubject, models.PermissionEditor)

	t.Run("участник получает уровень гранта организации", func(t *testing.T) {
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionEditor, perm)
	})

	t.Run("не участнику орг-грант ничего не даёт", func(t *testing.T) {
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "mallory"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionNone, perm)
	})

	t.Run("берётся максимум из прямого и орг-пути", func(t *testing.T) {
		// Прямой viewer не понижает editor через организацию
		env.grant(t, link.ID, models.SubjectUser, "bob", models.PermissionViewer)
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionEditor, perm)
	})

	t.Run("выход из организации отрезает доступ сразу", func(t *testing.T) {
		require.NoError(t, env.orgs.RemoveMember(ctx, org.ID, "bob"))
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionViewer, perm) // остался прямой viewer
	})
}

// TestACL_OrgDeletionCutsAccess: удаление организации мгновенно гасит её гранты
func TestACL_OrgDeletionCutsAccess(t *testing.T) {
	env := setupACLEnv()
	ctx := context.Background()
	link := env.seedLink(t, "alice")

	lead := models.Subject{NetID: "lead", PowerUser: true}
	org, err := env.acl.CreateOrganization(ctx, lead, "lab")
	require.NoError(t, err)
	require.NoError(t, env.orgs.AddMember(ctx, org.ID, "bob", false))
	env.grant(t, link.ID, models.SubjectOrg, strconv.FormatInt(org.ID, 10), models.PermissionViewer)

	perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
	require.NoError(t, err)
	require.Equal(t, models.PermissionViewer, perm)

	require.NoError(t, env.acl.DeleteOrganization(ctx, lead, org.ID))

	perm, err = env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, models.PermissionNone, perm)
}

// TestACL_GrantRules проверяет, кто какой уровень может выдавать
func TestACL_GrantRules(t *testing.T) {
	env := setupACLEnv()
	ctx := context.Background()
	link := env.seedLink(t, "alice")
	owner := models.Subject{NetID: "alice"}

	env.grant(t, link.ID, models.SubjectUser, "editor1", models.PermissionEditor)
	env.grant(t, link.ID, models.SubjectUser, "viewer1", models.PermissionViewer)

	t.Run("редактор выдаёт viewer", func(t *testing.T) {
		err := env.acl.Grant(ctx, link.ID, models.Subject{NetID: "editor1"}, &models.Grant{
			SubjectType: models.SubjectUser, Subject: "bob", Permission: models.PermissionViewer,
		})
		assert.NoError(t, err)
	})

	t.Run("редактор не выдаёт editor", func(t *testing.T) {
		err := env.acl.Grant(ctx, link.ID, models.Subject{NetID: "editor1"}, &models.Grant{
			SubjectType: models.SubjectUser, Subject: "bob", Permission: models.PermissionEditor,
		})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("viewer не выдаёт ничего", func(t *testing.T) {
		err := env.acl.Grant(ctx, link.ID, models.Subject{NetID: "viewer1"}, &models.Grant{
			SubjectType: models.SubjectUser, Subject: "bob", Permission: models.PermissionViewer,
		})
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("владелец выдаёт editor", func(t *testing.T) {
		err := env.acl.Grant(ctx, link.ID, owner, &models.Grant{
			SubjectType: models.SubjectUser, Subject: "carol", Permission: models.PermissionEditor,
		})
		assert.NoError(t, err)
	})

	t.Run("грант владельцу не допускается", func(t *testing.T) {
		err := env.acl.Grant(ctx, link.ID, owner, &models.Grant{
			SubjectType: models.SubjectUser, Subject: "alice", Permission: models.PermissionViewer,
		})
		assert.ErrorIs(t, err, service.ErrInvalidGrant)
	})

	t.Run("уровень owner грантом не выдаётся", func(t *testing.T) {
		err := env.acl.Grant(ctx, link.ID, owner, &models.Grant{
			SubjectType: models.SubjectUser, Subject: "bob", Permission: models.PermissionOwner,
		})
		assert.ErrorIs(t, err, service.ErrInvalidGrant)
	})

	t.Run("грант несуществующей организации", func(t *testing.T) {
		err := env.acl.Grant(ctx, link.ID, owner, &models.Grant{
			SubjectType: models.SubjectOrg, Subject: "4242", Permission: models.PermissionViewer,
		})
		assert.ErrorIs(t, err, service.ErrOrgNotFound)
	})

	t.Run("повторный грант обновляет уровень", func(t *testing.T) {
		require.NoError(t, env.acl.Grant(ctx, link.ID, owner, &models.Grant{
			SubjectType: models.SubjectUser, Subject: "bob", Permission: models.PermissionViewer,
		}))
		require.NoError(t, env.acl.Grant(ctx, link.ID, owner, &models.Grant{
			SubjectType: models.SubjectUser, Subject: "bob", Permission: models.PermissionEditor,
		}))
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionEditor, perm)
	})
}

// TestACL_Revoke проверяет отзыв грантов
func TestACL_Revoke(t *testing.T) {
	env := setupACLEnv()
	ctx := context.Background()
	link := env.seedLink(t, "alice")
	owner := models.Subject{NetID: "alice"}

	env.grant(t, link.ID, models.SubjectUser, "bob", models.PermissionViewer)

	t.Run("viewer не может отзывать", func(t *testing.T) {
		err := env.acl.Revoke(ctx, link.ID, models.Subject{NetID: "bob"}, models.SubjectUser, "bob")
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("владелец отзывает", func(t *testing.T) {
		require.NoError(t, env.acl.Revoke(ctx, link.ID, owner, models.SubjectUser, "bob"))
		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionNone, perm)
	})

	t.Run("отзыв отсутствующего гранта идемпотентен", func(t *testing.T) {
		assert.NoError(t, env.acl.Revoke(ctx, link.ID, owner, models.SubjectUser, "ghost"))
	})
}

// TestACL_TransferOwnership: передача владения понижает прежнего владельца до редактора
func TestACL_TransferOwnership(t *testing.T) {
	env := setupACLEnv()
	ctx := context.Background()
	link := env.seedLink(t, "alice")

	t.Run("не владелец не может передать", func(t *testing.T) {
		err := env.acl.TransferOwnership(ctx, link.ID, models.Subject{NetID: "bob"}, "bob")
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("передача самому себе — no-op", func(t *testing.T) {
		assert.NoError(t, env.acl.TransferOwnership(ctx, link.ID, models.Subject{NetID: "alice"}, "alice"))
	})

	t.Run("успешная передача", func(t *testing.T) {
		require.NoError(t, env.acl.TransferOwnership(ctx, link.ID, models.Subject{NetID: "alice"}, "bob"))

		perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionOwner, perm)

		perm, err = env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "alice"})
		require.NoError(t, err)
		assert.Equal(t, models.PermissionEditor, perm)
	})
}

// TestACL_Organizations проверяет жизненный цикл организаций
func TestACL_Organizations(t *testing.T) {
	env := setupACLEnv()
	ctx := context.Background()
	lead := models.Subject{NetID: "lead", PowerUser: true}

	t.Run("обычный пользователь не создаёт организации", func(t *testing.T) {
		_, err := env.acl.CreateOrganization(ctx, models.Subject{NetID: "plain"}, "lab")
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	org, err := env.acl.CreateOrganization(ctx, lead, "lab")
	require.NoError(t, err)

	t.Run("создатель — администратор организации", func(t *testing.T) {
		isAdmin, err := env.orgs.IsAdmin(ctx, org.ID, "lead")
		require.NoError(t, err)
		assert.True(t, isAdmin)
	})

	t.Run("дубликат имени", func(t *testing.T) {
		_, err := env.acl.CreateOrganization(ctx, lead, "lab")
		assert.ErrorIs(t, err, service.ErrOrgExists)
	})

	t.Run("участников добавляет только администратор", func(t *testing.T) {
		require.NoError(t, env.acl.AddMember(ctx, lead, org.ID, "bob", false))

		err := env.acl.AddMember(ctx, models.Subject{NetID: "bob"}, org.ID, "carol", false)
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("выйти из организации можно самому", func(t *testing.T) {
		assert.NoError(t, env.acl.RemoveMember(ctx, models.Subject{NetID: "bob"}, org.ID, "bob"))
	})

	t.Run("состав видят только участники", func(t *testing.T) {
		_, err := env.acl.ListMembers(ctx, models.Subject{NetID: "stranger"}, org.ID)
		assert.ErrorIs(t, err, service.ErrForbidden)

		members, err := env.acl.ListMembers(ctx, lead, org.ID)
		require.NoError(t, err)
		assert.Len(t, members, 1)
	})

	t.Run("удалить организацию может её администратор", func(t *testing.T) {
		err := env.acl.DeleteOrganization(ctx, models.Subject{NetID: "stranger"}, org.ID)
		assert.ErrorIs(t, err, service.ErrForbidden)

		assert.NoError(t, env.acl.DeleteOrganization(ctx, lead, org.ID))
	})
}

// TestACL_StorageFailureIsNotForbidden: сбой хранилища грантов должен
// подняться наверх как ошибка инфраструктуры, а не как отказ в доступе
func TestACL_StorageFailureIsNotForbidden(t *testing.T) {
	env := setupACLEnv()
	ctx := context.Background()
	link := env.seedLink(t, "alice")

	dbDown := errors.New("connection refused")
	env.grants.DirectErr = dbDown
	bob := models.Subject{NetID: "bob"}

	_, err := env.acl.EffectivePermission(ctx, link.ID, bob)
	require.ErrorIs(t, err, dbDown)

	err = env.acl.CheckPermission(ctx, link.ID, bob, models.PermissionViewer)
	require.ErrorIs(t, err, dbDown)
	assert.NotErrorIs(t, err, service.ErrForbidden)

	// Владельца сбой не задевает: его уровень не требует чтения грантов
	perm, err := env.acl.EffectivePermission(ctx, link.ID, models.Subject{NetID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, models.PermissionOwner, perm)
}
