package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"authd.dev/internal/authz"
	"authd.dev/internal/session"
	"authd.dev/internal/usertoken"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestRotateActiveGuardsStatus(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)
	now := time.Now().UTC()

	// The status check runs in the same statement as the write.
	mock.ExpectExec("update sessions").
		WithArgs("s1", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Sessions().RotateActive(ctx, "s1", "hash", now.Add(time.Hour), now); err != nil {
		t.Fatalf("RotateActive: %v", err)
	}

	mock.ExpectExec("update sessions").
		WithArgs("s1", "hash", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Sessions().RotateActive(ctx, "s1", "hash", now.Add(time.Hour), now); !errors.Is(err, session.ErrNotActive) {
		t.Fatalf("expected ErrNotActive for a dead row, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMapsUniqueViolationToConflict(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)

	mock.ExpectExec("insert into organizations").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	err := store.Organizations(ctx).Create(ctx, &authz.Organization{ID: "o1", Name: "Acme", Slug: "acme"})
	if !errors.Is(err, authz.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	mock.ExpectExec("insert into team_memberships").
		WillReturnError(&pgconn.PgError{Code: "23503"})
	err = store.Teams(ctx).UpsertMember(ctx, &authz.TeamMembership{TeamID: "t1", UserID: "missing"})
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for fk violation, got %v", err)
	}
}

func TestFindUserNotFound(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)

	mock.ExpectQuery("select id, email, display_name, status.*from users").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := store.Users(ctx).FindByEmail(ctx, "Nobody@Example.com")
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPermissionKeysByScope(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"permission_key"}).AddRow("org:invite").AddRow("org:teams")
	mock.ExpectQuery("select distinct rp.permission_key.*organization_memberships").
		WithArgs("o1", "u1").
		WillReturnRows(rows)
	keys, err := store.PermissionKeys(ctx, "u1", authz.OrganizationScope("o1"))
	if err != nil {
		t.Fatalf("PermissionKeys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "org:invite" {
		t.Fatalf("unexpected keys %v", keys)
	}

	mock.ExpectQuery("select distinct rp.permission_key.*team_memberships").
		WithArgs("t1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}))
	if _, err := store.PermissionKeys(ctx, "u1", authz.TeamScope("t1")); err != nil {
		t.Fatalf("PermissionKeys team: %v", err)
	}

	mock.ExpectQuery("select distinct rp.permission_key.*organization_id is null and a.team_id is null").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_key"}))
	if _, err := store.PermissionKeys(ctx, "u1", authz.GlobalScope()); err != nil {
		t.Fatalf("PermissionKeys global: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTxCommitsAndReusesTransaction(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("update roles set is_default = false").
		WithArgs("o1", "organization").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("update roles set is_default = true").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(ctx, func(tx authz.Store) error {
		if err := tx.Roles(ctx).ClearDefault(ctx, "o1", authz.RoleScopeOrganization); err != nil {
			return err
		}
		// A nested call must reuse the open transaction, not begin again.
		return tx.WithinTx(ctx, func(inner authz.Store) error {
			return inner.Roles(ctx).SetDefault(ctx, "r1")
		})
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("update roles set is_default = false").
		WithArgs("o1", "organization").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := store.WithinTx(ctx, func(tx authz.Store) error {
		return tx.Roles(ctx).ClearDefault(ctx, "o1", authz.RoleScopeOrganization)
	})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateTeamMemberRolePatch(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)

	// Clearing a role sends NULL to the fk-constrained column, never ''.
	empty := ""
	mock.ExpectExec("update team_memberships").
		WithArgs("t1", "u1", true, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Teams(ctx).UpdateMember(ctx, "t1", "u1", authz.TeamMemberUpdate{RoleID: &empty}); err != nil {
		t.Fatalf("clear role: %v", err)
	}

	lead := "r-lead"
	mock.ExpectExec("update team_memberships").
		WithArgs("t1", "u1", true, "r-lead", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Teams(ctx).UpdateMember(ctx, "t1", "u1", authz.TeamMemberUpdate{RoleID: &lead}); err != nil {
		t.Fatalf("set role: %v", err)
	}

	// A nil role patch leaves the column untouched.
	manager := true
	mock.ExpectExec("update team_memberships").
		WithArgs("t1", "u1", false, nil, true, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Teams(ctx).UpdateMember(ctx, "t1", "u1", authz.TeamMemberUpdate{IsManager: &manager}); err != nil {
		t.Fatalf("patch manager: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConsumeTokenExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("update user_tokens set consumed_at").
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Tokens().Consume(ctx, "t1", now); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	mock.ExpectExec("update user_tokens set consumed_at").
		WithArgs("t1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Tokens().Consume(ctx, "t1", now); !errors.Is(err, usertoken.ErrInvalid) {
		t.Fatalf("second consume: %v", err)
	}
}
