package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// stubDB records statements and answers from canned values.
type stubDB struct {
	execErr  error
	execSQL  []string
	rowVals  []interface{}
	rowErr   error
	lastArgs []interface{}
}

func (s *stubDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	s.lastArgs = args
	return pgconn.CommandTag{}, s.execErr
}

func (s *stubDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDB) QueryRow(_ context.Context, _ string, args ...interface{}) pgx.Row {
	s.lastArgs = args
	return &stubRow{vals: s.rowVals, err: s.rowErr}
}

type stubRow struct {
	vals []interface{}
	err  error
}

func (r *stubRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan: want %d values, have %d", len(dest), len(r.vals))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.vals[i].(string)
		case *bool:
			*p = r.vals[i].(bool)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

func pgErr(code string) error {
	return fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: code, Message: "stub"})
}

func TestRoleRepository_InsertAssignment(t *testing.T) {
	cases := []struct {
		name    string
		execErr error
		want    domain.GrantOutcome
		wantErr bool
	}{
		{"inserted", nil, domain.GrantInserted, false},
		{"unique violation is already present", pgErr("23505"), domain.GrantAlreadyPresent, false},
		{"foreign key violation fails", pgErr("23503"), 0, true},
		{"connection error fails", errors.New("conn reset"), 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewRoleRepository(&stubDB{execErr: tc.execErr})
			got, err := repo.InsertAssignment(context.Background(), "u1", "r1")
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRoleRepository_HasRole(t *testing.T) {
	db := &stubDB{rowVals: []interface{}{true}}
	ok, err := NewRoleRepository(db).HasRole(context.Background(), "u1", "admin")
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
	if db.lastArgs[0] != "u1" || db.lastArgs[1] != "admin" {
		t.Fatalf("unexpected args: %v", db.lastArgs)
	}

	db = &stubDB{rowErr: pgErr("22P02")}
	ok, err = NewRoleRepository(db).HasRole(context.Background(), "not-a-uuid", "admin")
	if err != nil || ok {
		t.Fatalf("malformed id should not hold a role, got (%v, %v)", ok, err)
	}

	db = &stubDB{rowErr: errors.New("timeout")}
	if _, err := NewRoleRepository(db).HasRole(context.Background(), "u1", "admin"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRoleRepository_FindRoleByName(t *testing.T) {
	role, err := NewRoleRepository(&stubDB{rowVals: []interface{}{"r1", "admin"}}).
		FindRoleByName(context.Background(), "admin")
	if err != nil || role.ID != "r1" {
		t.Fatalf("unexpected (%+v, %v)", role, err)
	}

	_, err = NewRoleRepository(&stubDB{rowErr: pgx.ErrNoRows}).FindRoleByName(context.Background(), "admin")
	if err != domain.ErrRoleNotFound {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestUserRepository_Create(t *testing.T) {
	now := time.Now().UTC()
	db := &stubDB{rowVals: []interface{}{"u1", "a@example.com", "hash", now, now}}
	user, err := NewUserRepository(db).Create(context.Background(), &domain.User{Email: "a@example.com", PasswordHash: "hash"})
	if err != nil || user.ID != "u1" {
		t.Fatalf("unexpected (%+v, %v)", user, err)
	}

	_, err = NewUserRepository(&stubDB{rowErr: pgErr("23505")}).Create(context.Background(), &domain.User{Email: "a@example.com"})
	if err != domain.ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestUserRepository_FindByID(t *testing.T) {
	for _, rowErr := range []error{pgx.ErrNoRows, pgErr("22P02")} {
		_, err := NewUserRepository(&stubDB{rowErr: rowErr}).FindByID(context.Background(), "x")
		if err != domain.ErrUserNotFound {
			t.Fatalf("expected ErrUserNotFound for %v, got %v", rowErr, err)
		}
	}
}

func TestMigrate(t *testing.T) {
	db := &stubDB{}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "FUNCTION has_role") {
		t.Fatalf("expected the embedded schema to be executed")
	}
	if !strings.Contains(db.execSQL[0], "UNIQUE (user_id, role_id)") {
		t.Fatalf("schema must keep user_roles unique per (user_id, role_id)")
	}
}

func TestAuditRepository_InsertAudit(t *testing.T) {
	db := &stubDB{}
	err := NewAuditRepository(db).InsertAudit(context.Background(), &domain.AuditEvent{
		Actor: "a", Action: domain.AuditSignIn, Status: "granted", OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason := db.lastArgs[3].(*string); reason != nil {
		t.Fatalf("empty reason should be stored as NULL")
	}
}
