package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pawhaven/adoption-portal/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubDirectory struct {
	users map[string]domain.Identity
	err   error
	calls int
}

func (d *stubDirectory) FindUserByEmail(_ context.Context, email string) (*domain.Identity, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	id, ok := d.users[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &id, nil
}

// blockingDirectory parks lookups until release is closed, failing early only
// when the lookup's own context ends.
type blockingDirectory struct {
	user    domain.Identity
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (d *blockingDirectory) FindUserByEmail(ctx context.Context, _ string) (*domain.Identity, error) {
	d.mu.Lock()
	d.calls++
	first := d.calls == 1
	d.mu.Unlock()
	if first {
		close(d.entered)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.release:
	}
	id := d.user
	return &id, nil
}

// stubRoleRepo mirrors the unique (user_id, role_id) index of the real stores.
type stubRoleRepo struct {
	mu          sync.Mutex
	roles       map[string]string // name -> id
	assignments map[[2]string]bool

	hasAssignmentErr error
	insertErr        error
	// hideExisting makes HasAssignment miss rows, as when a concurrent
	// request inserted between the check and the insert.
	hideExisting bool
	inserts      int
}

func newStubRoleRepo() *stubRoleRepo {
	return &stubRoleRepo{
		roles:       map[string]string{domain.RoleAdmin: "role-admin", domain.RoleUser: "role-user"},
		assignments: make(map[[2]string]bool),
	}
}

func (r *stubRoleRepo) HasRole(_ context.Context, userID, roleName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignments[[2]string{userID, r.roles[roleName]}], nil
}

func (r *stubRoleRepo) FindRoleByName(_ context.Context, name string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.roles[name]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return &domain.Role{ID: id, Name: name}, nil
}

func (r *stubRoleRepo) EnsureRole(_ context.Context, name string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[name]; !ok {
		r.roles[name] = "role-" + name
	}
	return &domain.Role{ID: r.roles[name], Name: name}, nil
}

func (r *stubRoleRepo) HasAssignment(_ context.Context, userID, roleID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasAssignmentErr != nil {
		return false, r.hasAssignmentErr
	}
	if r.hideExisting {
		return false, nil
	}
	return r.assignments[[2]string{userID, roleID}], nil
}

func (r *stubRoleRepo) InsertAssignment(_ context.Context, userID, roleID string) (domain.GrantOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	key := [2]string{userID, roleID}
	if r.assignments[key] {
		return domain.GrantAlreadyPresent, nil
	}
	r.assignments[key] = true
	r.inserts++
	return domain.GrantInserted, nil
}

func (r *stubRoleRepo) rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assignments)
}

type stubRecorder struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *stubRecorder) Record(e domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *stubRecorder) last() domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// ---------------------------------------------------------------------------
// Helper
// ---------------------------------------------------------------------------

const bootstrapEmail = "owner@pawhaven.org"

func newBootstrapSvc() (*BootstrapService, *stubDirectory, *stubRoleRepo, *stubRecorder) {
	dir := &stubDirectory{users: map[string]domain.Identity{
		bootstrapEmail:      {ID: "u-owner", Email: bootstrapEmail},
		"other@example.com": {ID: "u-other", Email: "other@example.com"},
	}}
	roles := newStubRoleRepo()
	rec := &stubRecorder{}
	svc := NewBootstrapService(SingleEmailPolicy(bootstrapEmail), dir, roles, rec, zerolog.Nop())
	return svc, dir, roles, rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSingleEmailPolicy(t *testing.T) {
	p := SingleEmailPolicy(bootstrapEmail)
	if !p.Allowed(bootstrapEmail) {
		t.Fatalf("expected configured email to be allowed")
	}
	if p.Allowed("OWNER@pawhaven.org") {
		t.Fatalf("comparison must be exact")
	}
	if SingleEmailPolicy("").Allowed("") {
		t.Fatalf("empty policy must allow nobody")
	}
}

func TestBootstrap_GrantAdmin_Inserted(t *testing.T) {
	svc, _, roles, rec := newBootstrapSvc()

	outcome, err := svc.GrantAdmin(context.Background(), bootstrapEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != domain.GrantInserted {
		t.Fatalf("expected inserted, got %s", outcome)
	}
	ok, _ := roles.HasRole(context.Background(), "u-owner", domain.RoleAdmin)
	if !ok {
		t.Fatalf("expected has_role(admin) to be true after grant")
	}
	if e := rec.last(); e.Action != domain.AuditBootstrap || e.Status != "granted" {
		t.Fatalf("unexpected audit event: %+v", e)
	}
}

func TestBootstrap_GrantAdmin_Idempotent(t *testing.T) {
	svc, _, roles, _ := newBootstrapSvc()

	if _, err := svc.GrantAdmin(context.Background(), bootstrapEmail); err != nil {
		t.Fatalf("first grant failed: %v", err)
	}
	outcome, err := svc.GrantAdmin(context.Background(), bootstrapEmail)
	if err != nil {
		t.Fatalf("second grant failed: %v", err)
	}
	if outcome != domain.GrantAlreadyPresent {
		t.Fatalf("expected already_present, got %s", outcome)
	}
	if roles.rows() != 1 {
		t.Fatalf("expected exactly one assignment row, got %d", roles.rows())
	}
}

func TestBootstrap_GrantAdmin_Concurrent(t *testing.T) {
	svc, _, roles, _ := newBootstrapSvc()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.GrantAdmin(context.Background(), bootstrapEmail); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if roles.rows() != 1 {
		t.Fatalf("expected exactly one assignment row, got %d", roles.rows())
	}
}

func TestBootstrap_GrantAdmin_DuplicateKeyRace(t *testing.T) {
	svc, _, roles, _ := newBootstrapSvc()
	roles.assignments[[2]string{"u-owner", "role-admin"}] = true
	roles.hideExisting = true

	outcome, err := svc.GrantAdmin(context.Background(), bootstrapEmail)
	if err != nil {
		t.Fatalf("a duplicate insert must not fail: %v", err)
	}
	if outcome != domain.GrantAlreadyPresent {
		t.Fatalf("expected already_present, got %s", outcome)
	}
	if roles.inserts != 0 {
		t.Fatalf("expected no new rows, got %d", roles.inserts)
	}
}

func TestBootstrap_GrantAdmin_EmptyEmail(t *testing.T) {
	svc, dir, roles, _ := newBootstrapSvc()

	if _, err := svc.GrantAdmin(context.Background(), ""); !errors.Is(err, domain.ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
	if dir.calls != 0 || roles.rows() != 0 {
		t.Fatalf("expected no lookups and no mutations")
	}
}

func TestBootstrap_GrantAdmin_NotAllowListed(t *testing.T) {
	svc, dir, roles, rec := newBootstrapSvc()

	if _, err := svc.GrantAdmin(context.Background(), "other@example.com"); !errors.Is(err, domain.ErrEmailNotAllowed) {
		t.Fatalf("expected ErrEmailNotAllowed, got %v", err)
	}
	if dir.calls != 0 {
		t.Fatalf("a rejected email must not reach the user directory")
	}
	if roles.rows() != 0 {
		t.Fatalf("expected zero mutations, got %d rows", roles.rows())
	}
	if e := rec.last(); e.Status != "denied" || e.Reason != "not_allow_listed" {
		t.Fatalf("unexpected audit event: %+v", e)
	}
}

func TestBootstrap_GrantAdmin_UserNotFound(t *testing.T) {
	svc, dir, roles, _ := newBootstrapSvc()
	delete(dir.users, bootstrapEmail)

	if _, err := svc.GrantAdmin(context.Background(), bootstrapEmail); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if roles.rows() != 0 {
		t.Fatalf("expected zero mutations")
	}
}

func TestBootstrap_GrantAdmin_RoleMissing(t *testing.T) {
	svc, _, roles, _ := newBootstrapSvc()
	delete(roles.roles, domain.RoleAdmin)

	if _, err := svc.GrantAdmin(context.Background(), bootstrapEmail); !errors.Is(err, domain.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestBootstrap_GrantAdmin_DirectoryFailure(t *testing.T) {
	svc, dir, _, _ := newBootstrapSvc()
	dir.err = errors.New("db down")

	_, err := svc.GrantAdmin(context.Background(), bootstrapEmail)
	if err == nil || errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected a wrapped directory error, got %v", err)
	}
}

func TestBootstrap_GrantAdmin_InsertFailure(t *testing.T) {
	svc, _, roles, rec := newBootstrapSvc()
	roles.insertErr = errors.New("write conflict")

	_, err := svc.GrantAdmin(context.Background(), bootstrapEmail)
	if !errors.Is(err, domain.ErrGrantFailed) {
		t.Fatalf("expected ErrGrantFailed, got %v", err)
	}
	if e := rec.last(); e.Status != "failed" {
		t.Fatalf("expected failed audit event, got %+v", e)
	}
}

func TestBootstrap_GrantAdmin_CheckFailureFallsThrough(t *testing.T) {
	svc, _, roles, _ := newBootstrapSvc()
	roles.hasAssignmentErr = errors.New("timeout")

	outcome, err := svc.GrantAdmin(context.Background(), bootstrapEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != domain.GrantInserted {
		t.Fatalf("expected inserted, got %s", outcome)
	}
}

func TestBootstrap_GrantAdmin_CancelledCallerDoesNotFailOthers(t *testing.T) {
	dir := &blockingDirectory{
		user:    domain.Identity{ID: "u-owner", Email: bootstrapEmail},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	roles := newStubRoleRepo()
	svc := NewBootstrapService(SingleEmailPolicy(bootstrapEmail), dir, roles, &stubRecorder{}, zerolog.Nop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GrantAdmin(firstCtx, bootstrapEmail)
		firstErr <- err
	}()
	<-dir.entered

	type result struct {
		outcome domain.GrantOutcome
		err     error
	}
	second := make(chan result, 1)
	go func() {
		outcome, err := svc.GrantAdmin(context.Background(), bootstrapEmail)
		second <- result{outcome, err}
	}()
	// Let the second caller join the in-flight grant.
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to see context.Canceled, got %v", err)
	}
	close(dir.release)

	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("a live caller must not inherit another caller's cancellation: %v", r.err)
		}
		if r.outcome != domain.GrantInserted {
			t.Fatalf("expected inserted, got %s", r.outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("second caller never returned")
	}

	dir.mu.Lock()
	calls := dir.calls
	dir.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one shared lookup, got %d", calls)
	}
	if roles.rows() != 1 {
		t.Fatalf("expected exactly one assignment row, got %d", roles.rows())
	}
}
