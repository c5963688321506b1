package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/cache"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/repository"
)

// =========================================================================
// HAND-WRITTEN FAKES
// =========================================================================
//
// The fakes store copies so a test can't mutate repository state through a
// returned pointer, the same guarantee a real database gives.

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	nextID  int
	updates int

	failFind   error // returned by every Find* call when set
	failUpdate error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (r *fakeUserRepo) Insert(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return apperror.DuplicateEmail()
		}
	}
	r.nextID++
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", r.nextID)
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	stored := *u
	r.users[u.ID] = &stored
	return nil
}

// mutate applies fn to the first stored user matching match, under the
// lock, the way a conditional UPDATE does.
func (r *fakeUserRepo) mutate(match func(*model.User) bool, fn func(*model.User)) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return nil, r.failUpdate
	}
	for _, u := range r.users {
		if match(u) {
			fn(u)
			r.updates++
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", "update")
}

func (r *fakeUserRepo) SetVerificationToken(_ context.Context, id, token string) error {
	_, err := r.mutate(
		func(u *model.User) bool { return u.ID == id && !u.Verified },
		func(u *model.User) { u.VerificationToken = token },
	)
	return err
}

func (r *fakeUserRepo) RedeemVerificationToken(_ context.Context, token string) (*model.User, error) {
	return r.mutate(
		func(u *model.User) bool { return token != "" && u.VerificationToken == token },
		func(u *model.User) { u.Verified, u.VerificationToken = true, "" },
	)
}

func (r *fakeUserRepo) SetResetToken(_ context.Context, id, token string) error {
	_, err := r.mutate(
		func(u *model.User) bool { return u.ID == id },
		func(u *model.User) { u.ResetToken = token },
	)
	return err
}

func (r *fakeUserRepo) RedeemResetToken(_ context.Context, token, hash string) (*model.User, error) {
	return r.mutate(
		func(u *model.User) bool { return token != "" && u.ResetToken == token },
		func(u *model.User) { u.PasswordHash, u.ResetToken = hash, "" },
	)
}

func (r *fakeUserRepo) SetAvatar(_ context.Context, id, url string) (*model.User, error) {
	return r.mutate(
		func(u *model.User) bool { return u.ID == id },
		func(u *model.User) { u.AvatarURL = url },
	)
}

func (r *fakeUserRepo) SetRole(_ context.Context, id string, role model.Role) error {
	_, err := r.mutate(
		func(u *model.User) bool { return u.ID == id },
		func(u *model.User) { u.Role = role },
	)
	return err
}

func (r *fakeUserRepo) find(match func(*model.User) bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFind != nil {
		return nil, r.failFind
	}
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", "lookup")
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Email == email })
}

func (r *fakeUserRepo) FindByVerificationToken(_ context.Context, token string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return token != "" && u.VerificationToken == token })
}

func (r *fakeUserRepo) FindByResetToken(_ context.Context, token string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return token != "" && u.ResetToken == token })
}

// get returns the stored copy by email, for assertions.
func (r *fakeUserRepo) get(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := r.FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("user %s not in fake repo: %v", email, err)
	}
	return u
}

type fakeContactRepo struct {
	contacts map[string]*model.Contact
	order    []string
	nextID   int
	listErr  error
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[string]*model.Contact)}
}

func (r *fakeContactRepo) Create(_ context.Context, c *model.Contact) error {
	for _, existing := range r.contacts {
		if existing.UserID == c.UserID && existing.Email == c.Email {
			return apperror.ContactExists()
		}
	}
	r.nextID++
	c.ID = fmt.Sprintf("contact-%d", r.nextID)
	stored := *c
	r.contacts[c.ID] = &stored
	r.order = append(r.order, c.ID)
	return nil
}

func (r *fakeContactRepo) GetByID(_ context.Context, ownerID, id string) (*model.Contact, error) {
	c, ok := r.contacts[id]
	if !ok || c.UserID != ownerID {
		return nil, apperror.NotFound("contact", id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeContactRepo) owned(ownerID string) []model.Contact {
	out := make([]model.Contact, 0)
	for _, id := range r.order {
		if c, ok := r.contacts[id]; ok && c.UserID == ownerID {
			out = append(out, *c)
		}
	}
	return out
}

func (r *fakeContactRepo) List(_ context.Context, ownerID string, opts repository.ListOptions) ([]model.Contact, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	opts = opts.Normalize()
	all := r.owned(ownerID)
	if opts.Offset >= len(all) {
		return []model.Contact{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (r *fakeContactRepo) Search(_ context.Context, ownerID, q string) ([]model.Contact, error) {
	q = strings.ToLower(q)
	out := make([]model.Contact, 0)
	for _, c := range r.owned(ownerID) {
		if strings.Contains(strings.ToLower(c.FirstName), q) ||
			strings.Contains(strings.ToLower(c.LastName), q) ||
			strings.Contains(strings.ToLower(c.Email), q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeContactRepo) Update(_ context.Context, c *model.Contact) error {
	existing, ok := r.contacts[c.ID]
	if !ok || existing.UserID != c.UserID {
		return apperror.NotFound("contact", c.ID)
	}
	stored := *c
	r.contacts[c.ID] = &stored
	return nil
}

func (r *fakeContactRepo) Delete(_ context.Context, ownerID, id string) error {
	c, ok := r.contacts[id]
	if !ok || c.UserID != ownerID {
		return apperror.NotFound("contact", id)
	}
	delete(r.contacts, id)
	return nil
}

// lookupBarrier holds every FindByResetToken caller until n of them have
// finished the lookup, so their writes race on the same token.
type lookupBarrier struct {
	repository.UserRepository
	arrived sync.WaitGroup
}

func newLookupBarrier(users repository.UserRepository, n int) *lookupBarrier {
	b := &lookupBarrier{UserRepository: users}
	b.arrived.Add(n)
	return b
}

func (b *lookupBarrier) FindByResetToken(ctx context.Context, token string) (*model.User, error) {
	u, err := b.UserRepository.FindByResetToken(ctx, token)
	b.arrived.Done()
	b.arrived.Wait()
	return u, err
}

// staleEmailLookup serves FindByEmail from a snapshot taken earlier, the
// view a request has when another one commits in between.
type staleEmailLookup struct {
	*fakeUserRepo
	snapshot model.User
}

func (s *staleEmailLookup) FindByEmail(context.Context, string) (*model.User, error) {
	cp := s.snapshot
	return &cp, nil
}

// recordingNotifier keeps the last token sent per email.
type recordingNotifier struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
	err          error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		verification: make(map[string]string),
		reset:        make(map[string]string),
	}
}

func (n *recordingNotifier) SendVerification(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verification[email] = token
	return n.err
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset[email] = token
	return n.err
}

// recordingCache wraps a real IdentityCache and remembers invalidations.
type recordingCache struct {
	*cache.IdentityCache
	invalidated      []string
	invalidatedReset []string
}

func (c *recordingCache) Invalidate(ctx context.Context, id string) {
	c.invalidated = append(c.invalidated, id)
	c.IdentityCache.Invalidate(ctx, id)
}

func (c *recordingCache) InvalidateResetToken(ctx context.Context, email string) {
	c.invalidatedReset = append(c.invalidatedReset, email)
	c.IdentityCache.InvalidateResetToken(ctx, email)
}

// failingStore simulates a cache backend that is down.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("dial tcp: connection refused")
}

func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("dial tcp: connection refused")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("dial tcp: connection refused")
}

type fakeUploader struct {
	url     string
	err     error
	calls   int
	lastKey string
	body    string

	during func() // runs while the upload is in flight
}

func (u *fakeUploader) Upload(_ context.Context, r io.Reader, destinationID, _ string) (string, error) {
	u.calls++
	if u.during != nil {
		u.during()
	}
	u.lastKey = destinationID
	b, _ := io.ReadAll(r)
	u.body = string(b)
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

// =========================================================================
// HELPERS
// =========================================================================

const testSecret = "service-test-secret-32-characters"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T, opts ...auth.Option) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret}, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func newMemoryCache(store cache.Store) *recordingCache {
	return &recordingCache{IdentityCache: cache.NewIdentityCache(store, cache.Config{}, testLogger())}
}

// seqTokens returns a token generator yielding tok-1, tok-2, ...
func seqTokens() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("tok-%d", n)
	}
}

func sortedEmails(cs []model.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Email)
	}
	sort.Strings(out)
	return out
}
