package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/push"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/retry"
)

var errConnReset = errors.New("connection reset by peer")

func testPolicy() retry.Policy {
	return retry.Policy{Attempts: 2, Retryable: repository.IsTransient}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}

// onboarding requests

type fakeOnboardingRepo struct {
	mu       sync.Mutex
	requests map[string]domain.OnboardingRequest
	users    *fakeUserRepo

	completeErr    error
	beforeComplete func(r *fakeOnboardingRepo, id string)
}

func newFakeOnboardingRepo(users *fakeUserRepo) *fakeOnboardingRepo {
	return &fakeOnboardingRepo{requests: map[string]domain.OnboardingRequest{}, users: users}
}

func (r *fakeOnboardingRepo) Create(_ context.Context, req *domain.OnboardingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.Status == domain.OnboardingStatusPending && existing.Contact.Phone == req.Contact.Phone && existing.Role == req.Role {
			return &repository.DuplicateError{Constraint: repository.ConstraintPendingOnboarding, Err: repository.ErrDuplicate}
		}
	}
	r.requests[req.ID] = *req
	return nil
}

func (r *fakeOnboardingRepo) GetByID(_ context.Context, id string) (*domain.OnboardingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r *fakeOnboardingRepo) GetPendingByPhoneRole(_ context.Context, phone string, role domain.UserRole) (*domain.OnboardingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.Status == domain.OnboardingStatusPending && req.Contact.Phone == phone && req.Role == role {
			return &req, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeOnboardingRepo) ListByStatus(_ context.Context, status domain.OnboardingStatus, limit, offset int) ([]domain.OnboardingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OnboardingRequest
	for _, req := range r.requests {
		if req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeOnboardingRepo) CompleteDecision(_ context.Context, req *domain.OnboardingRequest) error {
	if r.beforeComplete != nil {
		hook := r.beforeComplete
		r.beforeComplete = nil
		hook(r, req.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completeErr != nil {
		return r.completeErr
	}
	current, ok := r.requests[req.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Status != domain.OnboardingStatusPending {
		return repository.ErrStateChanged
	}
	r.requests[req.ID] = *req
	return nil
}

func (r *fakeOnboardingRepo) ListStranded(ctx context.Context, createdBefore time.Time, limit int) ([]repository.StrandedRequest, error) {
	r.mu.Lock()
	pending := make([]domain.OnboardingRequest, 0)
	for _, req := range r.requests {
		if req.Status == domain.OnboardingStatusPending {
			pending = append(pending, req)
		}
	}
	r.mu.Unlock()

	var out []repository.StrandedRequest
	for _, req := range pending {
		user, err := r.users.GetByOnboardingRequest(ctx, req.ID)
		if err != nil || !user.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, repository.StrandedRequest{Request: req, UserID: user.ID})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeOnboardingRepo) set(req domain.OnboardingRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
}

// users

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]domain.User
	createErr error
	deleted   []string
}

func newFakeUserRepo(users ...domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.users[user.ID]; ok {
		return &repository.DuplicateError{Constraint: repository.ConstraintUserPrimaryKey, Err: repository.ErrDuplicate}
	}
	for _, existing := range r.users {
		if existing.Contact.Phone == user.Contact.Phone && existing.Role == user.Role {
			return &repository.DuplicateError{Constraint: repository.ConstraintUserPhoneRole, Err: repository.ErrDuplicate}
		}
		if user.OnboardingRequestID != nil && existing.OnboardingRequestID != nil && *existing.OnboardingRequestID == *user.OnboardingRequestID {
			return &repository.DuplicateError{Constraint: repository.ConstraintUserOnboardingRequest, Err: repository.ErrDuplicate}
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *fakeUserRepo) GetByPhoneRole(_ context.Context, phone string, role domain.UserRole) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Contact.Phone == phone && u.Role == role {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByOnboardingRequest(_ context.Context, requestID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.OnboardingRequestID != nil && *u.OnboardingRequestID == requestID {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok, nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeUserRepo) UpdateDeviceToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.DeviceToken = token
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// moderators

type fakeModeratorRepo struct {
	mu         sync.Mutex
	moderators map[string]domain.Moderator
}

func newFakeModeratorRepo(mods ...domain.Moderator) *fakeModeratorRepo {
	r := &fakeModeratorRepo{moderators: map[string]domain.Moderator{}}
	for _, m := range mods {
		r.moderators[m.ID] = m
	}
	return r
}

func (r *fakeModeratorRepo) GetByID(_ context.Context, id string) (*domain.Moderator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.moderators[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *fakeModeratorRepo) ListByRole(_ context.Context, role domain.ModeratorRole) ([]domain.Moderator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Moderator
	for _, m := range r.moderators {
		if m.Role == role {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeModeratorRepo) UpdateDeviceToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.moderators[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.DeviceToken = token
	r.moderators[id] = m
	return nil
}

// products, favorites

type fakeProductRepo struct {
	products map[string]domain.Product
}

func newFakeProductRepo(products ...domain.Product) *fakeProductRepo {
	r := &fakeProductRepo{products: map[string]domain.Product{}}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *fakeProductRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

type fakeFavoriteRepo struct {
	mu   sync.Mutex
	favs map[string]domain.Favorite
}

func newFakeFavoriteRepo() *fakeFavoriteRepo {
	return &fakeFavoriteRepo{favs: map[string]domain.Favorite{}}
}

func (r *fakeFavoriteRepo) Toggle(_ context.Context, fav *domain.Favorite) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fav.BuyerID + "/" + fav.ProductID
	if _, ok := r.favs[key]; ok {
		delete(r.favs, key)
		return false, nil
	}
	r.favs[key] = *fav
	return true, nil
}

func (r *fakeFavoriteRepo) ListByBuyer(_ context.Context, buyerID string) ([]domain.Favorite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Favorite
	for _, f := range r.favs {
		if f.BuyerID == buyerID {
			out = append(out, f)
		}
	}
	return out, nil
}

// tickets

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
	updates int
	// lostAcks stores the next inserts but reports them as failed.
	lostAcks int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]domain.Ticket{}}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; ok {
		return &repository.DuplicateError{Constraint: repository.ConstraintTicketPrimaryKey, Err: repository.ErrDuplicate}
	}
	for _, existing := range r.tickets {
		if existing.Number == ticket.Number {
			return &repository.DuplicateError{Constraint: repository.ConstraintTicketNumber, Err: repository.ErrDuplicate}
		}
	}
	r.tickets[ticket.ID] = *ticket
	if r.lostAcks > 0 {
		r.lostAcks--
		return errConnReset
	}
	return nil
}

func (r *fakeTicketRepo) UpdateStatus(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return repository.ErrNotFound
	}
	r.tickets[ticket.ID] = *ticket
	r.updates++
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *fakeTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if filter.BuyerID != nil && t.BuyerID != *filter.BuyerID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTicketRepo) MaxNumber(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max int64
	for _, t := range r.tickets {
		if t.Number > max {
			max = t.Number
		}
	}
	return max, nil
}

type fakeSequence struct {
	mu     sync.Mutex
	values []int64
	next   int64
}

func (s *fakeSequence) Next(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) > 0 {
		v := s.values[0]
		s.values = s.values[1:]
		return v, nil
	}
	s.next++
	return s.next, nil
}

// notifications

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []domain.Notification
	createErr     error
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.notifications {
		if existing.ID == n.ID {
			return &repository.DuplicateError{Constraint: repository.ConstraintNotificationPrimaryKey, Err: repository.ErrDuplicate}
		}
	}
	r.notifications = append(r.notifications, *n)
	return nil
}

func (r *fakeNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id {
			return &n, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeNotificationRepo) ListByRecipient(_ context.Context, recipientType domain.RecipientType, recipientID string, unreadOnly bool, _, _ int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.notifications {
		if n.RecipientType == recipientType && n.RecipientID == recipientID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) CountUnread(_ context.Context, recipientType domain.RecipientType, recipientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.notifications {
		if n.RecipientType == recipientType && n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) SetReadState(_ context.Context, id string, recipientType domain.RecipientType, recipientID string, read bool, at time.Time) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.notifications {
		if n.ID != id || n.RecipientType != recipientType || n.RecipientID != recipientID {
			continue
		}
		n.IsRead = read
		n.ReadAt = nil
		if read {
			readAt := at
			n.ReadAt = &readAt
		}
		r.notifications[i] = n
		return &n, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeNotificationRepo) MarkAllRead(_ context.Context, recipientType domain.RecipientType, recipientID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for i, n := range r.notifications {
		if n.RecipientType == recipientType && n.RecipientID == recipientID && !n.IsRead {
			readAt := at
			r.notifications[i].IsRead = true
			r.notifications[i].ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (r *fakeNotificationRepo) forRecipient(id string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.notifications {
		if n.RecipientID == id {
			out = append(out, n)
		}
	}
	return out
}

type fakeProvider struct {
	mu   sync.Mutex
	err  error
	sent []push.Message
}

func (p *fakeProvider) Send(_ context.Context, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakeProvider) SendMulticast(_ context.Context, tokens []string, _, _ string, _ map[string]string) (push.BatchResult, error) {
	if p.err != nil {
		return push.BatchResult{FailureCount: len(tokens), FailedTokens: tokens}, nil
	}
	return push.BatchResult{SuccessCount: len(tokens)}, nil
}

func (p *fakeProvider) SendToTopic(context.Context, string, string, string, map[string]string) error {
	return p.err
}

func (p *fakeProvider) SubscribeToTopic(_ context.Context, tokens []string, _ string) (push.BatchResult, error) {
	return p.SendMulticast(context.Background(), tokens, "", "", nil)
}

func (p *fakeProvider) UnsubscribeFromTopic(_ context.Context, tokens []string, _ string) (push.BatchResult, error) {
	return p.SendMulticast(context.Background(), tokens, "", "", nil)
}

// inlineQueue runs tasks on Submit and keeps their errors.
type inlineQueue struct {
	mu     sync.Mutex
	full   bool
	errors []error
	runs   int
}

func (q *inlineQueue) Submit(_ string, run func(context.Context) error) bool {
	if q.full {
		return false
	}
	err := run(context.Background())
	q.mu.Lock()
	defer q.mu.Unlock()
	q.runs++
	if err != nil {
		q.errors = append(q.errors, err)
	}
	return true
}

// chat

type fakeMessageRepo struct {
	mu        sync.Mutex
	messages  []domain.Message
	createErr error
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListBetween(_ context.Context, a, b string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeHistoryRepo struct {
	mu       sync.Mutex
	rows     map[string]domain.ChatHistory
	touchErr error
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{rows: map[string]domain.ChatHistory{}}
}

func (r *fakeHistoryRepo) Touch(_ context.Context, h *domain.ChatHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touchErr != nil {
		return r.touchErr
	}
	key := h.OperatorID + "/" + h.UserID
	existing, ok := r.rows[key]
	if !ok {
		r.rows[key] = *h
		return nil
	}
	if !h.LastInteraction.Before(existing.LastInteraction) {
		existing.LastMessage = h.LastMessage
		existing.LastInteraction = h.LastInteraction
		existing.ReadStatus = h.ReadStatus
	}
	r.rows[key] = existing
	*h = existing
	return nil
}

func (r *fakeHistoryRepo) Ensure(_ context.Context, h *domain.ChatHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := h.OperatorID + "/" + h.UserID
	if existing, ok := r.rows[key]; ok {
		*h = existing
		return nil
	}
	r.rows[key] = *h
	return nil
}

func (r *fakeHistoryRepo) ListForParticipant(_ context.Context, participantID string) ([]domain.ChatSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ChatSummary
	for _, h := range r.rows {
		switch participantID {
		case h.OperatorID:
			out = append(out, domain.ChatSummary{History: h, CounterpartID: h.UserID})
		case h.UserID:
			out = append(out, domain.ChatSummary{History: h, CounterpartID: h.OperatorID, CounterpartIsOps: true})
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) MarkRead(_ context.Context, operatorID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := operatorID + "/" + userID
	h, ok := r.rows[key]
	if !ok {
		return repository.ErrNotFound
	}
	h.ReadStatus = true
	r.rows[key] = h
	return nil
}

type emitted struct {
	Room    string
	Event   string
	Payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(_ context.Context, room, event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{Room: room, Event: event, Payload: payload})
	return nil
}
