package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/darkscore/darkscore-server/internal/domain"
	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
	"github.com/darkscore/darkscore-server/internal/id"
	"github.com/darkscore/darkscore-server/internal/identity"
	"github.com/darkscore/darkscore-server/internal/store"
	"github.com/darkscore/darkscore-server/internal/validation"
)

// MatchState is the match view of one client session.
type MatchState struct {
	Matches []domain.Match `json:"matches"`
	History []domain.Match `json:"history"`
	Current *domain.Match  `json:"current"`
}

// CurrentUserSource provides the signed-in user's profile.
type CurrentUserSource interface {
	CurrentUser() *domain.Profile
}

// MatchService keeps the matches the signed-in user plays in synced with the
// store and performs the scoring operations on them.
type MatchService struct {
	store     store.Store
	session   *identity.Session
	users     CurrentUserSource
	lookup    ProfileLookup
	validator *validation.Validator
	logger    *slog.Logger
	matches   *store.Collection[domain.Match]

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	epoch     uint64
	userID    string
	active    []domain.Match
	history   []domain.Match
	currentID string
	subs      subscriptions

	watchers     watchers[MatchState]
	stopWatching func()
}

// NewMatchService creates the match container for session.
func NewMatchService(s store.Store, session *identity.Session, users CurrentUserSource, lookup ProfileLookup, logger *slog.Logger) *MatchService {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &MatchService{
		store:     s,
		session:   session,
		users:     users,
		lookup:    lookup,
		validator: validation.New(),
		logger:    logger,
		matches:   store.NewCollection(s, store.MatchesPath, func(m *domain.Match, id string) { m.ID = id }),
		ctx:       ctx,
		cancel:    cancel,
	}
	svc.stopWatching = session.OnChange(svc.onSessionChange)
	return svc
}

// Close drops the subscription and stops following the session.
func (s *MatchService) Close() {
	s.stopWatching()
	s.cancel()

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.epoch++
	s.mu.Unlock()
	subs.cancel()
}

// State returns a copy of the current match state.
func (s *MatchService) State() MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := MatchState{
		Matches: cloneMatches(s.active),
		History: cloneMatches(s.history),
	}
	if m, ok := s.findLocked(s.currentID); ok {
		state.Current = &m
	}
	return state
}

// Watch registers fn to receive the current state and then every new one.
// It returns a function that removes it.
func (s *MatchService) Watch(fn func(MatchState)) func() {
	return s.watchers.add(fn, s.State)
}

func (s *MatchService) publish() {
	s.watchers.publish(s.State)
}

// Match returns a locally known match from either bucket.
func (s *MatchService) Match(matchID string) (domain.Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(matchID)
}

func (s *MatchService) findLocked(matchID string) (domain.Match, bool) {
	if matchID == "" {
		return domain.Match{}, false
	}
	for _, bucket := range [][]domain.Match{s.active, s.history} {
		if i := slices.IndexFunc(bucket, func(m domain.Match) bool { return m.ID == matchID }); i >= 0 {
			m := bucket[i]
			m.Players = slices.Clone(m.Players)
			return m, true
		}
	}
	return domain.Match{}, false
}

// activeMatch returns a locally known match that has not ended.
func (s *MatchService) activeMatch(matchID string) (domain.Match, bool) {
	m, ok := s.Match(matchID)
	return m, ok && m.Active
}

func (s *MatchService) onSessionChange(_ context.Context, ident *domain.Identity) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	old := s.subs
	s.subs = nil
	s.userID = ""
	s.active, s.history, s.currentID = nil, nil, ""
	if ident != nil {
		s.userID = ident.ID
	}
	s.mu.Unlock()
	old.cancel()

	if ident == nil {
		s.publish()
		return
	}

	userID := ident.ID
	unsub, err := s.matches.Subscribe(s.ctx, func(ms []domain.Match, err error) {
		s.onMatches(epoch, userID, ms, err)
	})
	if err != nil {
		s.logger.Error("failed to subscribe to matches", "user_id", userID, "error", err)
		s.publish()
		return
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		unsub()
		return
	}
	s.subs = subscriptions{unsub}
	s.mu.Unlock()

	s.publish()
}

// onMatches replaces both buckets with the matches userID plays in.
func (s *MatchService) onMatches(epoch uint64, userID string, ms []domain.Match, err error) {
	if err != nil {
		s.logger.Warn("skipping malformed matches", "user_id", userID, "error", err)
	}

	var active, history []domain.Match
	for _, m := range ms {
		if !m.HasPlayer(userID) {
			continue
		}
		if m.Active {
			active = append(active, m)
		} else {
			history = append(history, m)
		}
	}
	domain.SortByCreated(active)
	domain.SortByFinished(history)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.active, s.history = active, history
	if _, ok := s.findLocked(s.currentID); !ok {
		s.currentID = ""
	}
	s.mu.Unlock()

	s.publish()
}

// patch replaces a match in local state, moving it between buckets when its
// Active flag changed. Unknown matches are added.
func (s *MatchService) patch(m domain.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sameID := func(other domain.Match) bool { return other.ID == m.ID }
	if m.Active {
		if i := slices.IndexFunc(s.active, sameID); i >= 0 {
			s.active = slices.Clone(s.active)
			s.active[i] = m
			return
		}
		s.history = slices.DeleteFunc(slices.Clone(s.history), sameID)
		s.active = append(slices.Clone(s.active), m)
		domain.SortByCreated(s.active)
		return
	}

	if i := slices.IndexFunc(s.history, sameID); i >= 0 {
		s.history = slices.Clone(s.history)
		s.history[i] = m
		return
	}
	s.active = slices.DeleteFunc(slices.Clone(s.active), sameID)
	s.history = append([]domain.Match{m}, s.history...)
}

func (s *MatchService) currentUser() (domain.Profile, error) {
	if p := s.users.CurrentUser(); p != nil {
		return *p, nil
	}
	if ident := s.session.Current(); ident != nil {
		return domain.ProfileFromIdentity(*ident), nil
	}
	return domain.Profile{}, domainerrors.Unauthenticated("sign in required")
}

// CreateMatchInput is the validated input of CreateMatch.
type CreateMatchInput struct {
	Title     string `json:"title" validate:"required,notblank,max=100"`
	GameTitle string `json:"gameTitle" validate:"required,notblank,max=100"`
}

// CreateMatch starts a new active match with the current user as its only player
// and selects it.
func (s *MatchService) CreateMatch(ctx context.Context, title, gameTitle string) (string, error) {
	user, err := s.currentUser()
	if err != nil {
		return "", err
	}
	if err := s.validator.Validate(CreateMatchInput{Title: title, GameTitle: gameTitle}); err != nil {
		return "", err
	}

	matchID, err := id.Generate(id.PrefixMatch)
	if err != nil {
		return "", domainerrors.Internal("failed to generate match id").WithCause(err)
	}

	m := domain.NewMatch(matchID, title, gameTitle, user)
	record := m
	record.ID = ""
	if err := s.matches.Set(ctx, matchID, record); err != nil {
		return "", domainerrors.Unavailable(err, "failed to create match")
	}

	s.patch(m)
	s.mu.Lock()
	s.currentID = matchID
	s.mu.Unlock()

	s.logger.Info("match created", "match_id", matchID, "user_id", user.ID)
	s.publish()
	return matchID, nil
}

// InvitePlayer invites the user registered with email to a known active match.
// Unknown addresses, unknown or ended matches and players already in the match are
// ignored: the result is nil and no error is returned.
func (s *MatchService) InvitePlayer(ctx context.Context, matchID, email string) (*domain.Invitation, error) {
	user, err := s.currentUser()
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(inviteFriendInput{Email: email}); err != nil {
		return nil, err
	}

	m, ok := s.activeMatch(matchID)
	if !ok {
		return nil, nil
	}

	target, ok, err := s.lookup.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok || m.HasPlayer(target.ID) {
		return nil, nil
	}

	inv := domain.NewMatchInvitation(id.NewInvitation(), user, m)
	if err := writeInvitation(ctx, s.store, target.ID, inv); err != nil {
		return nil, err
	}

	s.logger.Info("match invitation sent", "match_id", matchID, "user_id", user.ID, "invitee_id", target.ID)
	return &inv, nil
}

// RemovePlayer takes playerID out of a known active match and selects the match.
func (s *MatchService) RemovePlayer(ctx context.Context, matchID, playerID string) error {
	if _, err := s.currentUser(); err != nil {
		return err
	}
	m, ok := s.activeMatch(matchID)
	if !ok || !m.HasPlayer(playerID) {
		return nil
	}

	m = m.WithoutPlayer(playerID)
	if err := s.matches.Merge(ctx, matchID, matchFields(m)); err != nil {
		return domainerrors.Unavailable(err, "failed to remove player")
	}

	s.patch(m)
	s.mu.Lock()
	s.currentID = matchID
	s.mu.Unlock()

	s.logger.Info("player removed", "match_id", matchID, "player_id", playerID)
	s.publish()
	return nil
}

// AcceptInvitation joins the current user to the invitation's match and deletes the
// invitation. Accepting twice only deletes the invitation, and so does accepting an
// invitation to a match that ended or no longer exists.
func (s *MatchService) AcceptInvitation(ctx context.Context, matchID, invitationID string) error {
	user, err := s.currentUser()
	if err != nil {
		return err
	}

	if m, ok := s.Match(matchID); ok && m.HasPlayer(user.ID) {
		return s.dropInvitation(ctx, user.ID, invitationID)
	}

	m, ok, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return domainerrors.Unavailable(err, "failed to read match")
	}
	if !ok || !m.Active {
		s.logger.Debug("dropping stale match invitation", "match_id", matchID, "invitation_id", invitationID)
		return s.dropInvitation(ctx, user.ID, invitationID)
	}

	if joined, changed := m.WithPlayer(user.AsPlayer()); changed {
		if err := s.matches.Merge(ctx, matchID, map[string]any{"players": joined.Players}); err != nil {
			return domainerrors.Unavailable(err, "failed to join match")
		}
		m = joined
		s.logger.Info("joined match", "match_id", matchID, "user_id", user.ID)
	}
	s.patch(m)

	if err := s.dropInvitation(ctx, user.ID, invitationID); err != nil {
		return err
	}
	s.publish()
	return nil
}

func (s *MatchService) dropInvitation(ctx context.Context, userID, invitationID string) error {
	if err := invitationsOf(s.store, userID).Delete(ctx, invitationID); err != nil {
		return domainerrors.Unavailable(err, "failed to delete invitation")
	}
	return nil
}

// IncreaseScore adds one point to playerID.
func (s *MatchService) IncreaseScore(ctx context.Context, matchID, playerID string) error {
	return s.adjustScore(ctx, matchID, playerID, 1)
}

// DecreaseScore takes one point from playerID. Scores never drop below zero.
func (s *MatchService) DecreaseScore(ctx context.Context, matchID, playerID string) error {
	return s.adjustScore(ctx, matchID, playerID, -1)
}

func (s *MatchService) adjustScore(ctx context.Context, matchID, playerID string, delta int) error {
	if _, err := s.currentUser(); err != nil {
		return err
	}
	m, ok := s.activeMatch(matchID)
	if !ok {
		return nil
	}
	updated, ok := m.WithScoreDelta(playerID, delta)
	if !ok {
		return nil
	}
	return s.writePlayers(ctx, updated)
}

// ResetScores sets every score of a known active match to zero.
func (s *MatchService) ResetScores(ctx context.Context, matchID string) error {
	if _, err := s.currentUser(); err != nil {
		return err
	}
	m, ok := s.activeMatch(matchID)
	if !ok {
		return nil
	}
	return s.writePlayers(ctx, m.WithScoresReset())
}

// writePlayers persists the whole player list of m. Concurrent writers of the
// same match overwrite each other's lists.
func (s *MatchService) writePlayers(ctx context.Context, m domain.Match) error {
	if err := s.matches.Merge(ctx, m.ID, map[string]any{"players": m.Players}); err != nil {
		return domainerrors.Unavailable(err, "failed to update scores")
	}
	s.patch(m)
	s.publish()
	return nil
}

// EndMatch finishes a locally active match. Ended matches cannot be reopened.
func (s *MatchService) EndMatch(ctx context.Context, matchID string) error {
	if _, err := s.currentUser(); err != nil {
		return err
	}
	m, ok := s.activeMatch(matchID)
	if !ok {
		return nil
	}

	m = m.Ended(domain.Now())
	err := s.matches.Merge(ctx, matchID, map[string]any{
		"active":     false,
		"finishedAt": m.FinishedAt,
	})
	if err != nil {
		return domainerrors.Unavailable(err, "failed to end match")
	}

	s.patch(m)
	s.mu.Lock()
	if s.currentID == matchID {
		s.currentID = ""
	}
	s.mu.Unlock()

	s.logger.Info("match ended", "match_id", matchID)
	s.publish()
	return nil
}

// DeleteMatch removes a known match from the store.
func (s *MatchService) DeleteMatch(ctx context.Context, matchID string) error {
	if _, err := s.currentUser(); err != nil {
		return err
	}
	if _, ok := s.Match(matchID); !ok {
		return nil
	}

	if err := s.matches.Delete(ctx, matchID); err != nil {
		return domainerrors.Unavailable(err, "failed to delete match")
	}

	s.mu.Lock()
	byID := func(m domain.Match) bool { return m.ID == matchID }
	s.active = slices.DeleteFunc(slices.Clone(s.active), byID)
	s.history = slices.DeleteFunc(slices.Clone(s.history), byID)
	if s.currentID == matchID {
		s.currentID = ""
	}
	s.mu.Unlock()

	s.logger.Info("match deleted", "match_id", matchID)
	s.publish()
	return nil
}

// SelectMatch makes a known match the current one.
func (s *MatchService) SelectMatch(matchID string) (domain.Match, error) {
	if _, err := s.currentUser(); err != nil {
		return domain.Match{}, err
	}

	s.mu.Lock()
	m, ok := s.findLocked(matchID)
	if ok {
		s.currentID = matchID
	}
	s.mu.Unlock()

	if !ok {
		return domain.Match{}, domainerrors.NotFoundf("match %s not found", matchID)
	}
	s.publish()
	return m, nil
}

// ClearSelection unsets the current match.
func (s *MatchService) ClearSelection() {
	s.mu.Lock()
	changed := s.currentID != ""
	s.currentID = ""
	s.mu.Unlock()

	if changed {
		s.publish()
	}
}

// HeadToHead summarizes the ended matches the current user played with friendID.
func (s *MatchService) HeadToHead(friendID string) (domain.HeadToHead, error) {
	user, err := s.currentUser()
	if err != nil {
		return domain.HeadToHead{}, err
	}
	return domain.ComputeHeadToHead(s.State().History, user.ID, friendID), nil
}

// Stats summarizes the current user's matches.
func (s *MatchService) Stats() (domain.UserStats, error) {
	user, err := s.currentUser()
	if err != nil {
		return domain.UserStats{}, err
	}
	state := s.State()
	return domain.ComputeUserStats(state.Matches, state.History, user.ID), nil
}

// matchFields is the full stored record of m as top-level fields.
func matchFields(m domain.Match) map[string]any {
	return map[string]any{
		"title":      m.Title,
		"gameTitle":  m.GameTitle,
		"createdBy":  m.CreatedBy,
		"createdAt":  m.CreatedAt,
		"finishedAt": m.FinishedAt,
		"players":    m.Players,
		"active":     m.Active,
	}
}

func cloneMatches(ms []domain.Match) []domain.Match {
	out := make([]domain.Match, len(ms))
	for i, m := range ms {
		m.Players = slices.Clone(m.Players)
		out[i] = m
	}
	return out
}
