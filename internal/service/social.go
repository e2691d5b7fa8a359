package service

import (
	"cmp"
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

// SocialState is the social view of one client session.
type SocialState struct {
	CurrentUser *domain.Profile     `json:"currentUser"`
	Friends     []domain.Friend     `json:"friends"`
	Invitations []domain.Invitation `json:"invitations"`
}

// SocialService keeps the signed-in user's profile, friends and incoming
// invitations in sync with the store, and performs friendship operations.
//
// It follows the identity session: signing in subscribes to the user's profile
// and invitation paths, signing out drops them and clears the state.
type SocialService struct {
	store     store.Store
	session   *identity.Session
	lookup    ProfileLookup
	validator *validation.Validator
	logger    *slog.Logger
	players   *store.Collection[domain.Profile]

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	epoch       uint64
	current     *domain.Profile
	friends     []domain.Friend
	invitations []domain.Invitation
	subs        subscriptions

	watchers     watchers[SocialState]
	stopWatching func()
}

// NewSocialService creates the social container for session.
func NewSocialService(s store.Store, session *identity.Session, lookup ProfileLookup, logger *slog.Logger) *SocialService {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &SocialService{
		store:     s,
		session:   session,
		lookup:    lookup,
		validator: validation.New(),
		logger:    logger,
		players:   newPlayers(s),
		ctx:       ctx,
		cancel:    cancel,
	}
	svc.stopWatching = session.OnChange(svc.onSessionChange)
	return svc
}

// Close drops all subscriptions and stops following the session.
func (s *SocialService) Close() {
	s.stopWatching()
	s.cancel()

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.epoch++
	s.mu.Unlock()
	subs.cancel()
}

// State returns a copy of the current social state.
func (s *SocialService) State() SocialState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SocialService) snapshotLocked() SocialState {
	state := SocialState{
		Friends:     slices.Clone(s.friends),
		Invitations: slices.Clone(s.invitations),
	}
	if s.current != nil {
		p := *s.current
		p.Friends = slices.Clone(p.Friends)
		state.CurrentUser = &p
	}
	if state.Friends == nil {
		state.Friends = []domain.Friend{}
	}
	if state.Invitations == nil {
		state.Invitations = []domain.Invitation{}
	}
	return state
}

// CurrentUser returns the signed-in user's profile, or nil.
func (s *SocialService) CurrentUser() *domain.Profile {
	return s.State().CurrentUser
}

// Watch registers fn to receive the current state and then every new one.
// It returns a function that removes it.
func (s *SocialService) Watch(fn func(SocialState)) func() {
	return s.watchers.add(fn, s.State)
}

func (s *SocialService) publish() {
	s.watchers.publish(s.State)
}

// SignIn signs the session in and creates the user's profile record on first sign-in.
func (s *SocialService) SignIn(ctx context.Context, credential string) (*domain.Profile, error) {
	ident, err := s.session.SignIn(ctx, credential)
	if err != nil {
		return nil, err
	}

	snap, err := s.store.Get(ctx, store.PlayerPath(ident.ID))
	if err != nil {
		return nil, domainerrors.Unavailable(err, "failed to read profile")
	}
	if !snap.Exists {
		if err := s.store.Set(ctx, store.PlayerPath(ident.ID), ident.InitialRecord()); err != nil {
			return nil, domainerrors.Unavailable(err, "failed to create profile")
		}
		s.logger.Info("profile created", "user_id", ident.ID)
	}

	if p := s.CurrentUser(); p != nil {
		return p, nil
	}
	p := domain.ProfileFromIdentity(*ident)
	return &p, nil
}

// SignOut signs the session out. State is cleared by the session callback.
func (s *SocialService) SignOut(ctx context.Context) error {
	return s.session.SignOut(ctx)
}

func (s *SocialService) onSessionChange(ctx context.Context, ident *domain.Identity) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	old := s.subs
	s.subs = nil
	s.current, s.friends, s.invitations = nil, nil, nil
	s.mu.Unlock()
	old.cancel()

	if ident == nil {
		s.publish()
		return
	}

	profile := domain.ProfileFromIdentity(*ident)
	stored, ok, err := s.players.Get(ctx, ident.ID)
	switch {
	case err != nil:
		s.logger.Warn("failed to read profile, using identity fields", "user_id", ident.ID, "error", err)
	case ok:
		profile = stored
	}

	friends, err := s.loadFriends(ctx, profile.Friends)
	if err != nil {
		s.logger.Warn("failed to load friends", "user_id", ident.ID, "error", err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.current = &profile
	s.friends = friends
	s.mu.Unlock()

	subs, err := s.subscribe(epoch, ident.ID)
	if err != nil {
		s.logger.Error("failed to subscribe to social state", "user_id", ident.ID, "error", err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		subs.cancel()
		return
	}
	s.subs = subs
	s.mu.Unlock()

	s.publish()
}

func (s *SocialService) subscribe(epoch uint64, userID string) (subscriptions, error) {
	var subs subscriptions

	unsub, err := s.players.SubscribeOne(s.ctx, userID, func(p domain.Profile, exists bool, err error) {
		s.onProfile(epoch, p, exists, err)
	})
	if err != nil {
		return subs, err
	}
	subs = append(subs, unsub)

	invitations := invitationsOf(s.store, userID)
	unsub, err = invitations.Subscribe(s.ctx, func(invs []domain.Invitation, err error) {
		s.onInvitations(epoch, invs, err)
	})
	if err != nil {
		return subs, err
	}
	subs = append(subs, unsub)

	return subs, nil
}

// onProfile applies a push of the user's own profile record. The friends roster
// is rebuilt wholesale whenever the friend ids change.
func (s *SocialService) onProfile(epoch uint64, p domain.Profile, exists bool, err error) {
	if err != nil {
		s.logger.Warn("malformed profile record", "user_id", p.ID, "error", err)
		return
	}
	if !exists {
		// Not written yet; keep the identity fallback.
		return
	}

	s.mu.Lock()
	if s.epoch != epoch || s.current == nil {
		s.mu.Unlock()
		return
	}
	sameFriends := slices.Equal(s.current.Friends, p.Friends)
	s.mu.Unlock()

	var friends []domain.Friend
	if !sameFriends {
		friends, err = s.loadFriends(s.ctx, p.Friends)
		if err != nil {
			s.logger.Warn("failed to rebuild friends", "user_id", p.ID, "error", err)
			return
		}
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.current = &p
	if !sameFriends {
		s.friends = friends
	}
	s.mu.Unlock()

	s.publish()
}

func (s *SocialService) onInvitations(epoch uint64, invs []domain.Invitation, err error) {
	if err != nil {
		s.logger.Warn("skipping malformed invitations", "error", err)
	}
	slices.SortStableFunc(invs, func(a, b domain.Invitation) int {
		if c := a.SentAt.Compare(b.SentAt.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.invitations = invs
	s.mu.Unlock()

	s.publish()
}

// loadFriends reads each friend profile. Missing profiles are skipped.
func (s *SocialService) loadFriends(ctx context.Context, ids []string) ([]domain.Friend, error) {
	friends := make([]domain.Friend, 0, len(ids))
	for _, friendID := range ids {
		p, ok, err := s.players.Get(ctx, friendID)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.logger.Debug("friend profile missing", "friend_id", friendID)
			continue
		}
		friends = append(friends, p.AsFriend())
	}
	return friends, nil
}

func (s *SocialService) requireUser() (domain.Profile, error) {
	p := s.CurrentUser()
	if p == nil {
		return domain.Profile{}, domainerrors.Unauthenticated("sign in required")
	}
	return *p, nil
}

type inviteFriendInput struct {
	Email string `json:"email" validate:"required,email"`
}

// InviteFriend sends a friendship invitation to the user registered with email.
// Unknown addresses and the user's own address are ignored: the result is nil
// and no error is returned.
func (s *SocialService) InviteFriend(ctx context.Context, email string) (*domain.Invitation, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(inviteFriendInput{Email: email}); err != nil {
		return nil, err
	}
	if user.MatchesEmail(email) {
		return nil, nil
	}

	target, ok, err := s.lookup.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Debug("friend invitation target not found", "user_id", user.ID)
		return nil, nil
	}

	inv := domain.NewFriendInvitation(id.NewInvitation(), user)
	if err := writeInvitation(ctx, s.store, target.ID, inv); err != nil {
		return nil, err
	}

	s.logger.Info("friend invitation sent", "user_id", user.ID, "invitee_id", target.ID, "invitation_id", inv.ID)
	return &inv, nil
}

// AcceptFriendshipInvitation makes the inviter and the current user friends and
// deletes the invitation. Accepting an invitation from someone who already is a
// friend only deletes the invitation.
func (s *SocialService) AcceptFriendshipInvitation(ctx context.Context, invitedBy domain.Profile, invitationID string) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}

	if invitedBy.ID == user.ID || user.HasFriend(invitedBy.ID) || s.hasFriendInRoster(invitedBy.ID) {
		return s.RemoveInvitation(ctx, invitationID)
	}

	inviter, ok, err := s.players.Get(ctx, invitedBy.ID)
	if err != nil {
		return domainerrors.Unavailable(err, "failed to read inviter profile")
	}
	if !ok {
		return domainerrors.NotFound("inviter profile not found")
	}

	// Both writes are independent; a failure in between leaves a one-sided friendship.
	if updated, changed := inviter.WithFriend(user.ID); changed {
		if err := s.players.Merge(ctx, inviter.ID, map[string]any{"friends": updated.Friends}); err != nil {
			return domainerrors.Unavailable(err, "failed to update inviter friends")
		}
	}
	mine, _ := user.WithFriend(inviter.ID)
	if err := s.players.Merge(ctx, user.ID, map[string]any{"friends": mine.Friends}); err != nil {
		return domainerrors.Unavailable(err, "failed to update friends")
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == user.ID {
		if p, changed := s.current.WithFriend(inviter.ID); changed {
			s.current = &p
		}
		if !slices.ContainsFunc(s.friends, func(f domain.Friend) bool { return f.ID == inviter.ID }) {
			s.friends = append(slices.Clone(s.friends), inviter.AsFriend())
		}
	}
	s.mu.Unlock()

	s.logger.Info("friendship accepted", "user_id", user.ID, "friend_id", inviter.ID)
	return s.RemoveInvitation(ctx, invitationID)
}

func (s *SocialService) hasFriendInRoster(friendID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.friends, func(f domain.Friend) bool { return f.ID == friendID })
}

// RemoveInvitation deletes one of the current user's invitations. It refuses an
// invitation as well as cleaning up after one that no longer applies.
func (s *SocialService) RemoveInvitation(ctx context.Context, invitationID string) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}
	if err := invitationsOf(s.store, user.ID).Delete(ctx, invitationID); err != nil {
		return domainerrors.Unavailable(err, "failed to delete invitation")
	}

	s.mu.Lock()
	s.invitations = slices.DeleteFunc(slices.Clone(s.invitations), func(inv domain.Invitation) bool {
		return inv.ID == invitationID
	})
	s.mu.Unlock()

	s.publish()
	return nil
}

// Invitation returns a pending invitation of the current user.
func (s *SocialService) Invitation(invitationID string) (domain.Invitation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.invitations, func(inv domain.Invitation) bool { return inv.ID == invitationID })
	if i < 0 {
		return domain.Invitation{}, false
	}
	return s.invitations[i], true
}

// RemoveFriend ends a friendship on both profiles. Removing someone who is not a friend is a no-op.
func (s *SocialService) RemoveFriend(ctx context.Context, friendID string) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}
	if !user.HasFriend(friendID) && !s.hasFriendInRoster(friendID) {
		return nil
	}

	mine := user.WithoutFriend(friendID)
	if err := s.players.Merge(ctx, user.ID, map[string]any{"friends": mine.Friends}); err != nil {
		return domainerrors.Unavailable(err, "failed to update friends")
	}

	friend, ok, err := s.players.Get(ctx, friendID)
	if err != nil {
		return domainerrors.Unavailable(err, "failed to read friend profile")
	}
	if ok && friend.HasFriend(user.ID) {
		theirs := friend.WithoutFriend(user.ID)
		if err := s.players.Merge(ctx, friendID, map[string]any{"friends": theirs.Friends}); err != nil {
			return domainerrors.Unavailable(err, "failed to update friend's friends")
		}
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == user.ID {
		p := s.current.WithoutFriend(friendID)
		s.current = &p
		s.friends = slices.DeleteFunc(slices.Clone(s.friends), func(f domain.Friend) bool { return f.ID == friendID })
	}
	s.mu.Unlock()

	s.logger.Info("friend removed", "user_id", user.ID, "friend_id", friendID)
	s.publish()
	return nil
}

func invitationsOf(s store.Store, userID string) *store.Collection[domain.Invitation] {
	return store.NewCollection(s, store.InvitationsPath(userID), func(inv *domain.Invitation, id string) { inv.ID = id })
}

// writeInvitation stores inv for inviteeID. The id is the record key.
func writeInvitation(ctx context.Context, s store.Store, inviteeID string, inv domain.Invitation) error {
	record := inv
	record.ID = ""
	if err := invitationsOf(s, inviteeID).Set(ctx, inv.ID, record); err != nil {
		return domainerrors.Unavailable(err, "failed to send invitation")
	}
	return nil
}
