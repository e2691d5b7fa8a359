// Package main seeds a Badger-backed darkscore database with players, friendships,
// matches and pending invitations.
//
// Seeded players can sign in with the dev identity provider using their e-mail address.
//
// Usage:
//
//	DB_PATH=~/darkscore/db go run ./cmd/seed
//	DB_PATH=~/darkscore/db go run ./cmd/seed --players 8 --matches 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/id"
	"github.com/darkscore/darkscore-server/internal/logger"
	"github.com/darkscore/darkscore-server/internal/store"
	"github.com/darkscore/darkscore-server/internal/store/badgerdb"
)

var (
	numPlayers = flag.Int("players", 6, "Number of players to create")
	numMatches = flag.Int("matches", 12, "Number of matches to create")
)

var names = []string{
	"Ana Lima", "Bruno Costa", "Carla Souza", "Diego Alves", "Elisa Rocha",
	"Felipe Dias", "Gabriela Nunes", "Hugo Martins", "Isabel Freitas", "João Pereira",
}

var games = []string{"Catan", "Carcassonne", "Ticket to Ride", "Azul", "Dominion", "Wingspan", "Truco"}

func main() {
	flag.Parse()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/darkscore/db")
	}

	fmt.Printf("Opening database at: %s\n", dbPath)

	s, err := badgerdb.Open(dbPath, logger.Discard())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	players := createPlayers(ctx, s, min(*numPlayers, len(names)))
	if len(players) < 2 {
		log.Fatal("Need at least two players to seed matches")
	}
	players = befriend(ctx, s, players, rng)
	createMatches(ctx, s, players, *numMatches, rng)
	createInvitations(ctx, s, players)

	fmt.Println("\nSeeding complete!")
	for _, p := range players {
		fmt.Printf("  sign in as: %s <%s>\n", p.DisplayName, p.Email)
	}
}

func createPlayers(ctx context.Context, s store.Store, n int) []domain.Profile {
	profiles := make([]domain.Profile, 0, n)
	for _, name := range names[:n] {
		first, _, _ := strings.Cut(name, " ")
		email := domain.NormalizeEmail(first + "@example.com")
		ident := domain.Identity{ID: id.FromName(email), DisplayName: name, Email: email}

		if err := s.Set(ctx, store.PlayerPath(ident.ID), ident.InitialRecord()); err != nil {
			log.Fatalf("Failed to create player %s: %v", email, err)
		}
		profiles = append(profiles, domain.ProfileFromIdentity(ident))
		fmt.Printf("Created player %s (%s)\n", name, ident.ID)
	}
	return profiles
}

// befriend makes everyone a friend of the first player and adds a few random pairs.
func befriend(ctx context.Context, s store.Store, players []domain.Profile, rng *rand.Rand) []domain.Profile {
	link := func(a, b int) {
		var changed bool
		if players[a], changed = players[a].WithFriend(players[b].ID); !changed {
			return
		}
		players[b], _ = players[b].WithFriend(players[a].ID)
	}

	for i := 1; i < len(players); i++ {
		link(0, i)
	}
	for range len(players) {
		a, b := rng.IntN(len(players)), rng.IntN(len(players))
		if a != b {
			link(a, b)
		}
	}

	friendships := 0
	for _, p := range players {
		if err := s.Merge(ctx, store.PlayerPath(p.ID), map[string]any{"friends": p.Friends}); err != nil {
			log.Fatalf("Failed to save friends of %s: %v", p.ID, err)
		}
		friendships += len(p.Friends)
	}
	fmt.Printf("Created %d friendships\n", friendships/2)
	return players
}

// createMatches spreads matches over the last two weeks. The three most recent stay active.
func createMatches(ctx context.Context, s store.Store, players []domain.Profile, n int, rng *rand.Rand) {
	now := time.Now()
	for i := range n {
		creator := players[rng.IntN(len(players))]
		game := games[rng.IntN(len(games))]
		matchID := id.MustGenerate(id.PrefixMatch)

		m := domain.NewMatch(matchID, fmt.Sprintf("%s night #%d", game, i+1), game, creator)
		m.CreatedAt = domain.At(now.Add(-time.Duration(n-i) * 26 * time.Hour))

		for _, p := range players {
			if p.ID != creator.ID && rng.IntN(2) == 0 {
				m, _ = m.WithPlayer(p.AsPlayer())
			}
		}
		for j := range m.Players {
			m.Players[j].Score = rng.IntN(15)
		}
		if i < n-3 {
			m = m.Ended(domain.At(m.CreatedAt.Time.Add(time.Duration(30+rng.IntN(120)) * time.Minute)))
		}

		record := m
		record.ID = ""
		if err := s.Set(ctx, store.MatchPath(matchID), record); err != nil {
			log.Fatalf("Failed to create match: %v", err)
		}
		fmt.Printf("Created match %s: %s, %d players, active=%t\n", matchID, m.Title, len(m.Players), m.Active)
	}
}

// createInvitations leaves the last player with one pending friendship invitation.
func createInvitations(ctx context.Context, s store.Store, players []domain.Profile) {
	inviter := players[len(players)-2]
	invitee := players[len(players)-1]
	if invitee.HasFriend(inviter.ID) {
		return
	}

	inv := domain.NewFriendInvitation(id.NewInvitation(), inviter)
	record := inv
	record.ID = ""
	if err := s.Set(ctx, store.InvitationPath(invitee.ID, inv.ID), record); err != nil {
		log.Fatalf("Failed to create invitation: %v", err)
	}
	fmt.Printf("Created invitation from %s to %s\n", inviter.DisplayName, invitee.DisplayName)
}
