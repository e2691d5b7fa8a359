// Package main prints a summary of a Badger-backed darkscore database.
//
// Usage:
//
//	DB_PATH=~/darkscore/db go run ./cmd/dbinspect
//	DB_PATH=~/darkscore/db go run ./cmd/dbinspect matches/<id>   # raw JSON at a path
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/darkscore/darkscore-server/internal/domain"
	"github.com/darkscore/darkscore-server/internal/logger"
	"github.com/darkscore/darkscore-server/internal/store"
	"github.com/darkscore/darkscore-server/internal/store/badgerdb"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/darkscore/db")
	}

	s, err := badgerdb.OpenReadOnly(dbPath, logger.Discard())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	if len(os.Args) > 1 {
		printPath(ctx, s, os.Args[1])
		return
	}

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	players := store.NewCollection(s, store.PlayersPath, func(p *domain.Profile, id string) { p.ID = id })
	names := make(map[string]string)
	friendships := 0
	fmt.Println("Players:")
	for p, err := range players.List(ctx) {
		if err != nil {
			log.Fatalf("Failed to list players: %v", err)
		}
		names[p.ID] = p.DisplayName
		friendships += len(p.Friends)
		fmt.Printf("  %-24s %-24s %-32s friends=%d\n", p.ID, p.DisplayName, p.Email, len(p.Friends))
	}
	fmt.Printf("  total: %d, friendships: %d\n", len(names), friendships/2)
	fmt.Println()

	matches := store.NewCollection(s, store.MatchesPath, func(m *domain.Match, id string) { m.ID = id })
	var active, ended []domain.Match
	for m, err := range matches.List(ctx) {
		if err != nil {
			log.Fatalf("Failed to list matches: %v", err)
		}
		if m.Active {
			active = append(active, m)
		} else {
			ended = append(ended, m)
		}
	}
	domain.SortByCreated(active)
	domain.SortByFinished(ended)

	fmt.Printf("Active matches: %d\n", len(active))
	for _, m := range active {
		printMatch(m, names)
	}
	fmt.Printf("Ended matches: %d\n", len(ended))
	for _, m := range ended {
		printMatch(m, names)
	}
	fmt.Println()

	docs, err := s.Scan(ctx, store.InvitationsRoot)
	if err != nil {
		log.Fatalf("Failed to scan invitations: %v", err)
	}
	perUser := make(map[string]int)
	for path := range docs {
		segs := store.Segments(path)
		if len(segs) == 4 {
			perUser[segs[1]]++
		}
	}
	fmt.Println("Pending invitations:")
	for _, userID := range slices.Sorted(maps.Keys(perUser)) {
		fmt.Printf("  %-24s %-24s %d\n", userID, names[userID], perUser[userID])
	}
}

func printPath(ctx context.Context, s store.Store, path string) {
	snap, err := s.Get(ctx, path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	if !snap.Exists {
		fmt.Printf("%s: not found\n", path)
		return
	}
	var out bytes.Buffer
	if err := json.Indent(&out, snap.Value, "", "  "); err != nil {
		log.Fatalf("Failed to format %s: %v", path, err)
	}
	fmt.Println(out.String())
}

func printMatch(m domain.Match, names map[string]string) {
	scores := make([]string, len(m.Standings()))
	for i, p := range m.Standings() {
		scores[i] = fmt.Sprintf("%s=%d", p.Name, p.Score)
	}
	fmt.Printf("  %-24s %-20s %-16s %s  [%s]  by %s\n",
		m.ID, m.Title, m.GameTitle, domain.FormatDuration(m.Duration()),
		strings.Join(scores, " "), names[m.CreatedBy])
}
