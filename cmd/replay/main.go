// Command replay rebuilds a belief state from a JSONL event log and prints
// the final snapshot. Useful for debugging logs exported from Redis or the
// session_events archive without running the server.
//
// Usage:
//
//	replay -players 4 [-variant cities_knights] [-top 10] events.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/oddsworth/cardseer/internal/logger"
	"github.com/oddsworth/cardseer/pkg/tracker"
)

func main() {
	players := flag.Int("players", 4, "number of players in the logged game")
	variant := flag.String("variant", "base", "card variant: base or cities_knights")
	topK := flag.Int("top", 10, "number of worlds to include in the snapshot")
	flag.Parse()

	logger.Init()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: replay -players N [-variant V] [-top K] events.jsonl")
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open event log")
	}
	defer f.Close()

	tr, err := tracker.New(*players, tracker.Variant(*variant))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create tracker")
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev tracker.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Fatal().Err(err).Int("line", line).Msg("Failed to decode event")
		}
		if err := tr.Apply(ev); err != nil {
			log.Fatal().Err(err).Int("line", line).Str("type", string(ev.Type)).Msg("Failed to apply event")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to read event log")
	}

	log.Info().
		Int("events", line).
		Int("worlds", tr.WorldCount()).
		Int("resets", tr.Resets()).
		Msg("Replay complete")

	out, err := json.MarshalIndent(tr.Snapshot(*topK), "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to marshal snapshot")
	}
	fmt.Println(string(out))
}
