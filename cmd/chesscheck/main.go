package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/cheese-chess/internal/chessclient"
	"github.com/park285/cheese-chess/pkg/chessdto"
)

func main() {
	baseURL := os.Getenv("CHESS_API_URL")
	wsURL := os.Getenv("CHESS_EVENTS_URL")
	requestID := os.Getenv("X_REQUEST_ID")

	if baseURL == "" {
		log.Fatal("CHESS_API_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if requestID != "" {
			m["X-Request-Id"] = requestID
		}
		return m
	}

	client := chessclient.NewClient(baseURL,
		chessclient.WithHeaderProvider(headers),
		chessclient.WithTimeout(30*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		log.Fatalf("/healthz error: %v", err)
	}

	st, err := client.CreateGame(ctx, chessdto.CreateGameRequest{Mode: "computer", HumanColor: "white", Level: "easy"})
	if err != nil {
		log.Fatalf("create game error: %v", err)
	}
	log.Printf("game %s created: elo=%d turn=%s", st.ID, st.Elo, st.Turn)

	if wsURL != "" {
		stream := chessclient.NewEventStream(wsURL, st.ID, 3)
		stream.SetHeaderProvider(headers)
		stream.OnStateChange(func(s chessclient.StreamState) {
			log.Printf("events state: %s", s)
		})
		stream.OnEvent(func(ev *chessdto.Event) {
			fmt.Printf("event %s move=%s fen=%s\n", ev.Type, ev.Move, ev.State.FEN)
		})
		if err := stream.Connect(ctx); err != nil {
			log.Printf("events connect error: %v", err)
		} else {
			defer stream.Close(context.Background())
		}
	} else {
		log.Println("CHESS_EVENTS_URL not set; skipping event stream check")
	}

	st, err = client.Move(ctx, st.ID, chessdto.MoveRequest{Move: "e2e4", Wait: true})
	if err != nil {
		log.Fatalf("move error: %v", err)
	}
	log.Printf("after e2e4: %s", st.MoveText)

	st, err = client.Resign(ctx, st.ID, chessdto.ResignRequest{})
	if err != nil {
		log.Fatalf("resign error: %v", err)
	}
	log.Printf("resigned: %s", st.Message)

	pgn, err := client.PGN(ctx, st.ID)
	if err != nil {
		log.Fatalf("pgn error: %v", err)
	}
	fmt.Println(pgn)

	// Let the stream deliver the end event.
	time.Sleep(time.Second)
}
