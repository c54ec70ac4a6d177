package games

import (
	"time"

	"github.com/park285/cheese-chess/internal/archive"
	"github.com/park285/cheese-chess/internal/chess/clock"
	"github.com/park285/cheese-chess/internal/chess/game"
	"github.com/park285/cheese-chess/internal/chess/notation"
	"github.com/park285/cheese-chess/internal/chess/openingbook"
	"github.com/park285/cheese-chess/internal/chess/rules"
	"github.com/park285/cheese-chess/internal/store"
	"github.com/park285/cheese-chess/pkg/chessdto"
)

func (s *Service) stateOf(sess *session) *chessdto.GameState {
	snap := sess.g.Snapshot()
	st := &chessdto.GameState{
		ID:         sess.id,
		Mode:       string(sess.mode),
		FEN:        snap.FEN,
		Turn:       snap.Turn.String(),
		Check:      snap.Check,
		Over:       snap.Over,
		Result:     notation.ResultOngoing,
		HalfMoves:  snap.HalfMoves,
		Moves:      snap.Raw,
		SAN:        snap.SAN,
		UnicodeSAN: snap.UnicodeSAN,
		MoveText:   snap.MoveText,
		LegalMoves: snap.Legal,
		AllowUndo:  sess.allowUndo,
		UpdatedAt:  time.Unix(0, sess.lastSeen.Load()).UTC(),
	}
	st.ECO, st.Opening = openingbook.Name(snap.Raw)
	if snap.Over {
		st.Result = snap.Outcome.Result()
		st.Winner = string(snap.Outcome.Winner)
		st.Cause = string(snap.Outcome.Cause)
		st.Message = s.msgs.GameOver(snap.Outcome)
	} else {
		st.Message = s.msgs.TurnStatus(snap.Turn, snap.Check)
	}
	if sess.cg != nil {
		st.HumanColor = sess.cg.HumanColor().String()
		st.Elo = sess.cg.Elo()
	}
	if snap.Timed {
		st.Clock = clockState(snap.WhiteLeft, snap.BlackLeft)
	}
	return st
}

func clockState(white, black time.Duration) *chessdto.ClockState {
	return &chessdto.ClockState{
		White:   clock.FormatRemaining(white),
		Black:   clock.FormatRemaining(black),
		WhiteMS: white.Milliseconds(),
		BlackMS: black.Milliseconds(),
	}
}

func (s *Service) recordOf(sess *session, version int64) *store.GameRecord {
	snap := sess.g.Snapshot()
	rec := &store.GameRecord{
		ID:          sess.id,
		Mode:        sess.mode,
		Version:     version,
		Moves:       snap.Raw,
		SAN:         snap.SAN,
		FEN:         snap.FEN,
		Status:      store.StatusActive,
		AllowUndo:   sess.allowUndo,
		IncrementMS: sess.increment.Milliseconds(),
		CreatedAt:   sess.createdAt,
		UpdatedAt:   time.Now(),
	}
	if snap.Over {
		rec.Status = store.StatusFinished
		rec.Winner = string(snap.Outcome.Winner)
		rec.Cause = string(snap.Outcome.Cause)
	}
	if sess.cg != nil {
		rec.HumanColor = sess.cg.HumanColor().String()
		rec.Elo = sess.cg.Elo()
	}
	if snap.Timed {
		rec.WhiteClockMS = snap.WhiteLeft.Milliseconds()
		rec.BlackClockMS = snap.BlackLeft.Milliseconds()
	}
	return rec
}

func (s *Service) stateOfRecord(rec *store.GameRecord) *chessdto.GameState {
	st := &chessdto.GameState{
		ID:         rec.ID,
		Mode:       string(rec.Mode),
		FEN:        rec.FEN,
		Over:       rec.Status != store.StatusActive,
		Result:     resultOf(rec.Winner),
		Winner:     rec.Winner,
		Cause:      rec.Cause,
		Moves:      rec.Moves,
		SAN:        rec.SAN,
		MoveText:   rules.NumberedMoveText(rec.SAN),
		HumanColor: rec.HumanColor,
		Elo:        rec.Elo,
		AllowUndo:  rec.AllowUndo,
		UpdatedAt:  rec.UpdatedAt,
	}
	st.ECO, st.Opening = openingbook.Name(rec.Moves)
	if len(rec.Moves)%2 == 0 {
		st.Turn = rules.White.String()
	} else {
		st.Turn = rules.Black.String()
	}
	if st.Over {
		st.Message = s.msgs.GameOver(game.Outcome{Winner: game.Winner(rec.Winner), Cause: game.Cause(rec.Cause)})
	}
	if rec.Timed() {
		st.Clock = clockState(time.Duration(rec.WhiteClockMS)*time.Millisecond, time.Duration(rec.BlackClockMS)*time.Millisecond)
	}
	return st
}

func resultOf(winner string) string {
	if winner == "" {
		return notation.ResultOngoing
	}
	return game.Outcome{Winner: game.Winner(winner)}.Result()
}

func tagsOf(mode store.Mode, humanColor string, elo int) []notation.Tag {
	if mode != store.ModeComputer {
		return notation.DefaultTags()
	}
	human, _ := parseColor(humanColor)
	return notation.ComputerTags(human, elo)
}

func archivedDTO(g *archive.FinishedGame) *chessdto.ArchivedGame {
	return &chessdto.ArchivedGame{
		ID:         g.ID,
		Mode:       g.Mode,
		HumanColor: g.HumanColor,
		Elo:        g.Elo,
		Result:     g.Result,
		Winner:     g.Winner,
		Cause:      g.Cause,
		SAN:        g.SAN,
		PGN:        g.PGN,
		StartedAt:  g.StartedAt,
		EndedAt:    g.EndedAt,
	}
}
