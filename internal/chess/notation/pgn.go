package notation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/cheese-chess/internal/chess/rules"
)

// Result codes used in PGN movetext and the Result tag.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
	ResultOngoing   = "*"
)

// Tag is one PGN header pair. Order is preserved.
type Tag struct {
	Name  string
	Value string
}

// PGN renders the header tags followed by numbered movetext and the result
// code. The Result tag is written only for finished games.
func PGN(tags []Tag, san []string, result string) string {
	var sb strings.Builder
	for _, t := range tags {
		fmt.Fprintf(&sb, "[%s %q]\n", t.Name, t.Value)
	}
	if result != "" && result != ResultOngoing {
		fmt.Fprintf(&sb, "[Result %q]\n", result)
	}
	if len(tags) > 0 || (result != "" && result != ResultOngoing) {
		sb.WriteByte('\n')
	}
	text := rules.NumberedMoveText(san)
	sb.WriteString(text)
	if result != "" {
		if text != "" {
			sb.WriteByte(' ')
		}
		sb.WriteString(result)
	}
	return sb.String()
}

// DefaultTags are the tags every exported game carries.
func DefaultTags() []Tag {
	return []Tag{{Name: "Event", Value: "Chess game"}, {Name: "Round", Value: "-"}}
}

// ComputerTags describes a human player against an engine of the given Elo.
func ComputerTags(humanColor rules.Color, elo int) []Tag {
	white, black, eloTag := "Player", "Computer", "BlackElo"
	if humanColor == rules.Black {
		white, black, eloTag = "Computer", "Player", "WhiteElo"
	}
	return append(DefaultTags(),
		Tag{Name: "White", Value: white},
		Tag{Name: "Black", Value: black},
		Tag{Name: eloTag, Value: strconv.Itoa(elo)},
	)
}
