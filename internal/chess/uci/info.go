package uci

import (
	"strconv"
	"strings"
)

// Info is the evaluation reported by the engine's last "info ... pv" line.
type Info struct {
	Depth  int
	EvalCP int
	// Mate is moves to mate from the engine's point of view; 0 when not a mate score.
	Mate int
	PV   []string
}

const mateValue = 30000

func parseInfo(line string) (Info, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "info" {
		return Info{}, false
	}
	var info Info
	pvIdx := -1

	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					info.Depth = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				kind := parts[i+1]
				val := parts[i+2]
				switch kind {
				case "cp":
					if v, err := strconv.Atoi(val); err == nil {
						info.EvalCP = v
					}
				case "mate":
					if v, err := strconv.Atoi(val); err == nil {
						info.Mate = v
						if v >= 0 {
							info.EvalCP = mateValue
						} else {
							info.EvalCP = -mateValue
						}
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if pvIdx == -1 || pvIdx >= len(parts) {
		return Info{}, false
	}
	info.PV = append([]string(nil), parts[pvIdx:]...)
	return info, true
}

// parseBestMove reads "bestmove e2e4 [ponder e7e5]".
func parseBestMove(line string) (string, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[0] != "bestmove" {
		return "", false
	}
	if parts[1] == "(none)" || parts[1] == "0000" {
		return "", false
	}
	return parts[1], true
}
