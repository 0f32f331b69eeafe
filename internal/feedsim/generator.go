package feedsim

import (
	"encoding/json"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/sm64br/runwatch/internal/domain/category"
)

// Split counts and pace (ms) for each simulated category.
var routes = map[category.Category]struct {
	splits int
	pace   int64
}{
	category.Star0:   {splits: 8, pace: 380000},
	category.Star1:   {splits: 10, pace: 460000},
	category.Star16:  {splits: 12, pace: 900000},
	category.Star70:  {splits: 16, pace: 2880000},
	category.Star120: {splits: 24, pace: 5940000},
}

// Constants for run simulation.
const (
	liveChance      = 0.8
	emulatorChance  = 0.3
	splitJitterMs   = 4000
	maxPBImproveMs  = 30000
	truncatedLength = 24
)

// Frame is one telemetry payload as the live feed delivers it.
type Frame struct {
	User string   `json:"user"`
	Run  RunFrame `json:"run"`
}

// RunFrame is the run object of a Frame.
type RunFrame struct {
	Game               string       `json:"game"`
	Category           string       `json:"category"`
	CurrentlyStreaming bool         `json:"currentlyStreaming"`
	RunPercentage      float64      `json:"runPercentage"`
	BestPossible       int64        `json:"bestPossible"`
	PB                 int64        `json:"pb"`
	SOB                int64        `json:"sob"`
	Emulator           bool         `json:"emulator"`
	GameData           GameData     `json:"gameData"`
	Splits             []SplitFrame `json:"splits"`
}

// GameData carries the attempt counter and profile path.
type GameData struct {
	AttemptCount int64  `json:"attemptCount"`
	URL          string `json:"url"`
}

// SplitFrame is one split as the feed encodes it; index is a string there.
type SplitFrame struct {
	Index       string `json:"index"`
	Name        string `json:"name"`
	SplitTime   int64  `json:"splitTime"`
	PBSplitTime int64  `json:"pbSplitTime"`
}

type simRunner struct {
	name     string
	kind     category.Category
	pb       int64
	pbSplits []int64
	attempt  int64
	emulator bool
	live     bool

	// current attempt
	done    int
	elapsed []int64
}

// Generator produces frames for a fixed population of runners, advancing
// one runner by one split per frame.
type Generator struct {
	game      string
	malformed int
	rng       *rand.Rand
	runners   []*simRunner
	next      int
	count     int64
}

// NewGenerator creates a generator from cfg.
func NewGenerator(cfg *Config) *Generator {
	g := &Generator{
		game:      cfg.Game,
		malformed: cfg.MalformedEvery,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)), //nolint:gosec // simulation only
	}
	kinds := category.All()
	for i := 0; i < max(cfg.Runners, 1); i++ {
		kind := kinds[g.rng.IntN(len(kinds))]
		r := &simRunner{
			name:     "runner-" + uuid.NewString()[:8],
			kind:     kind,
			emulator: g.rng.Float64() < emulatorChance,
		}
		g.newPB(r)
		g.newAttempt(r)
		g.runners = append(g.runners, r)
	}
	return g
}

func (g *Generator) newPB(r *simRunner) {
	route := routes[r.kind]
	r.pbSplits = make([]int64, route.splits)
	var total int64
	for i := range r.pbSplits {
		total += route.pace/int64(route.splits) + g.rng.Int64N(splitJitterMs)
		r.pbSplits[i] = total
	}
	r.pb = total
}

func (g *Generator) newAttempt(r *simRunner) {
	r.attempt++
	r.done = 0
	r.elapsed = r.elapsed[:0]
	r.live = g.rng.Float64() < liveChance
}

// Count returns how many frames have been generated.
func (g *Generator) Count() int64 { return g.count }

// Next returns the next encoded frame.
func (g *Generator) Next() []byte {
	g.count++
	r := g.runners[g.next]
	g.next = (g.next + 1) % len(g.runners)

	g.advance(r)
	b, err := json.Marshal(g.frame(r))
	if err != nil {
		return nil
	}
	if g.malformed > 0 && g.count%int64(g.malformed) == 0 && len(b) > truncatedLength {
		return b[:truncatedLength]
	}
	return b
}

func (g *Generator) advance(r *simRunner) {
	if r.done == len(r.pbSplits) {
		if final := r.elapsed[len(r.elapsed)-1]; final < r.pb {
			r.pb = final
			copy(r.pbSplits, r.elapsed)
		}
		g.newAttempt(r)
	}
	var prev, pbPrev int64
	if r.done > 0 {
		prev = r.elapsed[r.done-1]
		pbPrev = r.pbSplits[r.done-1]
	}
	segment := r.pbSplits[r.done] - pbPrev
	// Segments land within a few seconds of PB pace, biased slightly faster.
	segment += g.rng.Int64N(splitJitterMs) - splitJitterMs*3/5
	r.elapsed = append(r.elapsed, prev+max(segment, 1))
	r.done++
}

func (g *Generator) frame(r *simRunner) Frame {
	total := len(r.pbSplits)
	current := r.elapsed[r.done-1]
	bpt := current + (r.pb - r.pbSplits[r.done-1])
	sob := r.pb - g.rng.Int64N(maxPBImproveMs)

	splits := make([]SplitFrame, r.done)
	for i := 0; i < r.done; i++ {
		splits[i] = SplitFrame{
			Index:       strconv.Itoa(i),
			Name:        "Split " + strconv.Itoa(i+1),
			SplitTime:   r.elapsed[i],
			PBSplitTime: r.pbSplits[i],
		}
	}

	return Frame{
		User: r.name,
		Run: RunFrame{
			Game:               g.game,
			Category:           r.kind.String(),
			CurrentlyStreaming: r.live,
			RunPercentage:      float64(r.done) / float64(total),
			BestPossible:       bpt,
			PB:                 r.pb,
			SOB:                min(sob, bpt),
			Emulator:           r.emulator,
			GameData: GameData{
				AttemptCount: r.attempt,
				URL:          r.name + "/" + g.game,
			},
			Splits: splits,
		},
	}
}
