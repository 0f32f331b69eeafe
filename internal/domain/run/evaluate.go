package run

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sm64br/runwatch/internal/domain/category"
)

// Defaults used when no option overrides them.
const (
	DefaultGame           = "Super Mario 64"
	DefaultProfileBaseURL = "https://therun.gg"
)

// Evaluator checks payloads against a threshold table.
type Evaluator struct {
	table          category.Table
	game           string
	profileBaseURL string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithGame sets the monitored game title, matched by prefix.
func WithGame(game string) Option {
	return func(e *Evaluator) {
		if game != "" {
			e.game = game
		}
	}
}

// WithProfileBaseURL sets the prefix joined with the payload's run path.
func WithProfileBaseURL(base string) Option {
	return func(e *Evaluator) {
		if base != "" {
			e.profileBaseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewEvaluator creates an Evaluator over table.
func NewEvaluator(table category.Table, opts ...Option) *Evaluator {
	e := &Evaluator{
		table:          table,
		game:           DefaultGame,
		profileBaseURL: DefaultProfileBaseURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate is NewEvaluator(table).Evaluate(payload).
func Evaluate(payload []byte, table category.Table) Result {
	return NewEvaluator(table).Evaluate(payload)
}

func rejected(reason Reason, runner string) Result {
	return Result{Reason: reason, Runner: runner}
}

func parseError(runner string, err error) Result {
	return Result{Reason: ReasonParseError, Runner: runner, Err: err}
}

// Evaluate decides whether payload describes a qualifying live run. It
// never panics and never returns an error; failures are reported in Result.
func (e *Evaluator) Evaluate(payload []byte) Result {
	root, err := decodeObject(payload)
	if err != nil {
		return parseError("", fmt.Errorf("%w: %w", ErrMalformedPayload, err))
	}

	// Identity is read leniently so rejections can still be attributed.
	runner, userErr := root.str("user")

	data, err := root.object("run")
	if err != nil {
		return parseError(runner, err)
	}

	game, err := data.str("game")
	if err != nil {
		return parseError(runner, err)
	}
	if !strings.HasPrefix(game, e.game) {
		return rejected(ReasonWrongGame, runner)
	}

	live, err := data.boolean("currentlyStreaming")
	if err != nil {
		return parseError(runner, err)
	}
	if !live {
		return rejected(ReasonNotLive, runner)
	}

	label, err := data.str("category")
	if err != nil {
		return parseError(runner, err)
	}
	kind := category.Classify(label)
	if kind == category.Unknown {
		return rejected(ReasonUnknownCategory, runner)
	}
	threshold, ok := e.table.Lookup(kind)
	if !ok {
		return rejected(ReasonNoThreshold, runner)
	}

	percentage, err := data.number("runPercentage")
	if err != nil {
		return parseError(runner, err)
	}
	if percentage < threshold.MinPercentage {
		return rejected(ReasonBelowPercentage, runner)
	}

	bpt, err := data.integer("bestPossible")
	if err != nil {
		return parseError(runner, err)
	}
	if bpt > threshold.MaxBPT {
		return rejected(ReasonAboveBestPossible, runner)
	}

	pb, err := data.integer("pb")
	if err != nil {
		return parseError(runner, err)
	}
	if pb < bpt {
		return rejected(ReasonImpossiblePB, runner)
	}

	if userErr != nil {
		return parseError(runner, userErr)
	}

	r := &Run{
		Runner:     runner,
		Category:   label,
		Kind:       kind,
		Percentage: percentage,
		PB:         pb,
		BPT:        bpt,
	}
	if r.SOB, err = data.integer("sob"); err != nil {
		return parseError(runner, err)
	}
	if r.Emulator, err = data.boolean("emulator"); err != nil {
		return parseError(runner, err)
	}
	gameData, err := data.object("gameData")
	if err != nil {
		return parseError(runner, err)
	}
	if r.Attempts, err = gameData.integer("attemptCount"); err != nil {
		return parseError(runner, err)
	}
	path, err := gameData.str("url")
	if err != nil {
		return parseError(runner, err)
	}
	r.URL = e.profileBaseURL + "/" + strings.TrimLeft(path, "/")
	r.Splits = parseSplits(data["splits"])

	return Result{Reason: ReasonOK, Runner: runner, Run: r}
}

// parseSplits decodes splits best-effort: the first entry that cannot be
// read ends processing, and the entries before it are kept.
func parseSplits(raw json.RawMessage) []Split {
	if len(raw) == 0 {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	byIndex := make(map[int]Split, len(entries))
	for _, entry := range entries {
		s, ok := parseSplit(entry)
		if !ok {
			break
		}
		byIndex[s.Index] = s
	}

	splits := make([]Split, 0, len(byIndex))
	for _, s := range byIndex {
		splits = append(splits, s)
	}
	sort.Slice(splits, func(i, j int) bool { return splits[i].Index < splits[j].Index })
	return splits
}

func parseSplit(raw json.RawMessage) (Split, bool) {
	f, err := decodeObject(raw)
	if err != nil {
		return Split{}, false
	}
	idx, err := f.index("index")
	if err != nil {
		return Split{}, false
	}
	name, err := f.str("name")
	if err != nil {
		return Split{}, false
	}
	elapsed, err := f.integer("splitTime")
	if err != nil {
		return Split{}, false
	}
	pbElapsed, err := f.integer("pbSplitTime")
	if err != nil {
		return Split{}, false
	}
	return Split{Index: idx, Name: name, Time: elapsed, Delta: elapsed - pbElapsed}, true
}
