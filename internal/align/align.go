package align

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects which passes run. The zero value runs everything.
type Options struct {
	SkipStringNormalization bool
	SkipAlignment           bool
}

var tracer atomic.Pointer[zap.Logger]

func init() {
	tracer.Store(zap.NewNop())
}

// SetTraceLogger installs the logger used for diagnostic tracing. Tracing is
// emitted at debug level and never changes the output. A nil logger disables
// it.
func SetTraceLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	tracer.Store(l)
}

func tracing() (*zap.Logger, bool) {
	l := tracer.Load()
	return l, l.Core().Enabled(zapcore.DebugLevel)
}

// FormatString formats src with all passes enabled.
func FormatString(src string) (string, error) {
	return Format(src, Options{})
}

// Format normalizes string quotes and aligns columns of src. The input must be
// the output of a conforming line formatter; a *ScanError is returned when it
// cannot be tokenized.
func Format(src string, opts Options) (string, error) {
	log, trace := tracing()

	tokens, err := Tokenize(src)
	if err != nil {
		return "", err
	}
	if trace {
		for _, tok := range tokens {
			log.Debug("token", zap.Stringer("kind", tok.Kind), zap.String("text", tok.Text))
		}
	}

	table := BuildTable(tokens)
	regions := Regions(table)

	if !opts.SkipStringNormalization {
		for i, row := range table {
			if regions[i].Enabled {
				NormalizeStrings(row)
			}
		}
	}

	if !opts.SkipAlignment {
		contexts, err := BuildContexts(table, regions)
		if err != nil {
			return "", err
		}
		runs := GroupCells(contexts)
		if trace {
			traceRuns(log, runs)
		}
		Realign(table, runs)
	}

	return table.String(), nil
}

func traceRuns(log *zap.Logger, runs []Run) {
	for _, run := range runs {
		if len(run.Cells) < 2 {
			continue
		}
		rows := make([]int, len(run.Cells))
		for i, c := range run.Cells {
			rows[i] = c.Row
		}
		log.Debug("cell run",
			zap.Int("col", run.Col),
			zap.String("sep", run.Text),
			zap.Ints("rows", rows),
		)
	}
}
