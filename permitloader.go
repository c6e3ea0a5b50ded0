package permitloader

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/xerrors"
)

const (
	// DefaultSampleSize is the number of rows validated before a full load.
	DefaultSampleSize = 1000

	// DefaultLatestSchema is the schema key RunLatest loads into.
	DefaultLatestSchema = "schema_24"
)

var (
	errNoCredentials = errors.New("credential provider is not configured")
	errNoConnector   = errors.New("warehouse connector is not configured")
	errNoPeriods     = errors.New("no periods to load")
)

// PeriodResult is the outcome of loading one period.
type PeriodResult struct {
	Period   Period
	Table    TableRef
	Endpoint string
	Rows     int
	Chunks   int
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	// Periods are the periods loaded successfully, in load order.
	Periods []PeriodResult

	// Failed is the period being processed when the run stopped, if any.
	// Its Rows and Chunks count what was inserted before the failure.
	Failed *PeriodResult

	// Err is the error that stopped the run.
	Err error

	// MemoryDelta is the growth of the resident set size in bytes.
	MemoryDelta int64
}

// Succeeded returns the number of periods loaded.
func (r *RunResult) Succeeded() int {
	return len(r.Periods)
}

// Loader loads monthly archives into a warehouse.
type Loader struct {
	credentials CredentialProvider
	connector   Connector
	fetcher     Fetcher
	links       LinkGenerator
	notifier    Notifier
	memory      MemoryProbe
	now         func() time.Time

	contract     *Contract
	renames      RenameMap
	sampleSize   int
	latestSchema string
	latestLimit  int
	concurrency  int
	encoding     encoding.Encoding

	prettyLogging bool
	logLevel      zerolog.Level
	logOutput     io.Writer
	logger        zerolog.Logger
}

// New builds a new Loader.
func New(opts ...Option) (*Loader, error) {
	l := &Loader{
		links:        MonthlyLinks{BaseURL: DefaultBaseURL},
		memory:       processProbe{},
		now:          time.Now,
		contract:     PermitContract(),
		renames:      PermitRenames(),
		sampleSize:   DefaultSampleSize,
		latestSchema: DefaultLatestSchema,
		latestLimit:  DefaultChunkSize,
		concurrency:  1,
		logLevel:     zerolog.InfoLevel,
		logOutput:    os.Stderr,
	}

	for _, o := range opts {
		if err := o.apply(l); err != nil {
			return nil, xerrors.Errorf("failed to apply option: %w", err)
		}
	}

	if l.credentials == nil {
		return nil, errNoCredentials
	}
	if l.connector == nil {
		return nil, errNoConnector
	}

	if l.fetcher == nil {
		f := NewArchiveFetcher()
		f.Concurrency = l.concurrency
		f.Encoding = l.encoding
		l.fetcher = f
	}

	out := l.logOutput
	if l.prettyLogging {
		out = zerolog.ConsoleWriter{Out: out}
	}
	l.logger = zerolog.New(out).Level(l.logLevel).With().Timestamp().Logger()

	return l, nil
}

// RunHistoric loads the months startMonth to endMonth (inclusive) of year into
// the schema stored under schemaKey, inserting limit rows at a time.
func (l *Loader) RunHistoric(ctx context.Context, schemaKey string, limit, year, startMonth, endMonth int) (*RunResult, error) {
	periods, err := PeriodRange(year, startMonth, endMonth)
	if err != nil {
		return nil, err
	}
	return l.Run(ctx, schemaKey, limit, periods)
}

// RunLatest loads the last completed month with the options given by WithLatest.
func (l *Loader) RunLatest(ctx context.Context) (*RunResult, error) {
	return l.Run(ctx, l.latestSchema, l.latestLimit, []Period{LatestPeriod(l.now())})
}

// Run loads periods in ascending order over a single warehouse connection.
// The first error stops the run. Periods loaded before it stay committed and
// rows already inserted for the failing period are not rolled back.
func (l *Loader) Run(ctx context.Context, schemaKey string, limit int, periods []Period) (*RunResult, error) {
	if limit <= 0 {
		return nil, errInvalidChunkSize
	}
	if len(periods) == 0 {
		return nil, errNoPeriods
	}
	for _, p := range periods {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	periods = sortPeriods(periods)

	started := l.now()
	res := &RunResult{RunID: uuid.NewString(), StartedAt: started}

	lg := l.logger.With().Str("run_id", res.RunID).Logger()
	ctx = lg.WithContext(ctx)
	ctx = withRunID(ctx, res.RunID)
	ctx = withStartedTime(ctx, started)

	lg.Info().Str("schema_key", schemaKey).Int("limit", limit).Int("periods", len(periods)).
		Msg("run started")

	mem := startMemoryScope(l.memory)
	err := l.run(ctx, schemaKey, limit, periods, res)
	res.MemoryDelta = mem.end()
	res.Duration = l.now().Sub(started)
	res.Err = err

	ev := lg.Info()
	if err != nil {
		ev = lg.Error().Err(err)
	}
	ev.Int("succeeded", res.Succeeded()).
		Float64("memory_mb", float64(res.MemoryDelta)/(1024*1024)).
		Dur("duration", res.Duration).
		Msg("run finished")

	l.notify(ctx, &Result{RunID: res.RunID, Run: res, Error: err})

	return res, err
}

func (l *Loader) run(ctx context.Context, schemaKey string, limit int, periods []Period, res *RunResult) error {
	lg := log.Ctx(ctx)

	creds, err := l.credentials.Credentials(ctx)
	if err != nil {
		return &ConnectionError{Err: xerrors.Errorf("failed to resolve credentials: %w", err)}
	}

	schema, err := creds.Schema(schemaKey)
	if err != nil {
		return &ConnectionError{Err: err}
	}

	wh, err := l.connector.Connect(ctx, creds)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer func() {
		if err := wh.Close(); err != nil {
			lg.Warn().Err(err).Msg("failed to close warehouse connection")
		}
	}()

	prov := &Provisioner{Warehouse: wh}
	bl := &BatchLoader{Warehouse: wh, ChunkSize: limit}

	for _, p := range periods {
		pr, err := l.loadPeriod(ctx, p, schema, prov, bl)
		if err != nil {
			res.Failed = pr
			l.notify(ctx, &Result{RunID: res.RunID, Period: pr, Error: err})
			return xerrors.Errorf("failed to load %s: %w", p, err)
		}

		res.Periods = append(res.Periods, *pr)

		ev := lg.Info().Str("table", pr.Table.String()).Int("rows", pr.Rows).Int("chunks", pr.Chunks)
		if t, ok := startedTimeFrom(ctx); ok {
			ev = ev.Dur("elapsed", l.now().Sub(t))
		}
		ev.Msgf("data for %s has been processed", pr.Table.Table)
		l.notify(ctx, &Result{RunID: res.RunID, Period: pr})
	}

	lg.Info().Msg("data for all periods has been processed")

	return nil
}

func (l *Loader) loadPeriod(ctx context.Context, p Period, schema string, prov *Provisioner, bl *BatchLoader) (*PeriodResult, error) {
	endpoint := l.links.Endpoint(p)
	table := TableRef{Schema: schema, Table: p.TableID()}
	pr := &PeriodResult{Period: p, Table: table, Endpoint: endpoint}

	lg := log.Ctx(ctx).With().Str("table", table.String()).Str("endpoint", endpoint).Logger()
	ctx = lg.WithContext(ctx)

	if err := l.checkSample(ctx, endpoint); err != nil {
		return pr, err
	}

	if err := prov.Provision(ctx, table, l.contract); err != nil {
		return pr, err
	}

	raw, err := l.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		return pr, err
	}

	b, err := l.renames.Normalize(raw)
	if err != nil {
		return pr, err
	}

	stats, err := bl.Load(ctx, table, l.contract, b)
	pr.Rows, pr.Chunks = stats.Rows, stats.Chunks
	if err != nil {
		return pr, err
	}

	return pr, nil
}

// checkSample fetches the archive and validates its first rows. The fetched
// batch is dropped afterwards.
func (l *Loader) checkSample(ctx context.Context, endpoint string) error {
	lg := log.Ctx(ctx)

	raw, err := l.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		return err
	}

	sample, err := l.renames.Normalize(raw.Sample(l.sampleSize))
	if err != nil {
		return err
	}

	if err := l.contract.Check(sample); err != nil {
		lg.Error().Err(err).Msg("sample does not match the schema contract")
		return err
	}

	lg.Debug().Int("rows", sample.Len()).Strs("columns", sample.Columns).Msg("sample validated")

	return nil
}

func (l *Loader) notify(ctx context.Context, r *Result) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, r); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to notify")
	}
}
