package permitloader

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/xerrors"
)

// Option configures Loader.
type Option interface {
	apply(*Loader) error
}

type optionFunc func(*Loader) error

func (f optionFunc) apply(l *Loader) error {
	return f(l)
}

// WithPrettyLogging configures Loader to print human friendly logs.
func WithPrettyLogging() Option {
	return optionFunc(func(l *Loader) error {
		l.prettyLogging = true
		return nil
	})
}

// WithLogLevel sets the log level such as "debug" or "info".
func WithLogLevel(level string) Option {
	return optionFunc(func(l *Loader) error {
		lv, err := zerolog.ParseLevel(level)
		if err != nil {
			return xerrors.Errorf("invalid log level %q: %w", level, err)
		}
		l.logLevel = lv
		return nil
	})
}

// WithLogOutput sets the log destination. os.Stderr by default.
func WithLogOutput(w io.Writer) Option {
	return optionFunc(func(l *Loader) error {
		l.logOutput = w
		return nil
	})
}

// WithCredentials sets the credential provider. Required.
func WithCredentials(p CredentialProvider) Option {
	return optionFunc(func(l *Loader) error {
		l.credentials = p
		return nil
	})
}

// WithConnector sets the warehouse connector. Required.
func WithConnector(c Connector) Option {
	return optionFunc(func(l *Loader) error {
		l.connector = c
		return nil
	})
}

// WithFetcher replaces the default ArchiveFetcher.
func WithFetcher(f Fetcher) Option {
	return optionFunc(func(l *Loader) error {
		l.fetcher = f
		return nil
	})
}

// WithLinkGenerator replaces the default MonthlyLinks.
func WithLinkGenerator(g LinkGenerator) Option {
	return optionFunc(func(l *Loader) error {
		l.links = g
		return nil
	})
}

// WithContract sets the schema contract and the renames aligning archive
// columns to it. PermitContract and PermitRenames by default.
func WithContract(c *Contract, renames RenameMap) Option {
	return optionFunc(func(l *Loader) error {
		if c == nil || len(c.Fields) == 0 {
			return xerrors.New("contract must have fields")
		}
		l.contract = c
		l.renames = renames
		return nil
	})
}

// WithSampleSize sets the number of rows validated before a full load.
func WithSampleSize(n int) Option {
	return optionFunc(func(l *Loader) error {
		if n < 1 {
			return xerrors.Errorf("sample size must be positive: %d", n)
		}
		l.sampleSize = n
		return nil
	})
}

// WithLatest sets the schema key and chunk size used by RunLatest.
func WithLatest(schemaKey string, limit int) Option {
	return optionFunc(func(l *Loader) error {
		if limit < 1 {
			return xerrors.Errorf("chunk size must be positive: %d", limit)
		}
		l.latestSchema = schemaKey
		l.latestLimit = limit
		return nil
	})
}

// WithConcurrency sets how many archive entries are parsed at once when the
// default fetcher is used.
func WithConcurrency(n int) Option {
	return optionFunc(func(l *Loader) error {
		if n < 1 {
			return xerrors.Errorf("concurrency must be positive: %d", n)
		}
		l.concurrency = n
		return nil
	})
}

// WithEncoding sets the source encoding of CSV entries for the default fetcher.
func WithEncoding(e encoding.Encoding) Option {
	return optionFunc(func(l *Loader) error {
		l.encoding = e
		return nil
	})
}

// WithNotifier sets a notifier for period and run results.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(l *Loader) error {
		l.notifier = n
		return nil
	})
}

// WithMemoryProbe replaces the process memory probe.
func WithMemoryProbe(p MemoryProbe) Option {
	return optionFunc(func(l *Loader) error {
		l.memory = p
		return nil
	})
}

// WithClock replaces time.Now, used to pick the latest month.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(l *Loader) error {
		l.now = now
		return nil
	})
}
