package warehouse

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
	"google.golang.org/api/googleapi"

	"go.nownabe.dev/permitloader"
)

// BigQuery connects to BigQuery in project. The schema of a TableRef is
// used as the dataset ID. Credentials are taken from the environment
// (Application Default Credentials).
func BigQuery(project string) permitloader.Connector {
	return permitloader.ConnectorFunc(func(ctx context.Context, _ *permitloader.Credentials) (permitloader.Warehouse, error) {
		bq, err := bigquery.NewClient(ctx, project)
		if err != nil {
			return nil, xerrors.Errorf("failed to build bigquery client for %s: %w", project, err)
		}
		return &bigQueryWarehouse{client: bq}, nil
	})
}

type bigQueryWarehouse struct {
	client *bigquery.Client
}

func (w *bigQueryWarehouse) CreateTable(ctx context.Context, t permitloader.TableRef, c *permitloader.Contract) error {
	table := w.client.Dataset(t.Schema).Table(t.Table)

	err := table.Create(ctx, &bigquery.TableMetadata{Schema: bigQuerySchema(c)})
	if err != nil && !isAlreadyExists(err) {
		return xerrors.Errorf("failed to create table %s: %w", t, err)
	}

	return nil
}

func isAlreadyExists(err error) bool {
	var e *googleapi.Error
	return xerrors.As(err, &e) && e.Code == http.StatusConflict
}

func bigQuerySchema(c *permitloader.Contract) bigquery.Schema {
	s := make(bigquery.Schema, len(c.Fields))
	for i, f := range c.Fields {
		var ft bigquery.FieldType
		switch f.Type {
		case permitloader.Integer:
			ft = bigquery.IntegerFieldType
		case permitloader.Decimal:
			ft = bigquery.NumericFieldType
		case permitloader.Boolean:
			ft = bigquery.BooleanFieldType
		case permitloader.Date:
			ft = bigquery.DateFieldType
		case permitloader.Timestamp:
			ft = bigquery.TimestampFieldType
		default:
			ft = bigquery.StringFieldType
		}
		s[i] = &bigquery.FieldSchema{Name: f.Name, Type: ft, Required: !f.Nullable}
	}
	return s
}

// Insert runs one load job for the rows.
func (w *bigQueryWarehouse) Insert(ctx context.Context, t permitloader.TableRef, c *permitloader.Contract, columns []string, rows [][]string) error {
	l := log.Ctx(ctx)

	if len(rows) == 0 {
		return nil
	}

	buf, err := contractCSV(c, columns, rows)
	if err != nil {
		return err
	}

	rs := bigquery.NewReaderSource(buf)
	rs.AllowQuotedNewlines = true

	loader := w.client.Dataset(t.Schema).Table(t.Table).LoaderFrom(rs)
	loader.CreateDisposition = bigquery.CreateNever
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return xerrors.Errorf("failed to run bigquery load job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return xerrors.Errorf("failed to wait job %s: %w", job.ID(), err)
	}

	if status.Err() != nil {
		l.Error().Msgf("failed to load csv: %v", status.Errors)
		return xerrors.Errorf("load job %s failed: %w", job.ID(), status.Err())
	}

	return nil
}

// contractCSV writes rows as CSV in contract column order with values in
// the formats BigQuery accepts.
func contractCSV(c *permitloader.Contract, columns []string, rows [][]string) (*bytes.Buffer, error) {
	values, err := c.Project(columns, rows)
	if err != nil {
		return nil, xerrors.Errorf("failed to convert rows: %w", err)
	}

	records := make([][]string, len(values))
	for i, r := range values {
		rec := make([]string, len(r))
		for j, v := range r {
			rec[j] = formatValue(c.Fields[j].Type, v)
		}
		records[i] = rec
	}

	buf := &bytes.Buffer{}
	if err := csv.NewWriter(buf).WriteAll(records); err != nil {
		return nil, xerrors.Errorf("failed to write csv: %w", err)
	}

	return buf, nil
}

func formatValue(t permitloader.Type, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		if t == permitloader.Date {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339Nano)
	case decimal.Decimal:
		return x.String()
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "true"
		}
		return "false"
	}
	return ""
}

func (w *bigQueryWarehouse) Close() error {
	return w.client.Close()
}
