package permitloader

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
)

// Provisioner creates destination tables. It remembers the tables it has
// provisioned so each is created at most once per run.
type Provisioner struct {
	Warehouse Warehouse

	done map[TableRef]struct{}
}

// Provision ensures t exists with the columns of c.
func (p *Provisioner) Provision(ctx context.Context, t TableRef, c *Contract) error {
	l := log.Ctx(ctx)

	if _, ok := p.done[t]; ok {
		l.Debug().Str("table", t.String()).Msg("table already provisioned in this run")
		return nil
	}

	if err := p.Warehouse.CreateTable(ctx, t, c); err != nil {
		return xerrors.Errorf("failed to provision %s: %w", t, err)
	}

	if p.done == nil {
		p.done = map[TableRef]struct{}{}
	}
	p.done[t] = struct{}{}

	l.Info().Str("table", t.String()).Msg("table provisioned")

	return nil
}
