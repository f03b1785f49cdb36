// Package pgstore loads JWT trust rules from the control plane's postgres
// database. Rules are stored as JSONB rows keyed by the route they protect;
// rows failing validation are skipped and reported, never served.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/open-rails/jwtgate/rule"
)

type ruleRow struct {
	bun.BaseModel `bun:"table:jwt_rules,alias:r"`

	ID        int64        `bun:"id,pk,autoincrement"`
	Route     string       `bun:"route,notnull"`
	Rule      rule.JWTRule `bun:"rule,type:jsonb"`
	UpdatedAt time.Time    `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Store reads rules from the jwt_rules table.
type Store struct {
	db  *bun.DB
	log logrus.FieldLogger
}

// NewDB wraps a pgx pool for bun.
func NewDB(pool *pgxpool.Pool) *bun.DB {
	sqldb := stdlib.OpenDBFromPool(pool)
	return bun.NewDB(sqldb, pgdialect.New())
}

// NewStore builds a rule store over the given database handle.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db, log: logrus.StandardLogger()}
}

// All returns every valid rule, across routes.
func (s *Store) All(ctx context.Context) ([]rule.JWTRule, error) {
	var rows []ruleRow
	if err := s.db.NewSelect().Model(&rows).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: list rules: %w", err)
	}
	return s.validated(rows), nil
}

// ListByRoute returns the valid rules protecting one route, in stored order.
func (s *Store) ListByRoute(ctx context.Context, route string) ([]rule.JWTRule, error) {
	var rows []ruleRow
	err := s.db.NewSelect().Model(&rows).Where("route = ?", route).Order("id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list rules for route %q: %w", route, err)
	}
	return s.validated(rows), nil
}

func (s *Store) validated(rows []ruleRow) []rule.JWTRule {
	out := make([]rule.JWTRule, 0, len(rows))
	for _, row := range rows {
		if err := row.Rule.Validate(); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"rule_id": row.ID,
				"route":   row.Route,
			}).Warn("skipping invalid jwt rule")
			continue
		}
		out = append(out, row.Rule)
	}
	return out
}
