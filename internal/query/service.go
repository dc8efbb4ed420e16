// Package query orchestrates the parse → plan → execute pipeline and exposes
// the engine's query API.
package query

import (
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	qerrors "github.com/AryanB1/SmartQuery/internal/errors"
	"github.com/AryanB1/SmartQuery/internal/observability"
	"github.com/AryanB1/SmartQuery/internal/query/executor"
	"github.com/AryanB1/SmartQuery/internal/query/parser"
	"github.com/AryanB1/SmartQuery/internal/query/planner"
	"github.com/AryanB1/SmartQuery/internal/storage"
	"github.com/AryanB1/SmartQuery/pkg/types"
)

// defaultPlanCacheSize bounds the parsed-statement cache.
const defaultPlanCacheSize = 256

// IndexAccess is the slice of the index manager the query path needs:
// predicate observations during planning and lookups during execution.
// *index.Manager satisfies it.
type IndexAccess interface {
	planner.UsageRecorder
	executor.IndexProber
}

// Config holds the query service tunables.
type Config struct {
	// PlanCacheSize is the parsed-statement LRU capacity
	PlanCacheSize int
}

// DefaultConfig returns the query service defaults.
func DefaultConfig() Config {
	return Config{PlanCacheSize: defaultPlanCacheSize}
}

// Service is the engine's query entry point.
type Service struct {
	store   *storage.ColumnStore
	indexes IndexAccess // may be nil
	exec    *executor.Executor
	metrics *observability.Metrics

	statements *lru.Cache[string, parser.Statement]
}

// NewService creates a query service over the store. The index access is
// optional; without it queries always take the scan path.
func NewService(store *storage.ColumnStore, indexes IndexAccess, metrics *observability.Metrics, cfg Config) *Service {
	if cfg.PlanCacheSize <= 0 {
		cfg.PlanCacheSize = defaultPlanCacheSize
	}

	var prober executor.IndexProber
	if indexes != nil {
		prober = indexes
	}

	// Size is validated above, so the constructor cannot fail.
	statements, _ := lru.New[string, parser.Statement](cfg.PlanCacheSize)

	return &Service{
		store:      store,
		indexes:    indexes,
		exec:       executor.New(store, prober),
		metrics:    metrics,
		statements: statements,
	}
}

// Execute parses, plans, and runs a query. Parse and plan failures surface
// as typed errors before any scan happens.
func (s *Service) Execute(req *types.QueryRequest) (*types.QueryResult, error) {
	started := time.Now()

	result, err := s.execute(req)
	if s.metrics != nil {
		if err != nil {
			s.metrics.QueriesFailed.Inc()
		} else {
			s.metrics.QueriesExecuted.Inc()
			s.metrics.QueryDuration.Observe(time.Since(started).Seconds())
		}
	}
	return result, err
}

func (s *Service) execute(req *types.QueryRequest) (*types.QueryResult, error) {
	stmt, err := s.parse(req)
	if err != nil {
		return nil, err
	}

	var usage planner.UsageRecorder
	if s.indexes != nil {
		usage = s.indexes
	}
	plan, err := planner.Plan(stmt, req, usage)
	if err != nil {
		return nil, err
	}

	return s.exec.Execute(plan)
}

// Explain parses and plans a query without executing it.
func (s *Service) Explain(req *types.QueryRequest) (*planner.PhysicalPlan, error) {
	stmt, err := s.parse(req)
	if err != nil {
		return nil, err
	}
	return planner.Plan(stmt, req, nil)
}

// ValidateSQL checks query syntax without planning or executing.
func (s *Service) ValidateSQL(sql string) error {
	_, err := s.parseSQL(sql)
	return err
}

// parse resolves the request's statement, consulting the LRU cache first.
func (s *Service) parse(req *types.QueryRequest) (parser.Statement, error) {
	if req == nil {
		return nil, qerrors.NewParseError(qerrors.CodeEmptyQuery, "empty query request")
	}
	return s.parseSQL(req.SQL)
}

func (s *Service) parseSQL(sql string) (parser.Statement, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, qerrors.NewParseError(qerrors.CodeEmptyQuery, "empty SQL query")
	}

	if stmt, ok := s.statements.Get(sql); ok {
		return stmt, nil
	}

	stmt, err := parser.Parse(sql)
	if err != nil {
		code := qerrors.CodeSyntaxError
		var parseErr *parser.ParseError
		if errors.As(err, &parseErr) && parseErr.Unsupported {
			code = qerrors.CodeUnsupportedFeature
		}
		return nil, qerrors.Wrap(qerrors.ErrCategoryParse, code, "invalid SQL", err)
	}

	s.statements.Add(sql, stmt)
	return stmt, nil
}

// TableNames returns the store's table names.
func (s *Service) TableNames() []string {
	return s.store.TableNames()
}

// TableExists reports whether a table holds any data.
func (s *Service) TableExists(table string) bool {
	for _, name := range s.store.TableNames() {
		if name == table {
			return true
		}
	}
	return false
}

// TotalEventCount returns the number of events across all tables.
func (s *Service) TotalEventCount() int64 {
	return s.store.Size()
}

// StorageStats returns the store's statistics.
func (s *Service) StorageStats() map[string]any {
	return s.store.Stats()
}
