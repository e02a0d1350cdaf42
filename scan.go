package graphstore

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/hupe1980/graphstore/internal/predicate"
	"github.com/hupe1980/graphstore/internal/store"
	"github.com/hupe1980/graphstore/internal/types"
)

// Filter keeps the rows whose property compares to Value with Op.
// NULL never matches.
type Filter struct {
	Property string
	Op       Op
	Value    Value
}

// ScanConfig configures Tx.Scan.
type ScanConfig struct {
	// Properties to return. Empty returns every property.
	Properties []string
	// Filters are combined with AND. Node groups whose compression metadata
	// rules out a filter are skipped without reading their values.
	Filters []Filter
}

// ScanOption configures Tx.Scan.
type ScanOption func(*ScanConfig)

// WithScanProperties selects the returned properties.
func WithScanProperties(names ...string) ScanOption {
	return func(c *ScanConfig) {
		c.Properties = append(c.Properties, names...)
	}
}

// WithScanFilter adds a filter.
func WithScanFilter(property string, op Op, v Value) ScanOption {
	return func(c *ScanConfig) {
		c.Filters = append(c.Filters, Filter{Property: property, Op: op, Value: v})
	}
}

// Scan iterates the live nodes of table in offset order. A read-only
// transaction observes commits published between node groups.
//
// Example:
//
//	for row, err := range tx.Scan(ctx, "Person", graphstore.WithScanFilter("age", graphstore.Ge, graphstore.NewInt64(18))) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(row.Offset, row.Values["name"])
//	}
func (tx *Tx) Scan(ctx context.Context, table string, opts ...ScanOption) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		if err := tx.checkActive(); err != nil {
			yield(Row{}, err)
			return
		}
		t, err := tx.db.nodeTable(table)
		if err != nil {
			yield(Row{}, err)
			return
		}
		var cfg ScanConfig
		for _, opt := range opts {
			opt(&cfg)
		}
		props, state, err := newScanState(t, cfg)
		if err != nil {
			yield(Row{}, err)
			return
		}

		start := time.Now()
		rows := 0
		defer func() {
			tx.db.metrics.RecordScan(rows, time.Since(start))
			if state.PrunedGroups > 0 {
				tx.db.metrics.RecordPruned(state.PrunedGroups)
			}
		}()
		for {
			if err := ctx.Err(); err != nil {
				yield(Row{}, err)
				return
			}
			var more bool
			if err := tx.read(func() (err error) {
				more, err = t.Scan(tx.tx, state)
				return err
			}); err != nil {
				yield(Row{}, translateError(err))
				return
			}
			if !more {
				return
			}
			for i, off := range state.Offsets {
				row := Row{Offset: off, Values: make(map[string]Value, len(props))}
				for j, p := range props {
					row.Values[p.Name] = state.Vectors[j].Get(i)
				}
				rows++
				if !yield(row, nil) {
					return
				}
			}
		}
	}
}

func newScanState(t *store.NodeTable, cfg ScanConfig) ([]types.Property, *store.ScanState, error) {
	all := t.Properties()
	props, err := selectProperties(all, cfg.Properties)
	if err != nil {
		return nil, nil, err
	}
	state := &store.ScanState{PropertyIDs: make([]types.PropertyID, len(props))}
	for i, p := range props {
		state.PropertyIDs[i] = p.PropertyID
	}
	if len(cfg.Filters) > 0 {
		state.Predicates = make(map[types.PropertyID]*predicate.Set, len(cfg.Filters))
	}
	for _, f := range cfg.Filters {
		p, err := findProperty(all, f.Property)
		if err != nil {
			return nil, nil, err
		}
		if f.Value.Type() != p.DataType {
			return nil, nil, fmt.Errorf("%w: filter on %s is %s, got %s", ErrTypeMismatch, p.Name, p.DataType, f.Value.Type())
		}
		if f.Op > predicate.GreaterEqual {
			return nil, nil, fmt.Errorf("%w: unknown operator %d", ErrInvalidArgument, f.Op)
		}
		set, ok := state.Predicates[p.PropertyID]
		if !ok {
			set = predicate.NewSet()
			state.Predicates[p.PropertyID] = set
		}
		set.Add(predicate.NewConstant(f.Op, f.Value))
	}
	return props, state, nil
}
