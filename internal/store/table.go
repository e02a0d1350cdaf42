package store

import (
	"fmt"
	"slices"

	"github.com/hupe1980/graphstore/internal/types"
)

// TableKind is the closed set of table kinds.
type TableKind uint8

const (
	NodeTableKind TableKind = iota
	RelTableKind
)

func (k TableKind) String() string {
	switch k {
	case NodeTableKind:
		return "NODE"
	case RelTableKind:
		return "REL"
	}
	return fmt.Sprintf("TableKind(%d)", uint8(k))
}

// Table is implemented by every table kind.
type Table interface {
	ID() types.TableID
	Name() string
	Kind() TableKind
	Properties() []types.Property
	HasUpdates() bool
	CheckpointInMemory()
	RollbackInMemory()
}

// RelTable describes a relationship table. Only its schema is stored.
type RelTable struct {
	id    types.TableID
	name  string
	src   types.TableID
	dst   types.TableID
	props []types.Property
}

// NewRelTable returns a relationship table from src to dst.
func NewRelTable(id types.TableID, name string, src, dst types.TableID, props []types.Property) *RelTable {
	return &RelTable{id: id, name: name, src: src, dst: dst, props: slices.Clone(props)}
}

func (t *RelTable) ID() types.TableID            { return t.id }
func (t *RelTable) Name() string                 { return t.name }
func (t *RelTable) Kind() TableKind              { return RelTableKind }
func (t *RelTable) Properties() []types.Property { return slices.Clone(t.props) }
func (t *RelTable) SrcTableID() types.TableID    { return t.src }
func (t *RelTable) DstTableID() types.TableID    { return t.dst }
func (t *RelTable) HasUpdates() bool             { return false }
func (t *RelTable) CheckpointInMemory()          {}
func (t *RelTable) RollbackInMemory()            {}

// DropProperty removes a property from the schema.
func (t *RelTable) DropProperty(id types.PropertyID) bool {
	i := slices.IndexFunc(t.props, func(p types.Property) bool { return p.PropertyID == id })
	if i < 0 {
		return false
	}
	t.props = slices.Delete(t.props, i, i+1)
	return true
}

// AddProperty appends a property to the schema.
func (t *RelTable) AddProperty(p types.Property) { t.props = append(t.props, p) }
