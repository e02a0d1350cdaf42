package types

// Property describes one property of a table as stored in the catalog.
type Property struct {
	Name       string
	DataType   PhysicalType
	PropertyID PropertyID
	TableID    TableID
}
