package cppdbc

// ResultSet is a forward-only iterator over the rows of a relational query,
// with a single "current row" slot. Column access by index is 1-based.
type ResultSet interface {
	Next() (bool, error)

	IsBeforeFirst() bool
	IsAfterLast() bool
	Row() int

	GetInt(index int) (int64, error)
	GetIntByName(name string) (int64, error)
	GetLong(index int) (int64, error)
	GetLongByName(name string) (int64, error)
	GetDouble(index int) (float64, error)
	GetDoubleByName(name string) (float64, error)
	GetString(index int) (string, error)
	GetStringByName(name string) (string, error)
	GetBoolean(index int) (bool, error)
	GetBooleanByName(name string) (bool, error)
	IsNull(index int) (bool, error)
	IsNullByName(name string) (bool, error)
	GetBlob(index int) (Blob, error)

	ColumnNames() []string
	ColumnCount() int

	Close() error
}
