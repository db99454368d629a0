package relational

import (
	"github.com/nlstn/go-optimade/internal/transform/sqlfilter"
)

// entryRow is one entry. Data holds the full entry as JSON; the attribute
// tables only exist to be filtered and sorted on.
type entryRow struct {
	ID   string `gorm:"column:id;primaryKey"`
	Type string `gorm:"column:type;index"`
	Data string `gorm:"column:data;not null"`
}

func (entryRow) TableName() string { return sqlfilter.EntriesTable }

// Attribute rows hold one value each. Scalars have a single row at
// position 0; lists have one row per element.

type stringAttribute struct {
	ID       uint   `gorm:"primaryKey"`
	EntryID  string `gorm:"column:entry_id;not null;index:idx_string_attributes_key_value,priority:3;index"`
	Key      string `gorm:"column:key;not null;index:idx_string_attributes_key_value,priority:1"`
	Position int    `gorm:"column:position;not null"`
	Value    string `gorm:"column:value;not null;index:idx_string_attributes_key_value,priority:2"`
}

func (stringAttribute) TableName() string { return sqlfilter.StringTable }

type integerAttribute struct {
	ID       uint   `gorm:"primaryKey"`
	EntryID  string `gorm:"column:entry_id;not null;index:idx_integer_attributes_key_value,priority:3;index"`
	Key      string `gorm:"column:key;not null;index:idx_integer_attributes_key_value,priority:1"`
	Position int    `gorm:"column:position;not null"`
	Value    int64  `gorm:"column:value;not null;index:idx_integer_attributes_key_value,priority:2"`
}

func (integerAttribute) TableName() string { return sqlfilter.IntegerTable }

type floatAttribute struct {
	ID       uint    `gorm:"primaryKey"`
	EntryID  string  `gorm:"column:entry_id;not null;index:idx_float_attributes_key_value,priority:3;index"`
	Key      string  `gorm:"column:key;not null;index:idx_float_attributes_key_value,priority:1"`
	Position int     `gorm:"column:position;not null"`
	Value    float64 `gorm:"column:value;not null;index:idx_float_attributes_key_value,priority:2"`
}

func (floatAttribute) TableName() string { return sqlfilter.FloatTable }

// models lists every table in migration order.
func models() []any {
	return []any{&entryRow{}, &stringAttribute{}, &integerAttribute{}, &floatAttribute{}}
}
