// Package catalog registers exported CSV prefixes as AWS Glue tables
// and maps column types between SQL drivers and the Athena type system.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedType is returned for a column type with no Athena mapping
var ErrUnsupportedType = errors.New("unsupported column type")

// Kind is the reduced column type used when building table schemas.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBigInt
	KindFloat
	KindBool
	KindTimestamp
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBigInt:
		return "bigint"
	case KindFloat:
		return "double"
	case KindBool:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	default:
		return "string"
	}
}

// TypeToKind reduces an Athena/Hive type name to a Kind. Parameterized
// types (decimal(10,2), varchar(255)) reduce by their base name.
func TypeToKind(athenaType string) (Kind, error) {
	base := strings.ToLower(athenaType)
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = base[:i]
	}
	if i := strings.IndexByte(base, '<'); i >= 0 {
		base = base[:i]
	}

	switch base {
	case "tinyint", "smallint", "int", "integer":
		return KindInt, nil
	case "bigint":
		return KindBigInt, nil
	case "float", "real", "double", "decimal":
		return KindFloat, nil
	case "boolean":
		return KindBool, nil
	case "string", "char", "varchar", "array", "row", "map", "struct", "json":
		return KindString, nil
	case "timestamp":
		return KindTimestamp, nil
	case "date":
		return KindDate, nil
	default:
		return KindString, fmt.Errorf("%w: %s", ErrUnsupportedType, athenaType)
	}
}

// TypeSQLToAthena maps a database/sql DatabaseTypeName (as reported by
// lib/pq) to the Athena type used when registering the table.
func TypeSQLToAthena(sqlType string) (string, error) {
	switch strings.ToUpper(sqlType) {
	case "INT2", "INT4", "SERIAL":
		return "int", nil
	case "INT8", "BIGSERIAL":
		return "bigint", nil
	case "FLOAT4":
		return "float", nil
	case "FLOAT8", "NUMERIC", "DECIMAL":
		return "double", nil
	case "BOOL":
		return "boolean", nil
	case "TEXT", "VARCHAR", "BPCHAR", "CHAR", "NAME", "UUID", "JSON", "JSONB":
		return "string", nil
	case "TIMESTAMP", "TIMESTAMPTZ":
		return "timestamp", nil
	case "DATE":
		return "date", nil
	case "BYTEA":
		return "string", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, sqlType)
	}
}
