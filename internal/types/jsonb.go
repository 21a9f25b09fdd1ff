package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

var (
	_ sql.Scanner   = (*Document)(nil)
	_ driver.Valuer = Document{}
)

// scanJSONB scans a JSONB database value into dest. It handles nil values,
// []byte and string representations from different drivers.
func scanJSONB(dest any, value any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB converts a Go value to a JSONB-compatible driver.Value.
func valueJSONB(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner. The stored JSON is decoded over
// DefaultDocument so fields added since the row was written keep their
// defaults. A NULL column yields the defaults.
func (d *Document) Scan(value any) error {
	doc := DefaultDocument()
	if err := scanJSONB(&doc, value); err != nil {
		return err
	}
	*d = doc
	return nil
}

// Value implements driver.Valuer.
func (d Document) Value() (driver.Value, error) {
	return valueJSONB(d)
}
