package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Setting stores a runtime tunable as a JSON value.
type Setting struct {
	Key   string   `gorm:"type:varchar(128);primaryKey"` // Setting key.
	Value JSONText `gorm:"type:text"`                    // JSON value.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// JSONText is a raw JSON document kept in a text column.
type JSONText json.RawMessage

// Value implements driver.Valuer.
func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner. Numeric and boolean cells from older rows are re-encoded as JSON.
func (j *JSONText) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(JSONText(nil), v...)
	case string:
		*j = JSONText(v)
	case int64:
		*j = JSONText(strconv.FormatInt(v, 10))
	case float64:
		*j = JSONText(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		*j = JSONText(strconv.FormatBool(v))
	default:
		return fmt.Errorf("models: cannot scan %T into JSONText", src)
	}
	return nil
}

// MarshalJSON writes the stored document as-is.
func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return json.RawMessage(j).MarshalJSON()
}

// UnmarshalJSON keeps a copy of the raw document.
func (j *JSONText) UnmarshalJSON(data []byte) error {
	*j = append(JSONText(nil), data...)
	return nil
}
