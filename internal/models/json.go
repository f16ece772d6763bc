package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSlice is a custom type for storing string arrays in JSON
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil || data == nil {
		*s = nil
		return err
	}
	return json.Unmarshal(data, s)
}

// JSON is a custom type for storing arbitrary JSON data
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil || data == nil {
		*j = nil
		return err
	}
	return json.Unmarshal(data, j)
}

// jsonBytes normalizes the raw column value; drivers return either []byte
// or string for JSON text columns.
func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json column type %T", value)
	}
}
