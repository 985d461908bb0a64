package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Devices, IDList and LineItems are stored as JSONB columns.

type Devices []Device

func (d Devices) Value() (driver.Value, error) { return jsonValue(d) }

func (d *Devices) Scan(src interface{}) error { return jsonScan(src, d) }

type IDList []string

func (l IDList) Value() (driver.Value, error) { return jsonValue(l) }

func (l *IDList) Scan(src interface{}) error { return jsonScan(src, l) }

// Contains reports whether id is present
func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

type LineItems []LineItem

func (li LineItems) Value() (driver.Value, error) { return jsonValue(li) }

func (li *LineItems) Scan(src interface{}) error { return jsonScan(src, li) }

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// nil slices are persisted as empty arrays
	if string(b) == "null" {
		return []byte("[]"), nil
	}
	return b, nil
}

func jsonScan(src interface{}, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dest)
	}
	return json.Unmarshal(data, dest)
}
