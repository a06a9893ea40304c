package sheets

import (
	"fmt"
	"time"

	"google.golang.org/api/sheets/v4"
)

func rowData(values []interface{}) *sheets.RowData {
	cells := make([]*sheets.CellData, len(values))
	for i, v := range values {
		cells[i] = &sheets.CellData{UserEnteredValue: extendedValue(v)}
	}
	return &sheets.RowData{Values: cells}
}

// extendedValue maps a scalar onto a typed cell value. Strings are always
// literal so a leading "=" is never evaluated as a formula. nil clears the cell.
func extendedValue(v interface{}) *sheets.ExtendedValue {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return &sheets.ExtendedValue{StringValue: &val}
	case bool:
		return &sheets.ExtendedValue{BoolValue: &val}
	case int:
		return number(float64(val))
	case int8:
		return number(float64(val))
	case int16:
		return number(float64(val))
	case int32:
		return number(float64(val))
	case int64:
		return number(float64(val))
	case uint:
		return number(float64(val))
	case uint8:
		return number(float64(val))
	case uint16:
		return number(float64(val))
	case uint32:
		return number(float64(val))
	case uint64:
		return number(float64(val))
	case float32:
		return number(float64(val))
	case float64:
		return number(val)
	case time.Time:
		s := val.UTC().Format(time.RFC3339)
		return &sheets.ExtendedValue{StringValue: &s}
	default:
		s := fmt.Sprint(val)
		return &sheets.ExtendedValue{StringValue: &s}
	}
}

func number(f float64) *sheets.ExtendedValue {
	return &sheets.ExtendedValue{NumberValue: &f}
}
