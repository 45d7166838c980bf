package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Naming selects one of the two field conventions line records are written in.
type Naming int

const (
	// CamelNaming is used for local snapshots.
	CamelNaming Naming = iota
	// SnakeNaming is used on the remote endpoint.
	SnakeNaming
)

type concept int

const (
	conceptProduct concept = iota
	conceptProductID
	conceptDosePack
	conceptDosePackID
	conceptDeliveryDate
	conceptInstructions
)

// fieldTable maps each optional concept to its name under both conventions.
var fieldTable = [...]struct{ snake, camel string }{
	conceptProduct:      {"product", "product"},
	conceptProductID:    {"product_id", "productId"},
	conceptDosePack:     {"dose_pack", "dosePack"},
	conceptDosePackID:   {"dose_pack_id", "dosePackId"},
	conceptDeliveryDate: {"requested_delivery_date", "requestedDeliveryDate"},
	conceptInstructions: {"special_instructions", "specialInstructions"},
}

const fieldQuantity = "quantity"

// DateLayout is the calendar date format of RequestedDeliveryDate.
const DateLayout = "2006-01-02"

// DefaultDeliveryLeadDays is how far out a line without a delivery date is scheduled.
const DefaultDeliveryLeadDays = 3

func (n Naming) field(c concept) string {
	if n == SnakeNaming {
		return fieldTable[c].snake
	}
	return fieldTable[c].camel
}

// lookup returns the first non-null value for c, underscore naming first.
func (r RemoteLine) lookup(c concept) (json.RawMessage, bool) {
	for _, name := range []string{fieldTable[c].snake, fieldTable[c].camel} {
		if raw, ok := r[name]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

// lookupText is lookup for string concepts: an empty string counts as absent
// so the other naming still gets a chance.
func (r RemoteLine) lookupText(c concept) (string, error) {
	for _, name := range []string{fieldTable[c].snake, fieldTable[c].camel} {
		raw, ok := r[name]
		if !ok || isNull(raw) {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

// DefaultDeliveryDate returns the calendar date DefaultDeliveryLeadDays after now.
func DefaultDeliveryDate(now time.Time) string {
	return now.UTC().AddDate(0, 0, DefaultDeliveryLeadDays).Format(DateLayout)
}

// EncodeLine renders l as a record in the requested naming.
func EncodeLine(l Line, n Naming) (RemoteLine, error) {
	type field struct {
		name  string
		value any
	}
	fields := []field{
		{n.field(conceptProduct), l.Product},
		{n.field(conceptProductID), l.Product.ID},
		{n.field(conceptDosePack), l.DosePack},
		{n.field(conceptDosePackID), l.DosePack.ID},
		{fieldQuantity, l.Quantity},
		{n.field(conceptInstructions), l.SpecialInstructions},
	}
	if l.RequestedDeliveryDate != "" {
		fields = append(fields, field{n.field(conceptDeliveryDate), l.RequestedDeliveryDate})
	}

	rec := make(RemoteLine, len(fields))
	for _, f := range fields {
		raw, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.name, err)
		}
		rec[f.name] = raw
	}
	return rec, nil
}

// EncodeLines renders lines as a JSON array in the requested naming.
func EncodeLines(lines []Line, n Naming) ([]byte, error) {
	records, err := encodeRecords(lines, n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(records)
}

// EncodeItems renders lines as the {"items": [...]} full-replace payload.
func EncodeItems(lines []Line, n Naming) ([]byte, error) {
	records, err := encodeRecords(lines, n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Items []RemoteLine `json:"items"`
	}{Items: records})
}

func encodeRecords(lines []Line, n Naming) ([]RemoteLine, error) {
	records := make([]RemoteLine, 0, len(lines))
	for i, l := range lines {
		rec, err := EncodeLine(l, n)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseRecords accepts a bare array, {"items": [...]} or {"data": {"items": [...]}}.
// Array elements that are not objects are skipped.
func ParseRecords(data []byte) ([]RemoteLine, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("parse line records: %w", err)
		}
		records := make([]RemoteLine, 0, len(raws))
		for _, raw := range raws {
			var rec RemoteLine
			if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
				continue
			}
			records = append(records, rec)
		}
		return records, nil
	}

	var envelope struct {
		Items json.RawMessage `json:"items"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse line envelope: %w", err)
	}
	switch {
	case !isNull(envelope.Items):
		return ParseRecords(envelope.Items)
	case !isNull(envelope.Data):
		return ParseRecords(envelope.Data)
	default:
		return nil, nil
	}
}

// DecodeLine projects one record onto a Line, accepting either naming.
// A zero now leaves a missing delivery date empty instead of defaulting it.
func DecodeLine(rec RemoteLine, now time.Time) (Line, error) {
	var l Line

	if raw, ok := rec.lookup(conceptProduct); ok {
		if err := json.Unmarshal(raw, &l.Product); err != nil {
			return Line{}, err
		}
	}
	if l.Product.ID.IsZero() {
		if raw, ok := rec.lookup(conceptProductID); ok {
			if err := json.Unmarshal(raw, &l.Product.ID); err != nil {
				return Line{}, fmt.Errorf("product id: %w", err)
			}
		}
	}

	if raw, ok := rec.lookup(conceptDosePack); ok {
		if err := json.Unmarshal(raw, &l.DosePack); err != nil {
			return Line{}, err
		}
	}
	if l.DosePack.ID.IsZero() {
		if raw, ok := rec.lookup(conceptDosePackID); ok {
			if err := json.Unmarshal(raw, &l.DosePack.ID); err != nil {
				return Line{}, fmt.Errorf("dose pack id: %w", err)
			}
		}
	}

	qty, err := decodeQuantity(rec[fieldQuantity])
	if err != nil {
		return Line{}, err
	}
	l.Quantity = qty

	if l.RequestedDeliveryDate, err = rec.lookupText(conceptDeliveryDate); err != nil {
		return Line{}, fmt.Errorf("requested delivery date: %w", err)
	}
	if l.RequestedDeliveryDate == "" && !now.IsZero() {
		l.RequestedDeliveryDate = DefaultDeliveryDate(now)
	}

	if l.SpecialInstructions, err = rec.lookupText(conceptInstructions); err != nil {
		return Line{}, fmt.Errorf("special instructions: %w", err)
	}

	return l, nil
}

func decodeQuantity(raw json.RawMessage) (int, error) {
	if isNull(raw) {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("quantity: %w", err)
		}
		n = json.Number(strings.TrimSpace(s))
	}
	qty, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, fmt.Errorf("quantity %q is not an integer", n.String())
	}
	return qty, nil
}

// ProjectLines decodes records into a valid cart: undecodable records, lines
// without a product and lines with quantity below one are dropped, and
// duplicate keys collapse into the first occurrence with summed quantity.
func ProjectLines(records []RemoteLine, now time.Time) []Line {
	lines := make([]Line, 0, len(records))
	for _, rec := range records {
		l, err := DecodeLine(rec, now)
		if err != nil {
			continue
		}
		lines = append(lines, l)
	}
	return normalize(lines)
}

// DecodeLines parses a serialized cart in any accepted envelope.
func DecodeLines(data []byte, now time.Time) ([]Line, error) {
	records, err := ParseRecords(data)
	if err != nil {
		return nil, err
	}
	return ProjectLines(records, now), nil
}

func normalize(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := make(map[LineKey]int, len(lines))
	for _, l := range lines {
		if l.Product.ID.IsZero() || l.Quantity < 1 {
			continue
		}
		if i, ok := index[l.Key()]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.Key()] = len(out)
		out = append(out, l)
	}
	return out
}
