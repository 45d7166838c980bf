package cart

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Identity is the current user context. Anonymous is the null identity.
type Identity string

const Anonymous Identity = ""

func (i Identity) IsAnonymous() bool { return i == Anonymous }

// Product is the denormalized product payload embedded in a cart line.
// Fields this package does not model are kept in Attributes and written back verbatim.
type Product struct {
	ID         ID
	Name       string
	Attributes map[string]json.RawMessage
}

// DosePack is the denormalized dose-pack variant embedded in a cart line.
type DosePack struct {
	ID         ID
	Doses      int
	Price      decimal.NullDecimal
	Attributes map[string]json.RawMessage
}

// Line is one purchasable selection. (Product.ID, DosePack.ID) is its natural key.
type Line struct {
	Product               Product
	DosePack              DosePack
	Quantity              int
	RequestedDeliveryDate string
	SpecialInstructions   string
}

type LineKey struct {
	ProductID ID
	PackID    ID
}

func (l Line) Key() LineKey {
	return LineKey{ProductID: l.Product.ID, PackID: l.DosePack.ID}
}

// State is the unit observed by persistence and sync.
type State struct {
	Identity Identity
	Lines    []Line
}

// RemoteLine is one raw line record as received from the remote endpoint or a snapshot.
type RemoteLine map[string]json.RawMessage

func (p Product) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Attributes)+2)
	for k, v := range p.Attributes {
		out[k] = v
	}
	out["id"] = p.ID
	if p.Name != "" {
		out["name"] = p.Name
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts a full product object or a bare id.
func (p *Product) UnmarshalJSON(data []byte) error {
	fields, id, err := splitObject(data)
	if err != nil {
		return fmt.Errorf("product: %w", err)
	}
	*p = Product{ID: id}
	if fields == nil {
		return nil
	}
	if err := takeField(fields, "id", &p.ID); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	if err := takeField(fields, "name", &p.Name); err != nil {
		return fmt.Errorf("product name: %w", err)
	}
	if len(fields) > 0 {
		p.Attributes = fields
	}
	return nil
}

func (d DosePack) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Attributes)+3)
	for k, v := range d.Attributes {
		out[k] = v
	}
	out["id"] = d.ID
	if d.Doses != 0 {
		out["doses"] = d.Doses
	}
	if d.Price.Valid {
		out["price"] = d.Price.Decimal.String()
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts a full dose-pack object or a bare id.
func (d *DosePack) UnmarshalJSON(data []byte) error {
	fields, id, err := splitObject(data)
	if err != nil {
		return fmt.Errorf("dose pack: %w", err)
	}
	*d = DosePack{ID: id}
	if fields == nil {
		return nil
	}
	if err := takeField(fields, "id", &d.ID); err != nil {
		return fmt.Errorf("dose pack id: %w", err)
	}
	if err := takeField(fields, "doses", &d.Doses); err != nil {
		return fmt.Errorf("dose pack doses: %w", err)
	}
	if err := takeField(fields, "price", &d.Price); err != nil {
		return fmt.Errorf("dose pack price: %w", err)
	}
	if len(fields) > 0 {
		d.Attributes = fields
	}
	return nil
}

// splitObject returns the object fields for a JSON object, or the id for a scalar.
func splitObject(data []byte) (map[string]json.RawMessage, ID, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, "", err
		}
		return fields, "", nil
	}
	var id ID
	if err := id.UnmarshalJSON(data); err != nil {
		return nil, "", err
	}
	return nil, id, nil
}

// takeField decodes fields[name] into dst and removes it; null and missing leave dst untouched.
func takeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	delete(fields, name)
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func cloneLines(lines []Line) []Line {
	if len(lines) == 0 {
		return []Line{}
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}
