package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sheet is a character sheet document. ID is server-assigned and immutable;
// SheetPassword is generated at creation and stripped from responses sent to
// non-owners. Legacy is reserved for a historical migration and is always
// false for documents written through this service.
type Sheet struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	SheetName     string    `json:"sheet_name"`
	SheetPassword string    `json:"sheet_password,omitempty"`
	IsPublic      bool      `json:"is_public"`
	Legacy        bool      `json:"legacy"`
	Attributes    SheetBody `json:"attributes"`
	LastUse       time.Time `json:"last_use"`
}

// SheetHead is the listing projection of a sheet (no payload, no password).
type SheetHead struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	SheetName string `json:"sheet_name"`
}

// SheetBody is the full attributes payload of a sheet.
type SheetBody struct {
	Sections []SheetSection `json:"sections"`
}

// SheetSection groups attributes under a name. Position defines the stable
// ordering and is the identity of "this section" across edits - not the name.
type SheetSection struct {
	Name       string      `json:"name"`
	Type       int         `json:"type"`
	Position   int         `json:"position"`
	Attributes []Attribute `json:"attributes"`
}

// Macro is a macro collection document.
type Macro struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	MacroName string    `json:"macro_name"`
	IsPublic  bool      `json:"is_public"`
	Legacy    bool      `json:"legacy"`
	Macros    MacroBody `json:"macros"`
	LastUse   time.Time `json:"last_use"`
}

// MacroHead is the listing projection of a macro document.
type MacroHead struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	MacroName string `json:"macro_name"`
}

// MacroBody is the full macros payload of a macro document.
type MacroBody struct {
	Sections []MacroSection `json:"sections"`
}

// MacroSection groups macro entries under a name.
type MacroSection struct {
	Name     string       `json:"name"`
	Position int          `json:"position"`
	Macros   []MacroEntry `json:"macros"`
}

// AttributeType is the closed set of sheet field variants.
// Values are stable wire identifiers.
type AttributeType int

const (
	AttributeText   AttributeType = 0
	AttributeNumber AttributeType = 1
	AttributeImage  AttributeType = 2
	AttributeList   AttributeType = 3
	AttributeBar    AttributeType = 4
)

// String returns a human-readable name for the attribute type.
func (t AttributeType) String() string {
	switch t {
	case AttributeText:
		return "TEXT"
	case AttributeNumber:
		return "NUMBER"
	case AttributeImage:
		return "IMAGE"
	case AttributeList:
		return "LIST"
	case AttributeBar:
		return "BAR"
	default:
		return fmt.Sprintf("AttributeType(%d)", int(t))
	}
}

// Validate checks if the AttributeType is a valid enum value.
func (t AttributeType) Validate() error {
	switch t {
	case AttributeText, AttributeNumber, AttributeImage, AttributeList, AttributeBar:
		return nil
	default:
		return fmt.Errorf("unknown attribute type: %d", int(t))
	}
}

// MacroEntryType is the closed set of macro entry variants.
type MacroEntryType int

const (
	MacroNormal        MacroEntryType = 0
	MacroModifierPlus  MacroEntryType = 1
	MacroModifierMinus MacroEntryType = 2
)

// Validate checks if the MacroEntryType is a valid enum value.
func (t MacroEntryType) Validate() error {
	switch t {
	case MacroNormal, MacroModifierPlus, MacroModifierMinus:
		return nil
	default:
		return fmt.Errorf("unknown macro type: %d", int(t))
	}
}

// ListItem is one entry of a LIST attribute. Quantity is kept as the decoded
// digit string so that out-of-range input is reported as a validation error
// rather than lost in integer conversion.
type ListItem struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
}

// ListValue is the value payload of a LIST attribute.
type ListValue struct {
	Items []ListItem `json:"items"`
}

// BarValue is the value payload of a BAR attribute. Components are kept as
// decoded strings; ordering constraints are checked after the integer
// patterns pass.
type BarValue struct {
	Actual string `json:"actual"`
	Min    string `json:"min"`
	Max    string `json:"max"`
	Step   string `json:"step"`
}

// Attribute is a sheet field: a tagged union over the AttributeType variants.
// Exactly one of Text, List, Bar carries the value depending on Type.
type Attribute struct {
	Name     string        `json:"name"`
	Position int           `json:"position"`
	Type     AttributeType `json:"type"`

	// Text holds the value for TEXT, NUMBER and IMAGE attributes.
	Text string `json:"-"`
	// List holds the value for LIST attributes.
	List *ListValue `json:"-"`
	// Bar holds the value for BAR attributes.
	Bar *BarValue `json:"-"`
}

// MacroEntry is one macro: a named dice expression with a modifier type.
type MacroEntry struct {
	Name     string         `json:"name"`
	Position int            `json:"position"`
	Value    string         `json:"value"`
	Type     MacroEntryType `json:"type"`
}

// StructuralError reports a payload whose JSON shape violates the document
// schema. It is fatal: field-level validation never runs on a structurally
// broken payload.
type StructuralError struct {
	Path   string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("malformed document payload at %s: %s", e.Path, e.Reason)
}

// FieldError is a single business rule violation, addressed to the payload
// area it occurred in ("sheet_name", "sections", "attributes", "macros").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// scalarString decodes a JSON scalar into its string form: strings verbatim,
// numbers and booleans as their literal text, null as the empty string.
// Objects and arrays are rejected.
func scalarString(raw json.RawMessage, path string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &StructuralError{Path: path, Reason: "invalid string"}
		}
		return s, nil
	case '{', '[':
		return "", &StructuralError{Path: path, Reason: "expected a scalar value"}
	case 'n': // null
		return "", nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return "", &StructuralError{Path: path, Reason: "expected a scalar value"}
			}
			return strconv.FormatBool(b), nil
		}
		return n.String(), nil
	}
}

// attributeWire is the raw wire shape of an attribute before the value is
// decoded per variant.
type attributeWire struct {
	Name     json.RawMessage `json:"name"`
	Position int             `json:"position"`
	Type     AttributeType   `json:"type"`
	Value    json.RawMessage `json:"value"`
}

// UnmarshalJSON decodes an attribute and its value payload according to the
// declared type tag. Unknown tags and wrong-shaped values are structural
// errors.
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var w attributeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return &StructuralError{Path: "attributes", Reason: "expected an attribute object"}
	}
	if err := w.Type.Validate(); err != nil {
		return &StructuralError{Path: "attributes.type", Reason: err.Error()}
	}

	name, err := scalarString(w.Name, "attributes.name")
	if err != nil {
		return err
	}

	a.Name = name
	a.Position = w.Position
	a.Type = w.Type
	a.Text = ""
	a.List = nil
	a.Bar = nil

	switch w.Type {
	case AttributeText, AttributeNumber, AttributeImage:
		s, err := scalarString(w.Value, "attributes.value")
		if err != nil {
			return err
		}
		a.Text = s

	case AttributeList:
		list, err := decodeListValue(w.Value)
		if err != nil {
			return err
		}
		a.List = list

	case AttributeBar:
		bar, err := decodeBarValue(w.Value)
		if err != nil {
			return err
		}
		a.Bar = bar
	}

	return nil
}

// MarshalJSON encodes the attribute back to the wire shape with a single
// polymorphic "value" key.
func (a Attribute) MarshalJSON() ([]byte, error) {
	out := struct {
		Name     string        `json:"name"`
		Position int           `json:"position"`
		Type     AttributeType `json:"type"`
		Value    any           `json:"value"`
	}{
		Name:     a.Name,
		Position: a.Position,
		Type:     a.Type,
	}
	switch a.Type {
	case AttributeList:
		if a.List != nil {
			out.Value = a.List
		} else {
			out.Value = &ListValue{Items: []ListItem{}}
		}
	case AttributeBar:
		if a.Bar != nil {
			out.Value = a.Bar
		} else {
			out.Value = &BarValue{}
		}
	default:
		out.Value = a.Text
	}
	return json.Marshal(out)
}

func decodeListValue(raw json.RawMessage) (*ListValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &ListValue{Items: []ListItem{}}, nil
	}
	var w struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &StructuralError{Path: "attributes.value", Reason: "expected a list value object"}
	}
	// An absent items key is treated as an empty list; a present key must be
	// an array.
	if len(w.Items) == 0 || string(w.Items) == "null" {
		return &ListValue{Items: []ListItem{}}, nil
	}
	var items []struct {
		Name     json.RawMessage `json:"name"`
		Quantity json.RawMessage `json:"quantity"`
	}
	if err := json.Unmarshal(w.Items, &items); err != nil {
		return nil, &StructuralError{Path: "attributes.value.items", Reason: "expected an array of items"}
	}
	list := &ListValue{Items: make([]ListItem, 0, len(items))}
	for _, it := range items {
		name, err := scalarString(it.Name, "attributes.value.items.name")
		if err != nil {
			return nil, err
		}
		qty, err := scalarString(it.Quantity, "attributes.value.items.quantity")
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, ListItem{Name: name, Quantity: qty})
	}
	return list, nil
}

func decodeBarValue(raw json.RawMessage) (*BarValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &BarValue{}, nil
	}
	var w struct {
		Actual json.RawMessage `json:"actual"`
		Min    json.RawMessage `json:"min"`
		Max    json.RawMessage `json:"max"`
		Step   json.RawMessage `json:"step"`
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &StructuralError{Path: "attributes.value", Reason: "expected a bar value object"}
	}
	bar := &BarValue{}
	var err error
	if bar.Actual, err = scalarString(w.Actual, "attributes.value.actual"); err != nil {
		return nil, err
	}
	if bar.Min, err = scalarString(w.Min, "attributes.value.min"); err != nil {
		return nil, err
	}
	if bar.Max, err = scalarString(w.Max, "attributes.value.max"); err != nil {
		return nil, err
	}
	if bar.Step, err = scalarString(w.Step, "attributes.value.step"); err != nil {
		return nil, err
	}
	return bar, nil
}

// macroEntryWire is the raw wire shape of a macro entry.
type macroEntryWire struct {
	Name     json.RawMessage `json:"name"`
	Position int             `json:"position"`
	Value    json.RawMessage `json:"value"`
	Type     MacroEntryType  `json:"type"`
}

// UnmarshalJSON decodes a macro entry, coercing scalar values to strings and
// rejecting unknown type tags as structural errors.
func (m *MacroEntry) UnmarshalJSON(data []byte) error {
	var w macroEntryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return &StructuralError{Path: "macros", Reason: "expected a macro object"}
	}
	if err := w.Type.Validate(); err != nil {
		return &StructuralError{Path: "macros.type", Reason: err.Error()}
	}
	name, err := scalarString(w.Name, "macros.name")
	if err != nil {
		return err
	}
	value, err := scalarString(w.Value, "macros.value")
	if err != nil {
		return err
	}
	m.Name = name
	m.Position = w.Position
	m.Value = value
	m.Type = w.Type
	return nil
}

// IsStructural reports whether err is (or wraps) a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
