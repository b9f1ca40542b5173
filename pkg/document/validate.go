package document

import (
	"regexp"
	"strconv"
	"strings"
)

// Validation limits shared by both document kinds.
const (
	MaxDocumentNameLen = 32
	MinSectionNameLen  = 1
	MaxSectionNameLen  = 20
	MaxFieldNameLen    = 32
	MaxTextValueLen    = 1024
	MaxListItemNameLen = 1024
	MaxQuantityDigits  = 32
	MaxBarComponentLen = 32
	MaxDiceValueLen    = 128
)

// Named pattern matchers used by every rule below. The restricted text class
// is Unicode letters (including the Latin-1 accented set), digits, a fixed
// punctuation set and space.
var (
	restrictedTextPattern = regexp.MustCompile(`^[a-zA-Z0-9áàâãéèêíïóôõöúçñÁÀÂÃÉÈÍÏÓÔÕÖÚÇÑ+#@$%&*{}()/.,;:?!'"\-_| ]+$`)
	signedIntPattern      = regexp.MustCompile(`^-?[0-9]+$`)
	nonNegativeIntPattern = regexp.MustCompile(`^[0-9]+$`)
	imageURLPattern       = regexp.MustCompile(`(?i)^https?://\S+\.(png|jpg|jpeg|gif|svg|webp)(\?\S*)?$`)
	forbiddenNameChars    = regexp.MustCompile(`['$%]`)
)

// IsRestrictedText reports whether s consists solely of the restricted text
// character class.
func IsRestrictedText(s string) bool {
	return restrictedTextPattern.MatchString(s)
}

// IsImageURL reports whether s looks like an http(s) URL to a common image
// format.
func IsImageURL(s string) bool {
	return imageURLPattern.MatchString(s)
}

// ValidDocumentName reports whether name is acceptable as a sheet or macro
// document name: non-empty, at most 32 characters and free of quote, dollar
// and percent characters.
func ValidDocumentName(name string) bool {
	if name == "" || len([]rune(name)) > MaxDocumentNameLen {
		return false
	}
	return !forbiddenNameChars.MatchString(name)
}

// DiceChecker validates a dice expression. Supplied by the caller so the
// validator stays independent of the dice grammar.
type DiceChecker func(expr string) bool

// ValidateSheetSections checks every section and attribute of a sheet body
// and returns all rule violations. It never stops at the first error:
// callers surface the complete list to the editing client at once.
func ValidateSheetSections(body SheetBody) []FieldError {
	var errs []FieldError

	for _, section := range body.Sections {
		errs = append(errs, validateSectionName(section.Name, section.Position, body.Sections)...)

		for _, attr := range section.Attributes {
			errs = append(errs, validateAttribute(attr, section.Attributes)...)
		}
	}

	return errs
}

// ValidateMacroSections checks every section and macro entry of a macro body.
// checkDice validates the dice expression grammar of each entry value.
func ValidateMacroSections(body MacroBody, checkDice DiceChecker) []FieldError {
	var errs []FieldError

	for _, section := range body.Sections {
		errs = append(errs, validateMacroSectionName(section.Name, section.Position, body.Sections)...)

		for _, entry := range section.Macros {
			errs = append(errs, validateMacroEntry(entry, section.Macros, checkDice)...)
		}
	}

	return errs
}

func validateSectionName(name string, position int, siblings []SheetSection) []FieldError {
	errs := sectionNameRules(name)
	for _, other := range siblings {
		// Duplicate detection is position-relative: a section resubmitted
		// under its own position never collides with itself.
		if other.Name == name && other.Position != position {
			errs = append(errs, FieldError{Field: "sections", Message: "duplicate section name"})
			break
		}
	}
	return errs
}

func validateMacroSectionName(name string, position int, siblings []MacroSection) []FieldError {
	errs := sectionNameRules(name)
	for _, other := range siblings {
		if other.Name == name && other.Position != position {
			errs = append(errs, FieldError{Field: "sections", Message: "duplicate section name"})
			break
		}
	}
	return errs
}

func sectionNameRules(name string) []FieldError {
	var errs []FieldError
	trimmed := strings.TrimSpace(name)
	if len([]rune(trimmed)) < MinSectionNameLen || len([]rune(trimmed)) > MaxSectionNameLen {
		errs = append(errs, FieldError{Field: "sections", Message: "section name must have between 1 and 20 characters"})
	}
	if trimmed != "" && !IsRestrictedText(trimmed) {
		errs = append(errs, FieldError{Field: "sections", Message: "section name contains invalid characters"})
	}
	return errs
}

func validateAttribute(attr Attribute, siblings []Attribute) []FieldError {
	var errs []FieldError

	// IMAGE attributes have no user-facing name; every other variant carries
	// one and it must be unique among siblings at a different position.
	if attr.Type != AttributeImage {
		if attr.Name == "" {
			errs = append(errs, FieldError{Field: "attributes", Message: "attribute name cannot be empty"})
		}
		if len([]rune(attr.Name)) > MaxFieldNameLen {
			errs = append(errs, FieldError{Field: "attributes", Message: "attribute name must have at most 32 characters"})
		}
		if attr.Name != "" && !IsRestrictedText(attr.Name) {
			errs = append(errs, FieldError{Field: "attributes", Message: "attribute name contains invalid characters"})
		}
		for _, other := range siblings {
			if other.Name == attr.Name && other.Position != attr.Position {
				errs = append(errs, FieldError{Field: "attributes", Message: "duplicate attribute name"})
				break
			}
		}
	}

	switch attr.Type {
	case AttributeText:
		errs = append(errs, textValueRules(attr.Text, restrictedTextPattern, "attribute value")...)
	case AttributeNumber:
		errs = append(errs, textValueRules(attr.Text, signedIntPattern, "attribute value")...)
	case AttributeImage:
		if attr.Text == "" {
			errs = append(errs, FieldError{Field: "attributes", Message: "attribute value cannot be empty"})
		} else if !IsImageURL(attr.Text) {
			errs = append(errs, FieldError{Field: "attributes", Message: "attribute value must be a valid image URL"})
		}
	case AttributeList:
		errs = append(errs, listRules(attr.List)...)
	case AttributeBar:
		errs = append(errs, barRules(attr.Bar)...)
	}

	return errs
}

func textValueRules(value string, pattern *regexp.Regexp, what string) []FieldError {
	var errs []FieldError
	if value == "" {
		errs = append(errs, FieldError{Field: "attributes", Message: what + " cannot be empty"})
	}
	if len([]rune(value)) > MaxTextValueLen {
		errs = append(errs, FieldError{Field: "attributes", Message: what + " must have at most 1024 characters"})
	}
	if value != "" && !pattern.MatchString(value) {
		errs = append(errs, FieldError{Field: "attributes", Message: what + " is invalid"})
	}
	return errs
}

func listRules(list *ListValue) []FieldError {
	var errs []FieldError
	if list == nil {
		// Decoding guarantees a value; a missing payload is treated as an
		// empty list, which is valid.
		return nil
	}
	for _, item := range list.Items {
		if item.Name == "" {
			errs = append(errs, FieldError{Field: "attributes", Message: "list item name cannot be empty"})
		}
		if len([]rune(item.Name)) > MaxListItemNameLen {
			errs = append(errs, FieldError{Field: "attributes", Message: "list item name must have at most 1024 characters"})
		}
		if item.Name != "" && !IsRestrictedText(item.Name) {
			errs = append(errs, FieldError{Field: "attributes", Message: "list item name contains invalid characters"})
		}
		if item.Quantity == "" {
			errs = append(errs, FieldError{Field: "attributes", Message: "list item quantity cannot be empty"})
		}
		if len(item.Quantity) > MaxQuantityDigits {
			errs = append(errs, FieldError{Field: "attributes", Message: "list item quantity must have at most 32 digits"})
		}
		if item.Quantity != "" && !nonNegativeIntPattern.MatchString(item.Quantity) {
			errs = append(errs, FieldError{Field: "attributes", Message: "list item quantity is invalid"})
		}
	}
	return errs
}

func barRules(bar *BarValue) []FieldError {
	var errs []FieldError
	if bar == nil {
		return []FieldError{{Field: "attributes", Message: "attribute value cannot be empty"}}
	}

	components := []struct {
		name    string
		value   string
		pattern *regexp.Regexp
	}{
		{"actual", bar.Actual, signedIntPattern},
		{"min", bar.Min, signedIntPattern},
		{"max", bar.Max, signedIntPattern},
		{"step", bar.Step, nonNegativeIntPattern},
	}

	wellFormed := true
	for _, c := range components {
		if c.value == "" {
			errs = append(errs, FieldError{Field: "attributes", Message: "bar " + c.name + " cannot be empty"})
			wellFormed = false
			continue
		}
		if len(c.value) > MaxBarComponentLen {
			errs = append(errs, FieldError{Field: "attributes", Message: "bar " + c.name + " must have at most 32 characters"})
		}
		if !c.pattern.MatchString(c.value) {
			errs = append(errs, FieldError{Field: "attributes", Message: "bar " + c.name + " is invalid"})
			wellFormed = false
		}
	}

	// Ordering constraints only make sense once every component parses.
	if !wellFormed {
		return errs
	}
	actual, errA := strconv.ParseInt(bar.Actual, 10, 64)
	min, errMin := strconv.ParseInt(bar.Min, 10, 64)
	max, errMax := strconv.ParseInt(bar.Max, 10, 64)
	step, errS := strconv.ParseInt(bar.Step, 10, 64)
	if errA != nil || errMin != nil || errMax != nil || errS != nil {
		return errs
	}

	if actual < min {
		errs = append(errs, FieldError{Field: "attributes", Message: "bar actual cannot be below min"})
	}
	if actual > max {
		errs = append(errs, FieldError{Field: "attributes", Message: "bar actual cannot be above max"})
	}
	if min > max {
		errs = append(errs, FieldError{Field: "attributes", Message: "bar min cannot be above max"})
	}
	if step < 1 {
		errs = append(errs, FieldError{Field: "attributes", Message: "bar step cannot be below 1"})
	}
	if step > max {
		errs = append(errs, FieldError{Field: "attributes", Message: "bar step cannot be above max"})
	}

	return errs
}

func validateMacroEntry(entry MacroEntry, siblings []MacroEntry, checkDice DiceChecker) []FieldError {
	var errs []FieldError

	if entry.Name == "" {
		errs = append(errs, FieldError{Field: "macros", Message: "macro name cannot be empty"})
	}
	if len([]rune(entry.Name)) > MaxFieldNameLen {
		errs = append(errs, FieldError{Field: "macros", Message: "macro name must have at most 32 characters"})
	}
	if entry.Name != "" && !IsRestrictedText(entry.Name) {
		errs = append(errs, FieldError{Field: "macros", Message: "macro name contains invalid characters"})
	}
	for _, other := range siblings {
		if other.Name == entry.Name && other.Position != entry.Position {
			errs = append(errs, FieldError{Field: "macros", Message: "duplicate macro name"})
			break
		}
	}

	if entry.Value == "" {
		errs = append(errs, FieldError{Field: "macros", Message: "macro value cannot be empty"})
	}
	if len([]rune(entry.Value)) > MaxDiceValueLen {
		errs = append(errs, FieldError{Field: "macros", Message: "macro value must have at most 128 characters"})
	}
	if entry.Value != "" && checkDice != nil && !checkDice(entry.Value) {
		errs = append(errs, FieldError{Field: "macros", Message: "macro value is not a valid dice expression"})
	}

	return errs
}
