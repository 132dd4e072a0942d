package integration

import (
	"strings"

	"golang.org/x/text/cases"
)

// ContactTag is one of the contact type categories both systems understand.
type ContactTag string

const (
	ContactTagPartner    ContactTag = "partner"
	ContactTagCustomer   ContactTag = "customer"
	ContactTagSupplier   ContactTag = "supplier"
	ContactTagContractor ContactTag = "contractor"
)

// ContactTagSeparator joins tags in the CRM's multi-select property
const ContactTagSeparator = ";"

// AllContactTags returns the known tags in their canonical order
func AllContactTags() []ContactTag {
	return []ContactTag{ContactTagPartner, ContactTagCustomer, ContactTagSupplier, ContactTagContractor}
}

// IsValid checks if the tag is known
func (t ContactTag) IsValid() bool {
	switch t {
	case ContactTagPartner, ContactTagCustomer, ContactTagSupplier, ContactTagContractor:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (t ContactTag) String() string {
	return string(t)
}

// ContactTypeFlags is the accounting side's representation: one boolean per tag.
type ContactTypeFlags struct {
	IsPartner    bool
	IsCustomer   bool
	IsSupplier   bool
	IsContractor bool
}

// Set turns on the flag for tag; unknown tags are ignored
func (f *ContactTypeFlags) Set(tag ContactTag) {
	switch tag {
	case ContactTagPartner:
		f.IsPartner = true
	case ContactTagCustomer:
		f.IsCustomer = true
	case ContactTagSupplier:
		f.IsSupplier = true
	case ContactTagContractor:
		f.IsContractor = true
	}
}

// Tags returns the set flags as tags in canonical order
func (f ContactTypeFlags) Tags() []ContactTag {
	tags := make([]ContactTag, 0, 4)
	if f.IsPartner {
		tags = append(tags, ContactTagPartner)
	}
	if f.IsCustomer {
		tags = append(tags, ContactTagCustomer)
	}
	if f.IsSupplier {
		tags = append(tags, ContactTagSupplier)
	}
	if f.IsContractor {
		tags = append(tags, ContactTagContractor)
	}
	return tags
}

// Join renders the flags as the CRM's semicolon separated property value
func (f ContactTypeFlags) Join() string {
	tags := f.Tags()
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.String()
	}
	return strings.Join(parts, ContactTagSeparator)
}

// ParsedContactTypes is the result of reading a tag string.
type ParsedContactTypes struct {
	Flags ContactTypeFlags
	// Unrecognized holds tags outside the known set, as written
	Unrecognized []string
}

// ParseContactTypes reads a semicolon separated tag string case-insensitively.
// A single bare tag is handled the same way as a list of one.
func ParseContactTypes(raw string) ParsedContactTypes {
	var parsed ParsedContactTypes
	folder := cases.Fold()
	for _, part := range strings.Split(raw, ContactTagSeparator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag := ContactTag(folder.String(part))
		if !tag.IsValid() {
			parsed.Unrecognized = append(parsed.Unrecognized, part)
			continue
		}
		parsed.Flags.Set(tag)
	}
	return parsed
}
