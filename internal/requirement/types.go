package requirement

import (
	"fmt"
	"strings"

	"github.com/papapumpkin/tptmodel/internal/apierr"
)

// Type classifies a requirement row.
type Type int

const (
	TypeRequirement Type = iota + 1
	TypeHeading
	TypeInformation
)

var typeNames = map[Type]string{
	TypeRequirement: "Requirement",
	TypeHeading:     "Heading",
	TypeInformation: "Information",
}

// DisplayName returns the name shown to users, e.g. "Heading".
func (t Type) DisplayName() string { return typeNames[t] }

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Linkable reports whether requirements of this type may be linked to
// assessments and scenarios.
func (t Type) Linkable() bool { return t == TypeRequirement }

func (t Type) valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType parses a display name case-insensitively. The empty string
// parses as TypeRequirement.
func ParseType(s string) (Type, error) {
	if s == "" {
		return TypeRequirement, nil
	}
	for t, name := range typeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	return 0, apierr.Constraint("requirement: unknown type %q", s)
}

// Status is the lifecycle status of a requirement.
type Status int

const (
	StatusNew Status = iota + 1
	StatusNormal
	StatusDeleted
)

var statusNames = map[Status]string{
	StatusNew:     "New",
	StatusNormal:  "Normal",
	StatusDeleted: "Deleted",
}

// DisplayName returns the name shown to users, e.g. "Deleted".
func (s Status) DisplayName() string { return statusNames[s] }

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus parses a display name case-insensitively.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if strings.EqualFold(s, name) {
			return st, nil
		}
	}
	return 0, apierr.Constraint("requirement: unknown status %q", s)
}
