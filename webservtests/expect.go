package webservtests

import (
	"fmt"
	"strings"
)

type expectKind int

const (
	expectAny expectKind = iota
	expectOneOf
	expectNoneOf
)

// Expect describes which HTTP status codes are acceptable for a response. The zero value
// accepts any status.
type Expect struct {
	kind  expectKind
	codes []int
}

// Status accepts exactly one status code.
func Status(code int) Expect {
	return Expect{kind: expectOneOf, codes: []int{code}}
}

// OneOf accepts any of the given status codes.
func OneOf(codes ...int) Expect {
	return Expect{kind: expectOneOf, codes: codes}
}

// NoneOf accepts any status code except the given ones.
func NoneOf(codes ...int) Expect {
	return Expect{kind: expectNoneOf, codes: codes}
}

func (e Expect) Matches(code int) bool {
	switch e.kind {
	case expectOneOf:
		return containsCode(e.codes, code)
	case expectNoneOf:
		return !containsCode(e.codes, code)
	default:
		return true
	}
}

func (e Expect) String() string {
	switch e.kind {
	case expectOneOf:
		if len(e.codes) == 1 {
			return fmt.Sprintf("%d", e.codes[0])
		}
		return "one of " + joinCodes(e.codes)
	case expectNoneOf:
		return "anything but " + joinCodes(e.codes)
	default:
		return "any status"
	}
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func joinCodes(codes []int) string {
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d", c))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
