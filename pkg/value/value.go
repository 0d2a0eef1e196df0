// Package value validates operator-supplied literals against the schema
// leaf they are bound to. Validation is pure: it never mutates the
// candidate configuration.
package value

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/irino/holo-cli/pkg/schema"
)

// Kind classifies a validation failure.
type Kind int

const (
	KindTypeMismatch Kind = iota
	KindRange
	KindPattern
	KindEnum
	KindLength
)

func (k Kind) String() string {
	switch k {
	case KindTypeMismatch:
		return "type-mismatch"
	case KindRange:
		return "range-violation"
	case KindPattern:
		return "pattern-violation"
	case KindEnum:
		return "enum-violation"
	case KindLength:
		return "length-violation"
	default:
		return "unknown"
	}
}

// Error reports a rejected literal. Position is the byte offset within
// the submitted line where the literal started, filled in by the parser;
// validation itself leaves it at zero.
type Error struct {
	Kind     Kind
	Node     string
	Value    string
	Position int
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Node, e.Reason)
}

// Typed is a validated literal plus its parsed representation.
type Typed struct {
	Raw  string
	Type schema.Type
	Int  int64  // signed integers
	Uint uint64 // unsigned integers
	Bool bool
}

// Validate checks a literal against the leaf's declared type and
// constraints and returns the typed value.
func Validate(n *schema.Node, literal string) (Typed, error) {
	tv := Typed{Raw: literal, Type: n.Type}

	switch {
	case n.Type == schema.TypeString:
		if err := checkLength(n, literal); err != nil {
			return tv, err
		}
		if re := n.PatternRE(); re != nil && !re.MatchString(literal) {
			return tv, &Error{
				Kind: KindPattern, Node: n.Name, Value: literal,
				Reason: fmt.Sprintf("must match pattern %q", n.Pattern),
			}
		}

	case n.Type == schema.TypeBool:
		switch literal {
		case "true":
			tv.Bool = true
		case "false":
			tv.Bool = false
		default:
			return tv, &Error{
				Kind: KindTypeMismatch, Node: n.Name, Value: literal,
				Reason: "expected true or false",
			}
		}

	case n.Type == schema.TypeEnumeration:
		for _, e := range n.Enum {
			if e == literal {
				return tv, nil
			}
		}
		return tv, &Error{
			Kind: KindEnum, Node: n.Name, Value: literal,
			Reason: fmt.Sprintf("must be one of %v", n.Enum),
		}

	case n.Type.IsSigned():
		v, err := strconv.ParseInt(literal, 10, n.Type.Bits())
		if err != nil {
			// Overflow of the declared bit width is a validation
			// error, never a silent truncation.
			return tv, intError(n, literal, err)
		}
		tv.Int = v
		if err := checkIntRange(n, v); err != nil {
			return tv, err
		}

	case n.Type.IsInteger(): // unsigned
		v, err := strconv.ParseUint(literal, 10, n.Type.Bits())
		if err != nil {
			return tv, intError(n, literal, err)
		}
		tv.Uint = v
		if err := checkUintRange(n, v); err != nil {
			return tv, err
		}

	default:
		return tv, &Error{
			Kind: KindTypeMismatch, Node: n.Name, Value: literal,
			Reason: fmt.Sprintf("unsupported type %v", n.Type),
		}
	}

	return tv, nil
}

func intError(n *schema.Node, literal string, err error) error {
	kind := KindTypeMismatch
	reason := fmt.Sprintf("expected %s", n.Type)
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		kind = KindRange
		reason = fmt.Sprintf("out of range for %s", n.Type)
	}
	return &Error{Kind: kind, Node: n.Name, Value: literal, Reason: reason}
}

func checkIntRange(n *schema.Node, v int64) error {
	r := n.Range
	if r == nil {
		return nil
	}
	if r.MinRaw != "" {
		min, err := strconv.ParseInt(r.MinRaw, 10, 64)
		if err == nil && v < min {
			return rangeError(n, fmt.Sprintf("%d", v), r)
		}
	}
	if r.MaxRaw != "" {
		max, err := strconv.ParseInt(r.MaxRaw, 10, 64)
		if err == nil && v > max {
			return rangeError(n, fmt.Sprintf("%d", v), r)
		}
	}
	return nil
}

func checkUintRange(n *schema.Node, v uint64) error {
	r := n.Range
	if r == nil {
		return nil
	}
	if r.MinRaw != "" {
		min, err := strconv.ParseUint(r.MinRaw, 10, 64)
		if err == nil && v < min {
			return rangeError(n, fmt.Sprintf("%d", v), r)
		}
	}
	if r.MaxRaw != "" {
		max, err := strconv.ParseUint(r.MaxRaw, 10, 64)
		if err == nil && v > max {
			return rangeError(n, fmt.Sprintf("%d", v), r)
		}
	}
	return nil
}

func rangeError(n *schema.Node, v string, r *schema.Range) error {
	return &Error{
		Kind: KindRange, Node: n.Name, Value: v,
		Reason: fmt.Sprintf("must be in range %s..%s", r.MinRaw, r.MaxRaw),
	}
}

func checkLength(n *schema.Node, literal string) error {
	r := n.Length
	if r == nil {
		return nil
	}
	// Length bounds count characters, not bytes.
	l := uint64(utf8.RuneCountInString(literal))
	if r.MinRaw != "" {
		if min, err := strconv.ParseUint(r.MinRaw, 10, 64); err == nil && l < min {
			return lengthError(n, literal, r)
		}
	}
	if r.MaxRaw != "" {
		if max, err := strconv.ParseUint(r.MaxRaw, 10, 64); err == nil && l > max {
			return lengthError(n, literal, r)
		}
	}
	return nil
}

func lengthError(n *schema.Node, literal string, r *schema.Range) error {
	return &Error{
		Kind: KindLength, Node: n.Name, Value: literal,
		Reason: fmt.Sprintf("length must be in range %s..%s", r.MinRaw, r.MaxRaw),
	}
}

// Hint returns the completion hint shown for a value slot: the bounded
// legal values for enums and booleans, otherwise the type name plus any
// range or pattern the operator must satisfy.
func Hint(n *schema.Node) []string {
	switch n.Type {
	case schema.TypeBool:
		return []string{"true", "false"}
	case schema.TypeEnumeration:
		return append([]string(nil), n.Enum...)
	default:
		h := "<" + n.Type.String()
		if n.Range != nil {
			h += " " + n.Range.MinRaw + ".." + n.Range.MaxRaw
		}
		if n.Units != "" {
			h += " " + n.Units
		}
		h += ">"
		return []string{h}
	}
}
