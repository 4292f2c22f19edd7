package quantity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opscart/k8s-gap-auditor/pkg/models"
	"k8s.io/apimachinery/pkg/api/resource"
)

const bytesPerMebibyte = 1024 * 1024

var (
	errEmpty       = errors.New("empty quantity")
	errNegative    = errors.New("quantity must not be negative")
	errNotFinite   = errors.New("quantity must be finite")
	errBinaryCPU   = errors.New("binary suffix is not valid for cpu")
	errUnknownKind = errors.New("unknown resource kind")
)

// ParseError reports a quantity string that could not be normalized
type ParseError struct {
	Field string
	Kind  models.ResourceKind
	Value string
	Err   error

	// Location of the value, filled in by callers that know it
	Namespace string
	Workload  string
	Container string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid %s quantity %q", e.Field, e.Value)
	if e.Namespace != "" || e.Workload != "" || e.Container != "" {
		fmt.Fprintf(&b, " (namespace=%s workload=%s container=%s)", e.Namespace, e.Workload, e.Container)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse converts a quantity string into a normalized value.
//
// CPU: a trailing "m" means milli-cores; a bare number means whole cores and
// is scaled by 1000. Memory: a trailing "Mi" or a bare number means
// mebibytes. Any other Kubernetes suffix is converted explicitly.
func Parse(raw string, kind models.ResourceKind) (models.ResourceQuantity, error) {
	return ParseField(string(kind), raw, kind)
}

// ParseField is Parse with the name of the field being parsed, e.g. "requests.cpu"
func ParseField(field, raw string, kind models.ResourceKind) (models.ResourceQuantity, error) {
	var (
		v   float64
		err error
	)
	switch kind {
	case models.ResourceCPU:
		v, err = parseCPU(raw)
	case models.ResourceMemory:
		v, err = parseMemory(raw)
	default:
		err = errUnknownKind
	}
	if err != nil {
		return models.ResourceQuantity{}, &ParseError{Field: field, Kind: kind, Value: raw, Err: err}
	}
	return models.ResourceQuantity{Kind: kind, Raw: raw, Normalized: v}, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(raw string, kind models.ResourceKind) models.ResourceQuantity {
	q, err := Parse(raw, kind)
	if err != nil {
		panic(err)
	}
	return q
}

// FromQuantity converts a quantity read from the API server. It never fails:
// the API server only stores well-formed quantities. The value is read
// numerically, so a bare number keeps its Kubernetes meaning of whole cores
// or bytes. Raw is the canonical string.
func FromQuantity(kind models.ResourceKind, q resource.Quantity) models.ResourceQuantity {
	var v float64
	switch kind {
	case models.ResourceCPU:
		v = float64(q.MilliValue())
	case models.ResourceMemory:
		v = q.AsApproximateFloat64() / bytesPerMebibyte
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return models.ResourceQuantity{Kind: kind, Raw: q.String(), Normalized: v}
}

// Zero returns the zero sentinel for kind ("0m" or "0Mi")
func Zero(kind models.ResourceKind) models.ResourceQuantity {
	return MustParse("0"+kind.Unit(), kind)
}

// Format renders a normalized value back into its canonical string, e.g. "250m" or "512Mi"
func Format(kind models.ResourceKind, normalized float64) string {
	return strconv.FormatFloat(normalized, 'f', -1, 64) + kind.Unit()
}

// New builds a quantity from an already normalized value
func New(kind models.ResourceKind, normalized float64) (models.ResourceQuantity, error) {
	return Parse(Format(kind, normalized), kind)
}

func parseCPU(raw string) (float64, error) {
	if raw == "" {
		return 0, errEmpty
	}
	if prefix, ok := strings.CutSuffix(raw, "m"); ok {
		return parseNumber(prefix)
	}
	if v, err := parseNumber(raw); err == nil {
		return checkValue(v * 1000)
	} else if !errors.Is(err, strconv.ErrSyntax) {
		return 0, err
	}

	q, err := resource.ParseQuantity(raw)
	if err != nil {
		return 0, err
	}
	if q.Format == resource.BinarySI {
		return 0, errBinaryCPU
	}
	return checkValue(q.AsApproximateFloat64() * 1000)
}

func parseMemory(raw string) (float64, error) {
	if raw == "" {
		return 0, errEmpty
	}
	if prefix, ok := strings.CutSuffix(raw, "Mi"); ok {
		return parseNumber(prefix)
	}
	if v, err := parseNumber(raw); err == nil {
		return v, nil
	} else if !errors.Is(err, strconv.ErrSyntax) {
		return 0, err
	}

	q, err := resource.ParseQuantity(raw)
	if err != nil {
		return 0, err
	}
	return checkValue(q.AsApproximateFloat64() / bytesPerMebibyte)
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return 0, numErr.Err
		}
		return 0, err
	}
	return checkValue(v)
}

func checkValue(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	if v < 0 {
		return 0, errNegative
	}
	return v, nil
}

// ParseList parses raw quantities keyed by resource name ("cpu", "memory").
// section prefixes the field name of a ParseError, e.g. "requests".
// Unknown resource names are ignored.
func ParseList(section string, raw map[string]string) (models.ResourceList, error) {
	list := make(models.ResourceList, len(raw))
	for _, kind := range models.ResourceKinds {
		s, ok := raw[string(kind)]
		if !ok {
			continue
		}
		q, err := ParseField(section+"."+string(kind), s, kind)
		if err != nil {
			return nil, err
		}
		list[kind] = q
	}
	return list, nil
}

// RawList is the inverse of ParseList
func RawList(list models.ResourceList) map[string]string {
	raw := make(map[string]string, len(list))
	for kind, q := range list {
		raw[string(kind)] = q.Raw
	}
	return raw
}
