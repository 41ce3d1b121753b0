package sample

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/loculus-project/ena-deposition/pkg/ena"
)

// Attribute tells how the value of an archive attribute is made from metadata fields.
type Attribute struct {
	// metadata fields to be read, in order.
	Fields []string

	// "" : values of fields are joined with "; ".
	//
	// "match" : the first pattern in Args matching any value of fields is the value.
	Function string

	Args []*regexp.Regexp
}

const FunctionMatch = "match"

// Mapping maps host metadata to sample attributes of a checklist.
type Mapping struct {
	// key: attribute tag
	Attributes map[string]Attribute

	// values for tags which are mandatory in the checklist, used when metadata has no value.
	MandatoryDefaults map[string]string

	// checklist id, e.g. "ERC000033".
	Checklist string
}

// Apply makes sample attributes from metadata.
//
// Attributes are ordered by tag, followed by ENA-CHECKLIST.
func (m Mapping) Apply(metadata map[string]any) []ena.SampleAttribute {
	values := map[string]string{}
	for tag, a := range m.Attributes {
		if v := a.value(metadata); v != "" {
			values[tag] = v
		}
	}
	for tag, v := range m.MandatoryDefaults {
		if _, ok := values[tag]; !ok && v != "" {
			values[tag] = v
		}
	}

	tags := make([]string, 0, len(values))
	for tag := range values {
		tags = append(tags, tag)
	}
	slices.Sort(tags)

	attrs := make([]ena.SampleAttribute, 0, len(tags)+1)
	for _, tag := range tags {
		attrs = append(attrs, ena.SampleAttribute{Tag: tag, Value: values[tag]})
	}
	if m.Checklist != "" {
		attrs = append(attrs, ena.SampleAttribute{Tag: "ENA-CHECKLIST", Value: m.Checklist})
	}
	return attrs
}

func (a Attribute) value(metadata map[string]any) string {
	vs := make([]string, 0, len(a.Fields))
	for _, f := range a.Fields {
		if v := text(metadata[f]); v != "" {
			vs = append(vs, v)
		}
	}
	if len(vs) == 0 {
		return ""
	}

	switch a.Function {
	case FunctionMatch:
		for _, pat := range a.Args {
			for _, v := range vs {
				if pat.MatchString(v) {
					return strings.TrimPrefix(pat.String(), "(?i)")
				}
			}
		}
		return ""
	default:
		return strings.Join(vs, "; ")
	}
}

func text(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(vv)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(vv)
	}
	return fmt.Sprint(v)
}
