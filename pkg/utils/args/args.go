package args

import "github.com/spf13/pflag"

// Adapter is a pflag.Value parsed by a function.
type Adapter[T interface{ String() string }] struct {
	value    T
	parser   func(string) (T, error)
	typeName string
	isSet    bool
}

var _ pflag.Value = &Adapter[interface{ String() string }]{}

func (i *Adapter[T]) String() string {
	if i.isSet {
		return i.value.String()
	}
	return ""
}

func (i *Adapter[T]) Set(s string) error {
	v, err := i.parser(s)
	if err != nil {
		return err
	}
	i.isSet = true
	i.value = v
	return nil
}

// Type is the name of the value in help messages.
func (i *Adapter[T]) Type() string {
	if i.typeName == "" {
		return "string"
	}
	return i.typeName
}

func (i Adapter[T]) Value() T {
	return i.value
}

func (i Adapter[T]) IsSet() bool {
	return i.isSet
}

// Or returns the value if it is set, otherwise fallback.
func (i Adapter[T]) Or(fallback T) T {
	if i.isSet {
		return i.value
	}
	return fallback
}

// Parser creates an Adapter. typeName is shown in help messages, like "policy".
func Parser[T interface{ String() string }](typeName string, parser func(string) (T, error)) *Adapter[T] {
	return &Adapter[T]{parser: parser, typeName: typeName}
}
