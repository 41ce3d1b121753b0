package args_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/loculus-project/ena-deposition/pkg/loop/recurring"
	"github.com/loculus-project/ena-deposition/pkg/utils/args"
	"github.com/spf13/pflag"
)

type Even int

func AsEven(s string) (Even, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v%2 != 0 {
		return 0, errors.New("odd number!")
	}

	return Even(v), nil
}

func (e Even) String() string {
	return strconv.Itoa(int(e))
}

func TestArgs(t *testing.T) {
	t.Run("when it parses an acceptable value, parsing success", func(t *testing.T) {
		testee := args.Parser("even", AsEven)
		if testee.IsSet() {
			t.Error("it is set, unexpectedly")
		}
		if zero := new(Even); testee.Value() != *zero {
			t.Error("it is not initialized with zero value: ", testee.Value())
		}

		f := pflag.NewFlagSet("test", pflag.ContinueOnError)
		f.Var(testee, "arg", "")

		if err := f.Parse([]string{"--arg", "12"}); err != nil {
			t.Fatal(err)
		}

		expected := 12
		if testee.Value() != Even(expected) {
			t.Errorf("unmatch: Value(): (actual, expected) = (%d, %d)", testee.Value(), expected)
		}
		if !testee.IsSet() {
			t.Error("it is not set")
		}
		if testee.Or(Even(4)) != Even(expected) {
			t.Error("Or should return the value which is set")
		}
		if testee.Type() != "even" {
			t.Errorf("type: %s", testee.Type())
		}
	})

	t.Run("when it parses an unacceptable value, parsing errors", func(t *testing.T) {
		testee := args.Parser("even", AsEven)

		f := pflag.NewFlagSet("test", pflag.ContinueOnError)
		f.Var(testee, "arg", "")

		if err := f.Parse([]string{"--arg", "1"}); err == nil {
			t.Error("expected error does not happen")
		}
		if testee.IsSet() {
			t.Error("it is set, unexpectedly")
		}
		if testee.Or(Even(4)) != Even(4) {
			t.Error("Or should return the fallback")
		}
	})

	t.Run("policy flag", func(t *testing.T) {
		testee := args.Parser("policy", recurring.ParsePolicy)

		f := pflag.NewFlagSet("test", pflag.ContinueOnError)
		f.Var(testee, "policy", "")
		if err := f.Parse([]string{"--policy", "forever:30s"}); err != nil {
			t.Fatal(err)
		}
		if testee.Value().String() != recurring.Forever(30*time.Second).String() {
			t.Errorf("policy: %s", testee.Value())
		}
	})
}
