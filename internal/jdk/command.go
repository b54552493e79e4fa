// Package jdk defines the diagnostic commands: how each JDK tool is invoked
// and how its text output is parsed into records.
package jdk

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// Args are the named parameters of a tool call as received from callers.
// Values are primitives (strings, numbers, booleans); numeric strings are
// accepted wherever a number is expected.
type Args map[string]any

// RunFunc invokes another registered tool. Composite commands use it to fan
// out follow-up calls through the same policy as top-level calls.
type RunFunc func(ctx context.Context, tool string, args Args) core.Record

// Invocation is a validated, ready-to-run tool call.
type Invocation struct {
	Spec core.CommandSpec
	TTL  time.Duration
	// Key distinguishes calls that share an argv but parse differently,
	// such as histograms with different row caps.
	Key   string
	Parse func(res core.ExecutionResult) core.Record
	// Enrich, when set, post-processes a successful record.
	Enrich func(ctx context.Context, rec core.Record, run RunFunc) core.Record
}

// Command is one diagnostic operation.
type Command interface {
	Name() string
	Description() string
	Kind() core.OutputKind
	// Prepare validates args and builds the invocation. Validation problems
	// are returned as validation errors before anything is executed.
	Prepare(args Args) (*Invocation, error)
}

var validate = newValidator()

var pidPattern = regexp.MustCompile(`^[0-9]+$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
	})
	_ = v.RegisterValidation("pid", func(fl validator.FieldLevel) bool {
		return pidPattern.MatchString(fl.Field().String())
	})
	return v
}

// decode copies args into params and validates them.
func decode(args Args, params any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           params,
		TagName:          "mapstructure",
	})
	if err != nil {
		return core.ErrInternal("building argument decoder").WithCause(err)
	}
	if err := dec.Decode(map[string]any(args)); err != nil {
		return core.ErrValidation(core.CodeInvalidArgument, cleanDecodeError(err))
	}
	if err := validate.Struct(params); err != nil {
		return validationError(err)
	}
	return nil
}

func cleanDecodeError(err error) string {
	var merr *mapstructure.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		return strings.Join(merr.Errors, "; ")
	}
	return err.Error()
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return core.ErrValidation(core.CodeInvalidArgument, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	code := core.CodeInvalidArgument
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			code = core.CodeMissingArgument
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "pid":
			msgs = append(msgs, fmt.Sprintf("%s must be a numeric process id, got %q", fe.Field(), fe.Value()))
		case "required_with":
			msgs = append(msgs, fmt.Sprintf("%s is required when %s is set", fe.Field(), strings.ToLower(fe.Param())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return core.ErrValidation(code, strings.Join(msgs, "; "))
}

// fingerprint renders decoded params into a stable cache key component.
func fingerprint(params any) string {
	return fmt.Sprintf("%+v", params)
}

// base carries the fields every command shares.
type base struct {
	name        string
	description string
	kind        core.OutputKind
	timeout     time.Duration
	ttl         time.Duration
}

func (b base) Name() string          { return b.name }
func (b base) Description() string   { return b.description }
func (b base) Kind() core.OutputKind { return b.kind }

func (b base) invocation(tool string, argv []string, params any, parse func(core.ExecutionResult) core.Record) *Invocation {
	return &Invocation{
		Spec:  core.NewCommandSpec(tool, argv, b.kind, b.timeout),
		TTL:   b.ttl,
		Key:   fingerprint(params),
		Parse: parse,
	}
}

// pidParams is the parameter set of tools that only need a process id.
type pidParams struct {
	PID string `mapstructure:"pid" validate:"required,pid"`
}
