package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ardnew/softexec/program"
	"github.com/ardnew/softexec/protocol"
)

// parseRoutine resolves a routine by name or numeric id.
func parseRoutine(img *program.Image, s string) (program.Routine, error) {
	if r, ok := img.Lookup(s); ok {
		return r, nil
	}
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return program.Routine{}, fmt.Errorf("no routine named %q", s)
	}
	r, ok := img.Routine(uint32(id))
	if !ok {
		return program.Routine{}, fmt.Errorf("no routine with id %#x", id)
	}
	return r, nil
}

// parseValue parses an argument of the form [kind:]literal. Without a kind
// prefix integers are int32, "true"/"false" are bool and anything with a
// decimal point is float64.
func parseValue(s string) (protocol.Value, error) {
	kind, lit, ok := strings.Cut(s, ":")
	if !ok {
		lit = s
		switch {
		case lit == "true" || lit == "false":
			kind = "bool"
		case strings.ContainsAny(lit, ".eE") && !strings.HasPrefix(lit, "0x"):
			kind = "f64"
		default:
			kind = "i32"
		}
	}

	switch kind {
	case "i32":
		v, err := strconv.ParseInt(lit, 0, 32)
		return protocol.Int32(int32(v)), wrapArg(s, err)
	case "u32":
		v, err := strconv.ParseUint(lit, 0, 32)
		return protocol.Uint32(uint32(v)), wrapArg(s, err)
	case "i64":
		v, err := strconv.ParseInt(lit, 0, 64)
		return protocol.Int64(v), wrapArg(s, err)
	case "u64":
		v, err := strconv.ParseUint(lit, 0, 64)
		return protocol.Uint64(v), wrapArg(s, err)
	case "f32":
		v, err := strconv.ParseFloat(lit, 32)
		return protocol.Float32(float32(v)), wrapArg(s, err)
	case "f64":
		v, err := strconv.ParseFloat(lit, 64)
		return protocol.Float64(v), wrapArg(s, err)
	case "bool":
		v, err := strconv.ParseBool(lit)
		return protocol.Bool(v), wrapArg(s, err)
	case "obj":
		v, err := strconv.ParseUint(lit, 0, 32)
		return protocol.Object(uint32(v)), wrapArg(s, err)
	default:
		return protocol.Value{}, fmt.Errorf("argument %q: unknown kind %q", s, kind)
	}
}

func wrapArg(s string, err error) error {
	if err != nil {
		return fmt.Errorf("argument %q: %w", s, err)
	}
	return nil
}

func parseValues(args []string) ([]protocol.Value, error) {
	vals := make([]protocol.Value, 0, len(args))
	for _, a := range args {
		v, err := parseValue(a)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}
