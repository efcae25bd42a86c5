package prompt

import (
	"fmt"
	"strconv"
	"strings"
)

// Arg is one resolved argument in a document's schema.
type Arg struct {
	Name        string
	Type        ArgType
	Required    bool
	Default     interface{}
	Description string
}

// ArgSchema is the argument schema built from a document's `args` map
// (spec.md §4.4 step 6).
type ArgSchema struct {
	Args []Arg
}

// BuildArgSchema resolves requiredness and coercion rules for every
// declared argument. The precedence (spec.md §4.4 step 6):
//  1. an explicit `required` wins outright;
//  2. else a present `default`, or a description containing the
//     case-insensitive token "optional", makes the arg optional;
//  3. else a description containing the literal token "(required)" makes
//     it required;
//  4. otherwise it is required.
func BuildArgSchema(args map[string]ArgSpec) *ArgSchema {
	schema := &ArgSchema{Args: make([]Arg, 0, len(args))}
	for name, spec := range args {
		required := resolveRequired(spec)
		schema.Args = append(schema.Args, Arg{
			Name:        name,
			Type:        spec.Type,
			Required:    required,
			Default:     spec.Default,
			Description: spec.Description,
		})
	}
	return schema
}

func resolveRequired(spec ArgSpec) bool {
	if spec.Required != nil {
		return *spec.Required
	}
	desc := strings.ToLower(spec.Description)
	if spec.Default != nil || strings.Contains(desc, "optional") {
		return false
	}
	if strings.Contains(desc, "(required)") {
		return true
	}
	return true
}

// MissingRequired reports the names of required arguments absent from raw.
func (s *ArgSchema) MissingRequired(raw map[string]interface{}) []string {
	var missing []string
	for _, a := range s.Args {
		if _, ok := raw[a.Name]; ok {
			continue
		}
		if a.Required {
			missing = append(missing, a.Name)
			continue
		}
	}
	return missing
}

// Coerce validates and coerces raw argument values against the schema,
// filling in defaults for absent optional arguments. Per spec.md §4.4 step
// 6, a `number` argument accepts a numeric string and a `boolean` argument
// accepts the literal strings "true"/"false" — "upstream clients are known
// to send strings".
func (s *ArgSchema) Coerce(raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.Args))
	for _, a := range s.Args {
		v, present := raw[a.Name]
		if !present {
			if a.Required {
				return nil, fmt.Errorf("missing required argument %q", a.Name)
			}
			if a.Default != nil {
				out[a.Name] = a.Default
			}
			continue
		}
		coerced, err := coerceValue(a, v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a.Name, err)
		}
		out[a.Name] = coerced
	}
	// Pass through any extra arguments verbatim so templates can reference
	// ambient context values (output_lang_rule, sys_lang) not declared in
	// the schema.
	for k, v := range raw {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out, nil
}

func coerceValue(a Arg, v interface{}) (interface{}, error) {
	switch a.Type {
	case ArgNumber:
		switch n := v.(type) {
		case float64, int, int64:
			return n, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", n)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("not a number: %v", v)
		}
	case ArgBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch b {
			case "true":
				return true, nil
			case "false":
				return false, nil
			default:
				return nil, fmt.Errorf("not a boolean: %q", b)
			}
		default:
			return nil, fmt.Errorf("not a boolean: %v", v)
		}
	default: // ArgString and anything unrecognised passes through as-is.
		return v, nil
	}
}
