package rule

import "fmt"

// paramInt coerces a rule's configured parameter (typically a float64 from
// JSON decoding or an int from YAML decoding; int64 is accepted too) into an
// int64. Any other type, including a string, is an error.
func paramInt(name string, param interface{}) (int64, error) {
	switch v := param.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("rule %q: expected integer parameter, got %T", name, param)
	}
}

// paramFloat coerces a rule's configured parameter into a float64.
func paramFloat(name string, param interface{}) (float64, error) {
	switch v := param.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("rule %q: expected numeric parameter, got %T", name, param)
	}
}

// paramMap coerces a rule's configured parameter into a map, for rules that
// take a structured configuration (exceed_time_limit's static/adaptive
// modes).
func paramMap(name string, param interface{}) (map[string]interface{}, error) {
	m, ok := param.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("rule %q: expected object parameter, got %T", name, param)
	}
	return m, nil
}
