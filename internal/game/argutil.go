package game

import "strconv"

// ArgInt reads a named integer argument from args, returning def if the key
// is absent. Grounded on the original's games::util::arg<T: FromStr> helper.
func ArgInt(args map[string]string, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok {
		return def, nil
	}
	return strconv.Atoi(v)
}

// ArgFloat reads a named float argument from args, returning def if the key
// is absent.
func ArgFloat(args map[string]string, name string, def float64) (float64, error) {
	v, ok := args[name]
	if !ok {
		return def, nil
	}
	return strconv.ParseFloat(v, 64)
}
