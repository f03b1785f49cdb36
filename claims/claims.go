// Package claims handles the decoded JWT payload: dotted-path lookup over the
// nested claim structure and projection of verified claims into request
// headers.
package claims

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Set is the decoded claim set of a verified token, exactly as carried in the
// payload segment. Nested objects stay as map[string]any.
type Set map[string]any

// Decode extracts the claim set from a compact JWT without re-verifying it.
// Callers must only pass tokens that already passed verification.
func Decode(rawToken string) (Set, error) {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return nil, errors.New("claims: token is not compact JWS")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("claims: decode payload: %w", err)
	}
	var set Set
	if err := json.Unmarshal(payload, &set); err != nil {
		return nil, fmt.Errorf("claims: unmarshal payload: %w", err)
	}
	return set, nil
}

// Lookup resolves a dotted claim path ("nested.key.group") by recursive
// descent. Returns false when any segment is missing or a non-object is
// traversed.
func (s Set) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = map[string]any(s)
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FormatScalar renders a scalar claim value as a header value. Only strings,
// bools and JSON numbers are projectable; anything else returns false.
// Integral numbers print without a decimal point.
func FormatScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		// Integers survive JSON only up to 2^53; beyond that an int64
		// conversion can overflow, so format through the float path.
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return strconv.FormatInt(int64(t), 10), true
		}
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// Payload returns the base64-encoded JSON of the full claim set, the value
// written to output_payload_to_header.
func (s Set) Payload() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("claims: marshal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
