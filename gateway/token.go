package gateway

import "fmt"

// tokenStrategy pulls a bearer token out of a decoded login payload.
type tokenStrategy struct {
	name    string
	extract func(data map[string]any) (string, bool)
}

// tokenStrategies are tried in order; the first hit wins. The order is part
// of the login contract: loginResult.token, then token, then accessToken.
var tokenStrategies = []tokenStrategy{
	{name: "loginResult.token", extract: stringAt("loginResult", "token")},
	{name: "token", extract: stringAt("token")},
	{name: "accessToken", extract: stringAt("accessToken")},
}

// stringAt returns an extractor for the non-empty string found by walking
// nested objects along path.
func stringAt(path ...string) func(map[string]any) (string, bool) {
	return func(data map[string]any) (string, bool) {
		var cur any = data
		for _, key := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				return "", false
			}
			cur = obj[key]
		}
		s, ok := cur.(string)
		return s, ok && s != ""
	}
}

// loginPayload selects where tokens are searched: the body's "data" object
// when present, otherwise the whole body.
func loginPayload(body map[string]any) map[string]any {
	if data, ok := body["data"].(map[string]any); ok {
		return data
	}
	return body
}

// ExtractToken finds the bearer token in a decoded login response body.
// It returns an error wrapping ErrNoToken when no strategy matches.
func ExtractToken(body map[string]any) (string, error) {
	payload := loginPayload(body)
	for _, s := range tokenStrategies {
		if token, ok := s.extract(payload); ok {
			return token, nil
		}
	}
	return "", fmt.Errorf("%w: checked loginResult.token, token, accessToken", ErrNoToken)
}
