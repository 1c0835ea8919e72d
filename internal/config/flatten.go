package config

import (
	"strings"
)

// Credentials never printed in full by config list or set.
var secretKeys = map[string]bool{
	"slack.bot_token":      true,
	"slack.signing_secret": true,
}

func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns the nested JSON form of the config into dot-separated keys,
// e.g. slack.channel_id. Empty sections produce no keys.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if child, ok := v.(map[string]any); ok {
				walk(prefix+k+".", child)
				continue
			}
			out[prefix+k] = v
		}
	}
	walk("", m)
	return out
}

// Unflatten is the inverse of Flatten.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for key, v := range flat {
		node := out
		for {
			section, rest, nested := strings.Cut(key, ".")
			if !nested {
				node[key] = v
				break
			}
			child, ok := node[section].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[section] = child
			}
			node, key = child, rest
		}
	}
	return out
}

// MaskSecrets returns a copy of flat with secret values reduced to their
// last four characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && secretKeys[k] {
			v = mask(s)
		}
		out[k] = v
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return "***" + s
}
