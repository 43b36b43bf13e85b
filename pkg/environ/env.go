package environ

import (
	"os"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"k8s.io/kube-openapi/pkg/validation/strfmt"
)

// Prefix is prepended to every key looked up by this package.
const Prefix = "PROCVIEW_"

func lookup(key string) (string, bool) {
	return os.LookupEnv(Prefix + key)
}

// IsSet reports whether the variable for key is present in the environment.
func IsSet(key string) bool {
	_, ok := lookup(key)
	return ok
}

func GetString(key, fallback string) string {
	if value, ok := lookup(key); ok {
		return value
	}

	return fallback
}

func GetStringSlice(key string, fallback []string) []string {
	if value, ok := lookup(key); ok {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	return fallback
}

func GetInt(key string, fallback int) int {
	if value, ok := lookup(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}

	return fallback
}

func GetBool(key string, fallback bool) bool {
	if value, ok := lookup(key); ok {
		return value == "true"
	}

	return fallback
}

func GetDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if t, err := strfmt.ParseDuration(value); err == nil {
			return t
		}
	}
	return fallback
}

// CheckInt returns an error when the variable for key is set but GetInt would
// ignore it.
func CheckInt(key string) error {
	if value, ok := lookup(key); ok {
		if _, err := strconv.Atoi(value); err != nil {
			return errors.WrapIff(err, "invalid %s%s %q", Prefix, key, value)
		}
	}
	return nil
}

// CheckBool accepts only the values GetBool understands, true and false.
func CheckBool(key string) error {
	if value, ok := lookup(key); ok && value != "true" && value != "false" {
		return errors.Errorf("invalid %s%s %q: expected true or false", Prefix, key, value)
	}
	return nil
}

func CheckDuration(key string) error {
	if value, ok := lookup(key); ok {
		if _, err := strfmt.ParseDuration(value); err != nil {
			return errors.WrapIff(err, "invalid %s%s %q", Prefix, key, value)
		}
	}
	return nil
}
