package util

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func GetEnvironmentVariables() map[string]string {
	environmentVariables := map[string]string{}

	for _, variable := range os.Environ() {
		pair := strings.SplitN(variable, "=", 2)

		environmentVariables[pair[0]] = pair[1]
	}

	return environmentVariables
}

// OverrideString sets target to env[name] when it is set and non-empty.
func OverrideString(env map[string]string, name string, target *string) {
	if env[name] != "" {
		*target = env[name]
	}
}

func OverrideInt(env map[string]string, name string, target *int) error {
	if env[name] == "" {
		return nil
	}

	n, err := strconv.Atoi(env[name])
	if err != nil {
		return err
	}
	*target = n

	return nil
}

func OverrideFloat(env map[string]string, name string, target *float64) error {
	if env[name] == "" {
		return nil
	}

	n, err := strconv.ParseFloat(env[name], 64)
	if err != nil {
		return err
	}
	*target = n

	return nil
}

func OverrideDuration(env map[string]string, name string, target *time.Duration) error {
	if env[name] == "" {
		return nil
	}

	d, err := time.ParseDuration(env[name])
	if err != nil {
		return err
	}
	*target = d

	return nil
}
