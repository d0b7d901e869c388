package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the *_FILE convention: when
// envName+"_FILE" is set the secret is that file's trimmed content,
// otherwise it is the value of envName. Neither set yields "".
func ResolveSecret(envName string) (string, error) {
	return resolveSecret(os.LookupEnv, envName)
}

func resolveSecret(lookup func(string) (string, bool), envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath, ok := lookup(fileEnv); ok && filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			// The path is safe to report; the content never is.
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	v, _ := lookup(envName)
	return v, nil
}

// SecretsFrom resolves secrets against a fixed environment map instead of
// the process environment.
func SecretsFrom(environ map[string]string) func(string) (string, error) {
	lookup := func(k string) (string, bool) {
		v, ok := environ[k]
		return v, ok
	}
	return func(envName string) (string, error) {
		return resolveSecret(lookup, envName)
	}
}
