package secrets

import (
	"fmt"
	"os"
	"strings"
)

// fileSuffix marks a variable holding the path of a mounted secret file.
const fileSuffix = "_FILE"

// EnvLoader returns a Loader that reads the given environment variables.
// When KEY is unset, KEY_FILE may name a file whose trimmed contents are used
// instead, so keys mounted as container secrets rotate on Reload.
// Variables that are unset or empty are omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				vals[k] = v
				continue
			}
			path := os.Getenv(k + fileSuffix)
			if path == "" {
				continue
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s%s: %w", k, fileSuffix, err)
			}
			if v := strings.TrimSpace(string(b)); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
