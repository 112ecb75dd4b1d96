package ketchup

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseSubmitOutput extracts the queue id from the YAML that
// `ketchup submit` prints on success (a mapping with a jobid key).
func ParseSubmitOutput(stdout string) (string, error) {
	var out map[string]any
	if err := yaml.Unmarshal([]byte(dropNoise(stdout)), &out); err != nil {
		return "", fmt.Errorf("ketchup submit output: %w", err)
	}
	id, ok := out["jobid"]
	if !ok {
		return "", fmt.Errorf("no jobid in ketchup submit output: %q", stdout)
	}
	return fmt.Sprintf("%v", id), nil
}

// Rejected reports whether a failed submission was refused by tomato
// itself (payload validation, pipeline state) as opposed to an
// infrastructure failure. Rejections are semantic and never retried.
func Rejected(stdout, stderr string) bool {
	combined := strings.ToLower(stdout + "\n" + stderr)
	for _, marker := range []string{
		"invalid payload",
		"payload could not be parsed",
		"cannot submit",
		"no matching pipeline",
		"pipeline is busy",
		"validation",
	} {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}
