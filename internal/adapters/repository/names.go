package repository

import (
	"fmt"
	"regexp"
)

var projectNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateProjectName checks name against the AYON project name rules. The
// name also ends up in schema names, so nothing else is accepted.
func ValidateProjectName(name string) error {
	if !projectNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
