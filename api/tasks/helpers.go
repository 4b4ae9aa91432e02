package tasks

import "fmt"

func errInvalidUrlKind(kind string) error {
	return fmt.Errorf("tasks: unknown url kind %q", kind)
}

func errInvalidFieldKind(kind string) error {
	return fmt.Errorf("tasks: unknown solution field kind %q", kind)
}
