package votings

import "fmt"

func errUnknownKind(kind string) error {
	return fmt.Errorf("votings: unknown voting kind %q", kind)
}
