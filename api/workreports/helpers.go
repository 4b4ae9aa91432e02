package workreports

import "fmt"

func errInvalidPow() error {
	return fmt.Errorf("workreports: pow must be a 32-byte hex string")
}
