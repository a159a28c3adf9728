package streaming

import "fmt"

func errAlreadyExists(id string) error {
	return fmt.Errorf("buffer %q already exists", id)
}
