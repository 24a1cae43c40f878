package model

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID string. Job records use it so that IDs sort by
// creation time.
func NewID() string {
	return ulid.Make().String()
}
