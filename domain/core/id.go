package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// runNamespace scopes derived run IDs so they never collide with other SHA-1 UUIDs.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:ptscore:run"))

// ID represents a domain identifier
type ID string

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// RunID identifies one evaluation run
type RunID ID

func (id RunID) String() string { return ID(id).String() }

// DeriveRunID returns a name-based (v5) UUID for a round code and content fingerprint.
// Re-running the same snapshot with the same settings yields the same run ID.
func DeriveRunID(code string, fingerprint Hash) RunID {
	return RunID(uuid.NewSHA1(runNamespace, []byte(code+"\x00"+fingerprint.String())).String())
}

// ParseRunCode validates a proficiency round code such as "EA-001-2025".
// Codes become file names and URL segments, so path separators are rejected.
func ParseRunCode(s string) (string, error) {
	code := strings.TrimSpace(s)
	if code == "" {
		return "", fmt.Errorf("run code cannot be empty")
	}
	if strings.ContainsAny(code, `/\`) || strings.Contains(code, "..") {
		return "", fmt.Errorf("run code %q contains path characters", code)
	}
	return code, nil
}
