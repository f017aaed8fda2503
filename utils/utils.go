package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Matches DNS-safe labels: lowercase alphanumeric plus hyphens, no leading or
// trailing hyphen, 3 to 63 characters total.
var instanceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

var nameAdjectives = []string{
	"amber", "bold", "brisk", "calm", "clever", "crimson", "eager", "fuzzy",
	"gentle", "golden", "keen", "lively", "lunar", "mellow", "nimble", "polar",
	"quiet", "rapid", "silver", "solar", "swift", "vivid", "wild", "witty",
}

var nameNouns = []string{
	"badger", "condor", "falcon", "gecko", "heron", "ibis", "jackal", "koala",
	"lemur", "lynx", "marten", "newt", "otter", "panda", "quail", "raven",
	"sable", "tapir", "urchin", "vole", "walrus", "yak", "zebra", "osprey",
}

func GenerateUuid() string {
	newUuid, err := uuid.NewUUID()
	if err != nil {
		panic("Failed to generate UUID")
	}

	return newUuid.String()
}

// GenerateSecureToken returns byteLength random bytes as a hex string.
// Used for callback and terminal session tokens.
func GenerateSecureToken(byteLength int) string {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		panic("Failed to read from the system entropy source")
	}

	return hex.EncodeToString(buffer)
}

// GenerateInstanceName produces a random DNS-safe candidate name of the form
// "<adjective>-<noun>-<4 hex chars>".
func GenerateInstanceName() string {
	indexBytes := make([]byte, 2)
	if _, err := rand.Read(indexBytes); err != nil {
		panic("Failed to read from the system entropy source")
	}

	adjective := nameAdjectives[int(indexBytes[0])%len(nameAdjectives)]
	noun := nameNouns[int(indexBytes[1])%len(nameNouns)]

	return fmt.Sprintf("%s-%s-%s", adjective, noun, GenerateSecureToken(2))
}

func IsValidInstanceName(name string) bool {
	return instanceNamePattern.MatchString(name)
}
