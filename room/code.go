package room

import (
	"math/rand"
	"strings"
)

const (
	// RoomCodeLength is the length of generated room codes.
	RoomCodeLength = 6
	// RoomCodeChars are the base-36 characters codes are drawn from.
	RoomCodeChars = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateRoomCode returns a random code. Uniqueness is checked by the Manager.
func GenerateRoomCode() string {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		code[i] = RoomCodeChars[rand.Intn(len(RoomCodeChars))]
	}
	return string(code)
}

// NormalizeCode makes codes typed by humans comparable.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
