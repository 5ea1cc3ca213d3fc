// Package validate ports the syntax checks from taco/constants.py
// (RE_NICKNAME_CHECKER, RE_CHAT_CHECKER, RE_UUID_CHECKER, RE_HOST_CHECKER,
// RE_PORT_CHECKER) so "syntactically valid" in spec.md §4.4 has a concrete
// meaning instead of being left to the implementation.
package validate

import (
	"fmt"
	"regexp"
)

const (
	MaxNicknameLength    = 48
	MaxChatMessageLength = 512
)

var (
	nicknameRe = regexp.MustCompile(fmt.Sprintf(`^[\w.\-() ]{3,%d}$`, MaxNicknameLength))
	chatRe     = regexp.MustCompile(fmt.Sprintf(`^[!-~ ]{1,%d}$`, MaxChatMessageLength))
	uuidRe     = regexp.MustCompile(`^([a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}|[a-f0-9]{32})$`)
	hostRe     = regexp.MustCompile(`^(?:(?:(?:(?:[a-zA-Z0-9][-a-zA-Z0-9]{0,61})?[a-zA-Z0-9])[.])*(?:[a-zA-Z][-a-zA-Z0-9]{0,61}[a-zA-Z0-9]|[a-zA-Z])[.]?)$`)
)

// Nickname reports whether s is an acceptable peer nickname.
func Nickname(s string) bool { return nicknameRe.MatchString(s) }

// ChatText reports whether s is an acceptable chat message body.
func ChatText(s string) bool { return chatRe.MatchString(s) }

// Identity reports whether s looks like a 32-hex (or dashed-uuid) peer
// identity.
func Identity(s string) bool { return uuidRe.MatchString(s) }

// Hostname reports whether s is a syntactically valid DNS hostname.
func Hostname(s string) bool {
	return s != "" && len(s) <= 253 && hostRe.MatchString(s)
}

// Port reports whether p is a usable TCP port for a peer record.
func Port(p int) bool { return p > 0 && p <= 65535 }
